package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/wesleyorama2/fusillade/internal/store"
)

// PersistHandler returns a Handler that reads each changed file and saves it
// as an ArtifactFile of kind tagged with sessionKey. Raw (json) reports must
// contain valid JSON.
func PersistHandler(s store.Store, kind store.Kind, sessionKey string, now func() time.Time) Handler {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, ev Event) error {
		content, err := os.ReadFile(ev.Path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", ev.Path, err)
		}
		if kind == store.KindJSON && !json.Valid(content) {
			return fmt.Errorf("%s is not valid JSON", ev.Name)
		}

		return s.SaveArtifact(ctx, &store.ArtifactFile{
			Kind:       kind,
			SessionKey: sessionKey,
			FileName:   ev.Name,
			FilePath:   ev.Path,
			Content:    string(content),
			CreatedAt:  now(),
		})
	}
}

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/fusillade/internal/ctxlog"
	"github.com/wesleyorama2/fusillade/internal/store"
)

func TestWatcher_CreatesDirectoryAndDeliversEvents(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log", "html")

	var mu sync.Mutex
	seen := map[string]bool{}
	w := New(ctxlog.Discard())
	require.NoError(t, w.Start(context.Background(), dir, func(ctx context.Context, ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen[ev.Name] = true
		return nil
	}))
	defer w.Stop()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, w.Active())
	assert.Equal(t, dir, w.Dir())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "load-k.html"), []byte("<html/>"), 0644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["load-k.html"]
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_HandlerErrorsDoNotStopLoop(t *testing.T) {
	dir := t.TempDir()

	var calls, reported atomic.Int32
	w := New(ctxlog.Discard())
	w.OnError = func(err error) {
		var herr *HandlerError
		if errors.As(err, &herr) {
			reported.Add(1)
		}
	}
	require.NoError(t, w.Start(context.Background(), dir, func(ctx context.Context, ev Event) error {
		if calls.Add(1) == 1 {
			panic("first event explodes")
		}
		return errors.New("save failed")
	}))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte("{}"), 0644))
	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte("{}"), 0644))
	assert.Eventually(t, func() bool { return calls.Load() >= 2 && reported.Load() >= 2 }, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := New(nil)
	assert.NoError(t, w.Stop(), "stopping an idle watcher is a no-op")

	require.NoError(t, w.Start(context.Background(), t.TempDir(), func(context.Context, Event) error { return nil }))
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
	assert.False(t, w.Active())
	assert.Empty(t, w.Dir())
}

func TestWatcher_StartTwice(t *testing.T) {
	w := New(ctxlog.Discard())
	noop := func(context.Context, Event) error { return nil }
	require.NoError(t, w.Start(context.Background(), t.TempDir(), noop))
	defer w.Stop()

	assert.Error(t, w.Start(context.Background(), t.TempDir(), noop))
	assert.Error(t, New(nil).Start(context.Background(), t.TempDir(), nil))
}

func TestPersistHandler(t *testing.T) {
	dir := t.TempDir()
	s := store.NewMemoryStore()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	path := filepath.Join(dir, "load-k.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"aggregate":{}}`), 0644))

	h := PersistHandler(s, store.KindJSON, "k", func() time.Time { return fixed })
	require.NoError(t, h(context.Background(), Event{Name: "load-k.json", Path: path}))

	arts := s.Artifacts(store.KindJSON)
	require.Len(t, arts, 1)
	assert.Equal(t, "k", arts[0].SessionKey)
	assert.Equal(t, "load-k.json", arts[0].FileName)
	assert.Equal(t, `{"aggregate":{}}`, arts[0].Content)
	assert.Equal(t, fixed, arts[0].CreatedAt)
}

func TestPersistHandler_Errors(t *testing.T) {
	dir := t.TempDir()
	s := store.NewMemoryStore()

	h := PersistHandler(s, store.KindJSON, "k", nil)
	assert.Error(t, h(context.Background(), Event{Name: "gone.json", Path: filepath.Join(dir, "gone.json")}))

	partial := filepath.Join(dir, "partial.json")
	require.NoError(t, os.WriteFile(partial, []byte(`{"aggre`), 0644))
	assert.Error(t, h(context.Background(), Event{Name: "partial.json", Path: partial}))

	// HTML content is stored verbatim.
	htmlPath := filepath.Join(dir, "r.html")
	require.NoError(t, os.WriteFile(htmlPath, []byte("<p>"), 0644))
	require.NoError(t, PersistHandler(s, store.KindHTML, "k", nil)(context.Background(), Event{Name: "r.html", Path: htmlPath}))
	assert.Len(t, s.Artifacts(store.KindHTML), 1)
	assert.Empty(t, s.Artifacts(store.KindJSON))
}

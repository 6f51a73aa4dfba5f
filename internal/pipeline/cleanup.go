package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/fusillade/internal/ctxlog"
	"github.com/wesleyorama2/fusillade/internal/store"
)

// CleanUp purges manifests and their files for every kind: first those of
// other sessions, then those of this session. Kinds and phases are isolated
// from each other; each failing kind is recorded as an exception and the
// failures are returned joined. Running it twice is a no-op the second time.
func CleanUp(ctx context.Context, s *Session) error {
	var errs []error
	for _, kind := range store.Kinds {
		if err := cleanKind(ctx, s, kind); err != nil {
			recordException(ctx, s, StageCleanUp, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func cleanKind(ctx context.Context, s *Session, kind store.Kind) error {
	var errs []error
	for _, f := range []store.Filter{store.KeyNe(s.Key), store.KeyEq(s.Key)} {
		if err := purgePhase(ctx, s, kind, f); err != nil {
			errs = append(errs, fmt.Errorf("%s cleanup (%s): %w", kind, f, err))
		}
	}
	return errors.Join(errs...)
}

// purgePhase purges the manifests matching f as they were when fetched.
// Manifests saved afterwards are left alone.
func purgePhase(ctx context.Context, s *Session, kind store.Kind, f store.Filter) error {
	manifests, err := s.Store.FindManifests(ctx, kind, f)
	if err != nil {
		return fmt.Errorf("failed to find manifests: %w", err)
	}
	if len(manifests) == 0 {
		return nil
	}

	ctxlog.FromContext(ctx).Info("purging manifests", "kind", kind, "filter", f.String(), "count", len(manifests))

	var g errgroup.Group
	for _, m := range manifests {
		m := m
		g.Go(func() error {
			return purgeManifest(ctx, s, kind, m)
		})
	}
	return g.Wait()
}

// purgeManifest removes the manifest's files, then the manifest itself.
func purgeManifest(ctx context.Context, s *Session, kind store.Kind, m *store.Manifest) error {
	for _, p := range m.FilePathList {
		if err := removeFile(p); err != nil {
			return err
		}
	}

	err := s.Store.DeleteManifest(ctx, kind, m.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to delete manifest %s: %w", m.ID, err)
	}
	return nil
}

// removeFile deletes path, treating an already absent file as deleted.
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

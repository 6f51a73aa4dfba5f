package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/fusillade/internal/store"
)

func saveManifest(t *testing.T, s store.Store, kind store.Kind, key string, paths ...string) *store.Manifest {
	t.Helper()
	if paths == nil {
		paths = []string{}
	}
	m := &store.Manifest{Kind: kind, SessionKey: key, FilePathList: paths, CreatedAt: testStart}
	require.NoError(t, s.SaveManifest(context.Background(), m))
	return m
}

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	return path
}

func TestCleanUpPurgesOrphanAndCurrent(t *testing.T) {
	f := newFixture(t)
	dir := f.root

	a1 := touch(t, filepath.Join(dir, "a1.json"))
	a2 := touch(t, filepath.Join(dir, "a2.html"))
	b := touch(t, filepath.Join(dir, "b.json"))
	saveManifest(t, f.store, store.KindJSON, testKey, a1)
	saveManifest(t, f.store, store.KindHTML, testKey, a2)
	saveManifest(t, f.store, store.KindJSON, "OTHER", b)

	require.NoError(t, CleanUp(context.Background(), f.session()))

	for _, p := range []string{a1, a2, b} {
		assert.NoFileExists(t, p)
	}
	for _, kind := range store.Kinds {
		assert.Empty(t, manifests(t, f.store, kind, all(testKey)))
	}
	assert.Empty(t, f.store.Exceptions())
}

func TestCleanUpIsIdempotent(t *testing.T) {
	f := newFixture(t)
	p := touch(t, filepath.Join(f.root, "r.json"))
	saveManifest(t, f.store, store.KindJSON, testKey, p)
	saveManifest(t, f.store, store.KindJSON, "OLD", p)

	s := f.session()
	require.NoError(t, CleanUp(context.Background(), s))
	require.NoError(t, CleanUp(context.Background(), s))

	assert.Empty(t, manifests(t, f.store, store.KindJSON, all(testKey)))
	assert.Empty(t, f.store.Exceptions())
}

func TestCleanUpToleratesMissingFiles(t *testing.T) {
	f := newFixture(t)
	missing := filepath.Join(f.root, "log", "json", "gone-19990101-000000.json")
	saveManifest(t, f.store, store.KindJSON, "OLD", missing)

	require.NoError(t, CleanUp(context.Background(), f.session()))
	assert.Empty(t, manifests(t, f.store, store.KindJSON, store.KeyEq("OLD")))
	assert.Empty(t, f.store.Exceptions())
}

func TestRemoveFileMissing(t *testing.T) {
	assert.NoError(t, removeFile(filepath.Join(t.TempDir(), "nope")))
}

// lateWriter saves a manifest under a third key right after the orphan
// phase has taken its snapshot.
type lateWriter struct {
	*store.MemoryStore
	once bool
}

func (l *lateWriter) FindManifests(ctx context.Context, kind store.Kind, f store.Filter) ([]*store.Manifest, error) {
	ms, err := l.MemoryStore.FindManifests(ctx, kind, f)
	if err == nil && !l.once && kind == store.KindJSON && f.Op == store.OpNe {
		l.once = true
		err = l.MemoryStore.SaveManifest(ctx, &store.Manifest{Kind: kind, SessionKey: "C", FilePathList: []string{}})
	}
	return ms, err
}

func TestCleanUpUsesSnapshot(t *testing.T) {
	f := newFixture(t)
	saveManifest(t, f.store, store.KindJSON, "A")
	saveManifest(t, f.store, store.KindJSON, "A")
	saveManifest(t, f.store, store.KindJSON, "B")

	s := f.session()
	s.Key = "A"
	s.Store = &lateWriter{MemoryStore: f.store}

	require.NoError(t, CleanUp(context.Background(), s))

	left := manifests(t, f.store, store.KindJSON, all("A"))
	require.Len(t, left, 1)
	assert.Equal(t, "C", left[0].SessionKey)
}

// brokenKind fails every lookup of one kind.
type brokenKind struct {
	*store.MemoryStore
	kind store.Kind
}

func (b *brokenKind) FindManifests(ctx context.Context, kind store.Kind, f store.Filter) ([]*store.Manifest, error) {
	if kind == b.kind {
		return nil, errors.New("collection unavailable")
	}
	return b.MemoryStore.FindManifests(ctx, kind, f)
}

func TestCleanUpIsolatesKinds(t *testing.T) {
	f := newFixture(t)
	p := touch(t, filepath.Join(f.root, "r.html"))
	saveManifest(t, f.store, store.KindHTML, "OLD", p)
	saveManifest(t, f.store, store.KindJSON, "OLD")

	s := f.session()
	s.Store = &brokenKind{MemoryStore: f.store, kind: store.KindJSON}

	err := CleanUp(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection unavailable")

	// html still purged
	assert.NoFileExists(t, p)
	assert.Empty(t, manifests(t, f.store, store.KindHTML, all(testKey)))
	assert.Len(t, manifests(t, f.store, store.KindJSON, all(testKey)), 1)

	exceptions := f.store.Exceptions()
	require.Len(t, exceptions, 1)
	assert.Contains(t, exceptions[0].Details.Message, "collection unavailable")
}

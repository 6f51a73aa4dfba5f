package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps every record in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	manifests  map[Kind]map[string]*Manifest
	artifacts  map[Kind][]*ArtifactFile
	exceptions []*ExceptionRecord
	closed     bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		manifests: make(map[Kind]map[string]*Manifest),
		artifacts: make(map[Kind][]*ArtifactFile),
	}
	for _, k := range Kinds {
		s.manifests[k] = make(map[string]*Manifest)
	}
	return s
}

func (s *MemoryStore) check(kind Kind) error {
	if s.closed {
		return fmt.Errorf("memory store is closed")
	}
	return CheckKind(kind)
}

// SaveManifest implements Store.
func (s *MemoryStore) SaveManifest(ctx context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(m.Kind); err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	s.manifests[m.Kind][m.ID] = cloneManifest(m)
	return nil
}

// FindManifests implements Store. Results are ordered by creation time, then ID.
func (s *MemoryStore) FindManifests(ctx context.Context, kind Kind, f Filter) ([]*Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(kind); err != nil {
		return nil, err
	}

	var out []*Manifest
	for _, m := range s.manifests[kind] {
		if f.Match(m.SessionKey) {
			out = append(out, cloneManifest(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteManifest implements Store.
func (s *MemoryStore) DeleteManifest(ctx context.Context, kind Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(kind); err != nil {
		return err
	}
	if _, ok := s.manifests[kind][id]; !ok {
		return fmt.Errorf("%s manifest %s: %w", kind, id, ErrNotFound)
	}
	delete(s.manifests[kind], id)
	return nil
}

// SaveArtifact implements Store.
func (s *MemoryStore) SaveArtifact(ctx context.Context, a *ArtifactFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(a.Kind); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	cp := *a
	s.artifacts[a.Kind] = append(s.artifacts[a.Kind], &cp)
	return nil
}

// SaveException implements Store.
func (s *MemoryStore) SaveException(ctx context.Context, e *ExceptionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("memory store is closed")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	cp := *e
	s.exceptions = append(s.exceptions, &cp)
	return nil
}

// Close implements Store. Later calls fail.
func (s *MemoryStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Artifacts returns a copy of the captured files of kind.
func (s *MemoryStore) Artifacts(kind Kind) []ArtifactFile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ArtifactFile, 0, len(s.artifacts[kind]))
	for _, a := range s.artifacts[kind] {
		out = append(out, *a)
	}
	return out
}

// Exceptions returns a copy of the exception log.
func (s *MemoryStore) Exceptions() []ExceptionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ExceptionRecord, 0, len(s.exceptions))
	for _, e := range s.exceptions {
		out = append(out, *e)
	}
	return out
}

func cloneManifest(m *Manifest) *Manifest {
	cp := *m
	cp.FilePathList = append(make([]string, 0, len(m.FilePathList)), m.FilePathList...)
	return &cp
}

// Package store defines the persistence facade used by the fusillade pipeline:
// artifact manifests, captured artifact files and the exception audit log.
//
// Backends live in sub-packages (mongostore, sqlstore); an in-memory backend
// is provided here for tests and dry runs. Every backend must be safe for
// concurrent use: watcher callbacks, StageTwo and CleanUp share one handle.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind identifies an artifact family. Its value is also the report directory
// and file extension.
type Kind string

const (
	KindJSON Kind = "json"
	KindHTML Kind = "html"
)

// Kinds lists every artifact kind in processing order.
var Kinds = []Kind{KindJSON, KindHTML}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindJSON || k == KindHTML
}

// ErrNotFound is returned when a record to delete does not exist.
var ErrNotFound = errors.New("record not found")

// Manifest lists the report files produced for one kind during one session.
type Manifest struct {
	ID           string    `json:"id" bson:"_id,omitempty"`
	Kind         Kind      `json:"kind" bson:"-"`
	SessionKey   string    `json:"key" bson:"key"`
	FilePathList []string  `json:"filePathList" bson:"filePathList"`
	CreatedAt    time.Time `json:"now" bson:"now"`
}

// ArtifactFile captures the content of a report file as the watcher saw it.
type ArtifactFile struct {
	ID         string    `json:"id" bson:"_id,omitempty"`
	Kind       Kind      `json:"kind" bson:"-"`
	SessionKey string    `json:"key" bson:"key"`
	FileName   string    `json:"fileName" bson:"fileName"`
	FilePath   string    `json:"filePath" bson:"filePath"`
	Content    string    `json:"content" bson:"content"`
	CreatedAt  time.Time `json:"now" bson:"now"`
}

// ExceptionDetails mirrors the fields recorded for every failure.
type ExceptionDetails struct {
	Message string `json:"message" bson:"message"`
	Name    string `json:"name" bson:"name"`
	Code    string `json:"code,omitempty" bson:"code,omitempty"`
	Stack   string `json:"stack,omitempty" bson:"stack,omitempty"`
}

// ExceptionRecord is an append-only audit entry for a failure.
type ExceptionRecord struct {
	ID        string           `json:"id" bson:"_id,omitempty"`
	Details   ExceptionDetails `json:"exception" bson:"exception"`
	CreatedAt time.Time        `json:"now" bson:"now"`
}

// Op is the comparison applied by a Filter.
type Op int

const (
	// OpEq matches records whose session key equals the filter key.
	OpEq Op = iota
	// OpNe matches records whose session key differs from the filter key.
	OpNe
)

// Filter selects manifests by session key.
type Filter struct {
	SessionKey string
	Op         Op
}

// KeyEq returns a filter matching key.
func KeyEq(key string) Filter { return Filter{SessionKey: key, Op: OpEq} }

// KeyNe returns a filter matching everything but key.
func KeyNe(key string) Filter { return Filter{SessionKey: key, Op: OpNe} }

// Match reports whether sessionKey satisfies the filter.
func (f Filter) Match(sessionKey string) bool {
	if f.Op == OpNe {
		return sessionKey != f.SessionKey
	}
	return sessionKey == f.SessionKey
}

func (f Filter) String() string {
	if f.Op == OpNe {
		return "key != " + f.SessionKey
	}
	return "key == " + f.SessionKey
}

// Store is the persistence interface consumed by the pipeline.
type Store interface {
	// SaveManifest persists m and assigns its ID.
	SaveManifest(ctx context.Context, m *Manifest) error
	// FindManifests returns a snapshot of the manifests of kind matching f.
	FindManifests(ctx context.Context, kind Kind, f Filter) ([]*Manifest, error)
	// DeleteManifest removes one manifest. Missing records yield ErrNotFound.
	DeleteManifest(ctx context.Context, kind Kind, id string) error
	// SaveArtifact persists a captured report file and assigns its ID.
	SaveArtifact(ctx context.Context, a *ArtifactFile) error
	// SaveException appends an exception record and assigns its ID.
	SaveException(ctx context.Context, e *ExceptionRecord) error
	// Close releases the backend connection.
	Close(ctx context.Context) error
}

// CheckKind returns an error for unknown kinds. Backends call it before
// touching a collection.
func CheckKind(kind Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown artifact kind %q", kind)
	}
	return nil
}

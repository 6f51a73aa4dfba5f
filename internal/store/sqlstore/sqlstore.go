// Package sqlstore is a gorm-backed store.Store for single-host installs
// that do not run MongoDB.
package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wesleyorama2/fusillade/internal/store"
)

// manifestRow is one manifest. FilePaths holds the JSON-encoded path list.
type manifestRow struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Kind       string    `gorm:"index:idx_manifest_kind_key;size:8;not null"`
	SessionKey string    `gorm:"index:idx_manifest_kind_key;size:64;not null"`
	FilePaths  string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (manifestRow) TableName() string { return "manifests" }

type artifactRow struct {
	ID         string `gorm:"primaryKey;size:36"`
	Kind       string `gorm:"index;size:8;not null"`
	SessionKey string `gorm:"index;size:64;not null"`
	FileName   string
	FilePath   string
	Content    string `gorm:"type:text"`
	CreatedAt  time.Time
}

func (artifactRow) TableName() string { return "artifacts" }

type exceptionRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	Message   string `gorm:"type:text"`
	Name      string
	Code      string
	Stack     string `gorm:"type:text"`
	CreatedAt time.Time
}

func (exceptionRow) TableName() string { return "exceptions" }

// Store is a store.Store backed by a gorm database.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the SQLite database at dsn and migrates it.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&manifestRow{}, &artifactRow{}, &exceptionRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveManifest implements store.Store.
func (s *Store) SaveManifest(ctx context.Context, m *store.Manifest) error {
	if err := store.CheckKind(m.Kind); err != nil {
		return err
	}
	paths := m.FilePathList
	if paths == nil {
		paths = []string{}
	}
	encoded, err := json.Marshal(paths)
	if err != nil {
		return fmt.Errorf("failed to encode file path list: %w", err)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	row := manifestRow{ID: m.ID, Kind: string(m.Kind), SessionKey: m.SessionKey, FilePaths: string(encoded), CreatedAt: m.CreatedAt}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save %s manifest: %w", m.Kind, err)
	}
	return nil
}

// FindManifests implements store.Store.
func (s *Store) FindManifests(ctx context.Context, kind store.Kind, f store.Filter) ([]*store.Manifest, error) {
	if err := store.CheckKind(kind); err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Where("kind = ?", string(kind))
	if f.Op == store.OpNe {
		q = q.Where("session_key <> ?", f.SessionKey)
	} else {
		q = q.Where("session_key = ?", f.SessionKey)
	}

	var rows []manifestRow
	if err := q.Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query %s manifests (%s): %w", kind, f, err)
	}

	out := make([]*store.Manifest, 0, len(rows))
	for _, r := range rows {
		var paths []string
		if err := json.Unmarshal([]byte(r.FilePaths), &paths); err != nil {
			return nil, fmt.Errorf("manifest %s has a corrupt file path list: %w", r.ID, err)
		}
		if paths == nil {
			paths = []string{}
		}
		out = append(out, &store.Manifest{
			ID:           r.ID,
			Kind:         kind,
			SessionKey:   r.SessionKey,
			FilePathList: paths,
			CreatedAt:    r.CreatedAt,
		})
	}
	return out, nil
}

// DeleteManifest implements store.Store.
func (s *Store) DeleteManifest(ctx context.Context, kind store.Kind, id string) error {
	if err := store.CheckKind(kind); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Where("kind = ?", string(kind)).Delete(&manifestRow{ID: id})
	if res.Error != nil {
		return fmt.Errorf("failed to delete %s manifest %s: %w", kind, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s manifest %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

// SaveArtifact implements store.Store.
func (s *Store) SaveArtifact(ctx context.Context, a *store.ArtifactFile) error {
	if err := store.CheckKind(a.Kind); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	row := artifactRow{
		ID:         a.ID,
		Kind:       string(a.Kind),
		SessionKey: a.SessionKey,
		FileName:   a.FileName,
		FilePath:   a.FilePath,
		Content:    a.Content,
		CreatedAt:  a.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save %s artifact %s: %w", a.Kind, a.FileName, err)
	}
	return nil
}

// SaveException implements store.Store.
func (s *Store) SaveException(ctx context.Context, e *store.ExceptionRecord) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	row := exceptionRow{
		ID:        e.ID,
		Message:   e.Details.Message,
		Name:      e.Details.Name,
		Code:      e.Details.Code,
		Stack:     e.Details.Stack,
		CreatedAt: e.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save exception: %w", err)
	}
	return nil
}

// Close implements store.Store.
func (s *Store) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CountArtifacts returns the number of captured files of kind for sessionKey.
func (s *Store) CountArtifacts(ctx context.Context, kind store.Kind, sessionKey string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&artifactRow{}).
		Where("kind = ? AND session_key = ?", string(kind), sessionKey).
		Count(&n).Error
	return n, err
}

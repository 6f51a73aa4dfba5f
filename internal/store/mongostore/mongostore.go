// Package mongostore is the MongoDB backend of store.Store.
//
// Collections follow the layout operators already query: JSON and HTML hold
// captured report files, JSONList and HTMLList hold manifests and Exception
// holds the failure audit log.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wesleyorama2/fusillade/internal/store"
)

const exceptionCollection = "Exception"

// Options configures the connection.
type Options struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// Store is a store.Store backed by MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.Store = (*Store)(nil)

// Open connects to MongoDB and verifies the connection with a ping.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if opts.Database == "" {
		opts.Database = "fusillade"
	}

	clientOpts := options.Client().ApplyURI(opts.URI)
	if opts.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(opts.ConnectTimeout)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &Store{client: client, db: client.Database(opts.Database)}, nil
}

// listCollection returns the manifest collection name of kind.
func listCollection(kind store.Kind) string {
	switch kind {
	case store.KindJSON:
		return "JSONList"
	case store.KindHTML:
		return "HTMLList"
	}
	return ""
}

// fileCollection returns the captured-file collection name of kind.
func fileCollection(kind store.Kind) string {
	switch kind {
	case store.KindJSON:
		return "JSON"
	case store.KindHTML:
		return "HTML"
	}
	return ""
}

// filterDoc translates a store.Filter into a query document.
func filterDoc(f store.Filter) bson.M {
	if f.Op == store.OpNe {
		return bson.M{"key": bson.M{"$ne": f.SessionKey}}
	}
	return bson.M{"key": f.SessionKey}
}

type manifestDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Key          string             `bson:"key"`
	FilePathList []string           `bson:"filePathList"`
	Now          time.Time          `bson:"now"`
}

type artifactDoc struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	Key      string             `bson:"key"`
	FileName string             `bson:"fileName"`
	FilePath string             `bson:"filePath"`
	Content  any                `bson:"content"`
	Now      time.Time          `bson:"now"`
}

type exceptionDoc struct {
	ID        primitive.ObjectID     `bson:"_id,omitempty"`
	Exception store.ExceptionDetails `bson:"exception"`
	Now       time.Time              `bson:"now"`
}

func toManifestDoc(m *store.Manifest) manifestDoc {
	paths := m.FilePathList
	if paths == nil {
		paths = []string{}
	}
	return manifestDoc{Key: m.SessionKey, FilePathList: paths, Now: m.CreatedAt}
}

func fromManifestDoc(kind store.Kind, d manifestDoc) *store.Manifest {
	paths := d.FilePathList
	if paths == nil {
		paths = []string{}
	}
	return &store.Manifest{
		ID:           d.ID.Hex(),
		Kind:         kind,
		SessionKey:   d.Key,
		FilePathList: paths,
		CreatedAt:    d.Now,
	}
}

// toArtifactDoc stores JSON reports as embedded documents so they stay
// queryable; anything else is stored as a string.
func toArtifactDoc(a *store.ArtifactFile) artifactDoc {
	doc := artifactDoc{Key: a.SessionKey, FileName: a.FileName, FilePath: a.FilePath, Content: a.Content, Now: a.CreatedAt}
	if a.Kind == store.KindJSON {
		var parsed any
		if err := bson.UnmarshalExtJSON([]byte(a.Content), false, &parsed); err == nil {
			doc.Content = parsed
		}
	}
	return doc
}

func insertedHex(res *mongo.InsertOneResult) string {
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprint(res.InsertedID)
}

// SaveManifest implements store.Store.
func (s *Store) SaveManifest(ctx context.Context, m *store.Manifest) error {
	if err := store.CheckKind(m.Kind); err != nil {
		return err
	}
	res, err := s.db.Collection(listCollection(m.Kind)).InsertOne(ctx, toManifestDoc(m))
	if err != nil {
		return fmt.Errorf("failed to save %s manifest: %w", m.Kind, err)
	}
	m.ID = insertedHex(res)
	return nil
}

// FindManifests implements store.Store.
func (s *Store) FindManifests(ctx context.Context, kind store.Kind, f store.Filter) ([]*store.Manifest, error) {
	if err := store.CheckKind(kind); err != nil {
		return nil, err
	}

	cur, err := s.db.Collection(listCollection(kind)).Find(ctx, filterDoc(f), options.Find().SetSort(bson.D{{Key: "now", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s manifests (%s): %w", kind, f, err)
	}

	var docs []manifestDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode %s manifests: %w", kind, err)
	}

	out := make([]*store.Manifest, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromManifestDoc(kind, d))
	}
	return out, nil
}

// DeleteManifest implements store.Store.
func (s *Store) DeleteManifest(ctx context.Context, kind store.Kind, id string) error {
	if err := store.CheckKind(kind); err != nil {
		return err
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid manifest id %q: %w", id, err)
	}

	res, err := s.db.Collection(listCollection(kind)).DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete %s manifest %s: %w", kind, id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s manifest %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

// SaveArtifact implements store.Store.
func (s *Store) SaveArtifact(ctx context.Context, a *store.ArtifactFile) error {
	if err := store.CheckKind(a.Kind); err != nil {
		return err
	}
	res, err := s.db.Collection(fileCollection(a.Kind)).InsertOne(ctx, toArtifactDoc(a))
	if err != nil {
		return fmt.Errorf("failed to save %s artifact %s: %w", a.Kind, a.FileName, err)
	}
	a.ID = insertedHex(res)
	return nil
}

// SaveException implements store.Store.
func (s *Store) SaveException(ctx context.Context, e *store.ExceptionRecord) error {
	res, err := s.db.Collection(exceptionCollection).InsertOne(ctx, exceptionDoc{Exception: e.Details, Now: e.CreatedAt})
	if err != nil {
		return fmt.Errorf("failed to save exception: %w", err)
	}
	e.ID = insertedHex(res)
	return nil
}

// Close implements store.Store.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

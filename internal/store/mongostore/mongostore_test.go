package mongostore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/wesleyorama2/fusillade/internal/store"
)

func TestCollections(t *testing.T) {
	assert.Equal(t, "JSONList", listCollection(store.KindJSON))
	assert.Equal(t, "HTMLList", listCollection(store.KindHTML))
	assert.Equal(t, "JSON", fileCollection(store.KindJSON))
	assert.Equal(t, "HTML", fileCollection(store.KindHTML))
	assert.Empty(t, listCollection("xml"))
}

func TestFilterDoc(t *testing.T) {
	assert.Equal(t, bson.M{"key": "A"}, filterDoc(store.KeyEq("A")))
	assert.Equal(t, bson.M{"key": bson.M{"$ne": "A"}}, filterDoc(store.KeyNe("A")))
}

func TestManifestDocRoundTrip(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := toManifestDoc(&store.Manifest{Kind: store.KindJSON, SessionKey: "A", CreatedAt: now})
	assert.NotNil(t, doc.FilePathList)

	doc.ID = primitive.NewObjectID()
	doc.FilePathList = []string{"log/json/a-A.json"}

	m := fromManifestDoc(store.KindHTML, doc)
	assert.Equal(t, doc.ID.Hex(), m.ID)
	assert.Equal(t, store.KindHTML, m.Kind)
	assert.Equal(t, "A", m.SessionKey)
	assert.Equal(t, now, m.CreatedAt)
	assert.Equal(t, []string{"log/json/a-A.json"}, m.FilePathList)
}

func TestToArtifactDoc(t *testing.T) {
	jsonDoc := toArtifactDoc(&store.ArtifactFile{Kind: store.KindJSON, FileName: "a.json", Content: `{"aggregate":{"counters":{"http.requests":3}}}`})
	_, isString := jsonDoc.Content.(string)
	assert.False(t, isString, "json content should be stored as a document")

	broken := toArtifactDoc(&store.ArtifactFile{Kind: store.KindJSON, Content: `{not json`})
	assert.Equal(t, `{not json`, broken.Content)

	html := toArtifactDoc(&store.ArtifactFile{Kind: store.KindHTML, Content: "<html></html>"})
	assert.Equal(t, "<html></html>", html.Content)
}

func TestOpen_RequiresURI(t *testing.T) {
	_, err := Open(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uri")
}

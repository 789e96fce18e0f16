package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/text2sql-server/internal/schema"
	"github.com/bull/text2sql-server/internal/storage"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text))}
	}
	return out, nil
}

type memStore struct {
	docs      map[string][]*storage.SchemaDocument
	deleteErr error
	deletes   []string
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string][]*storage.SchemaDocument)}
}

func (m *memStore) UpsertDocuments(_ context.Context, docs []*storage.SchemaDocument) error {
	for _, d := range docs {
		m.docs[d.Metadata.DatabaseName] = append(m.docs[d.Metadata.DatabaseName], d)
	}
	return nil
}

func (m *memStore) DeleteDatabase(_ context.Context, database string) error {
	m.deletes = append(m.deletes, database)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.docs, database)
	return nil
}

func (m *memStore) ListDatabases(context.Context) ([]string, error) {
	var out []string
	for name := range m.docs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) ListDocuments(_ context.Context, database string) ([]*storage.SchemaDocument, error) {
	docs, ok := m.docs[database]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrDatabaseNotFound, database)
	}
	return docs, nil
}

type recordingCache struct{ invalidated []string }

func (r *recordingCache) InvalidateDatabase(_ context.Context, database string) {
	r.invalidated = append(r.invalidated, database)
}

type stubDescriber struct{}

func (stubDescriber) DescribeMissing(_ context.Context, db *schema.Database) int {
	n := 0
	for i := range db.Tables {
		if db.Tables[i].Description == "" {
			db.Tables[i].Description = "generated"
			n++
		}
	}
	return n
}

func shop() *schema.Database {
	return &schema.Database{
		Name: "shop",
		Tables: []schema.Table{
			{Name: "users", Description: "Customers", Columns: []schema.Column{{Name: "id", DataType: "integer"}, {Name: "signup_date", DataType: "date"}}},
			{Name: "orders", Columns: []schema.Column{{Name: "id", DataType: "integer"}}},
		},
	}
}

func TestIndexDatabase(t *testing.T) {
	store := newMemStore()
	cache := &recordingCache{}
	p := NewPipeline(&fakeEmbedder{}, store, nil, WithDescriber(stubDescriber{}), WithCacheInvalidator(cache))

	res, err := p.IndexDatabase(context.Background(), shop())
	require.NoError(t, err)

	assert.Equal(t, "shop", res.Database)
	assert.Equal(t, 2, res.TablesIndexed)
	assert.Equal(t, 3, res.ColumnsIndexed)
	assert.Equal(t, 1, res.Described)
	assert.Equal(t, []string{"shop"}, cache.invalidated)

	docs := store.docs["shop"]
	require.Len(t, docs, 2)
	assert.Contains(t, docs[1].Content, "Description: generated")
	assert.Equal(t, []float32{float32(len(docs[0].Content))}, docs[0].Embedding)
}

func TestIndexDatabase_ReplacesPreviousDocuments(t *testing.T) {
	store := newMemStore()
	p := NewPipeline(&fakeEmbedder{}, store, nil)
	ctx := context.Background()

	_, err := p.IndexDatabase(ctx, shop())
	require.NoError(t, err)

	smaller := shop()
	smaller.Tables = smaller.Tables[:1]
	_, err = p.IndexDatabase(ctx, smaller)
	require.NoError(t, err)

	docs, err := p.ListTables(ctx, "shop")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "users", docs[0].Metadata.TableName)
}

func TestIndexDatabase_EmbeddingFailureKeepsOldIndex(t *testing.T) {
	store := newMemStore()
	p := NewPipeline(&fakeEmbedder{err: errors.New("429")}, store, nil)

	_, err := p.IndexDatabase(context.Background(), shop())
	assert.ErrorContains(t, err, "embeddings")
	assert.Empty(t, store.deletes)
}

func TestIndexDatabase_InvalidSchema(t *testing.T) {
	embedder := &fakeEmbedder{}
	p := NewPipeline(embedder, newMemStore(), nil)

	_, err := p.IndexDatabase(context.Background(), &schema.Database{Name: "empty"})
	assert.ErrorContains(t, err, "invalid schema")
	assert.Equal(t, 0, embedder.calls)
}

func TestIndexDatabase_DeleteFailure(t *testing.T) {
	store := newMemStore()
	store.deleteErr = storage.ErrQdrantUnreachable
	cache := &recordingCache{}
	p := NewPipeline(&fakeEmbedder{}, store, nil, WithCacheInvalidator(cache))

	_, err := p.IndexDatabase(context.Background(), shop())
	assert.ErrorIs(t, err, storage.ErrQdrantUnreachable)
	assert.Empty(t, cache.invalidated)
}

type fakeSource struct {
	files map[string]*schema.Database
	order []string
}

func (f *fakeSource) ListSchemas(context.Context) ([]string, error) { return f.order, nil }

func (f *fakeSource) FetchSchema(_ context.Context, path string) (*schema.Database, error) {
	db, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: not found", path)
	}
	return db, nil
}

func TestIndexSource(t *testing.T) {
	crm := &schema.Database{Name: "crm", Tables: []schema.Table{{Name: "leads"}}}
	src := &fakeSource{
		order: []string{"shop.yaml", "broken.json", "crm.json"},
		files: map[string]*schema.Database{"shop.yaml": shop(), "crm.json": crm},
	}
	store := newMemStore()
	p := NewPipeline(&fakeEmbedder{}, store, nil)

	res, err := p.IndexSource(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalFiles)
	require.Len(t, res.Indexed, 2)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "broken.json", res.Failed[0].Path)

	names, err := p.ListDatabases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"crm", "shop"}, names)
}

func TestDeleteDatabase(t *testing.T) {
	store := newMemStore()
	cache := &recordingCache{}
	p := NewPipeline(&fakeEmbedder{}, store, nil, WithCacheInvalidator(cache))
	ctx := context.Background()

	_, err := p.IndexDatabase(ctx, shop())
	require.NoError(t, err)

	require.NoError(t, p.DeleteDatabase(ctx, "shop"))
	_, err = p.ListTables(ctx, "shop")
	assert.ErrorIs(t, err, storage.ErrDatabaseNotFound)
	assert.Equal(t, []string{"shop", "shop"}, cache.invalidated)
}

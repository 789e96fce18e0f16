package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// Config selects the Qdrant endpoint and collection layout.
type Config struct {
	Host       string
	Port       int
	Collection string // defaults to DefaultCollectionName
	Dimension  int    // defaults to DefaultVectorDimension
}

// QdrantStorage wraps the Qdrant client with connection management and health checks.
// Every point is scoped by its database_name payload field.
type QdrantStorage struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantStorage creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStorage(cfg Config) (*QdrantStorage, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollectionName
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultVectorDimension
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	storage := &QdrantStorage{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
	}

	if err := storage.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return storage, nil
}

// Dimension returns the configured vector size.
func (s *QdrantStorage) Dimension() int {
	return s.dimension
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// healthCheckWithRetry performs health check with exponential backoff.
func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(newBackoff(), ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}

	return nil
}

// EnsureCollection creates the collection with a cosine "content" vector and
// keyword indexes on the scope fields. Idempotent.
func (s *QdrantStorage) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     uint64(s.dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if err := s.createPayloadIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}

	return nil
}

// createPayloadIndexes indexes the fields every query filters on.
func (s *QdrantStorage) createPayloadIndexes(ctx context.Context) error {
	for _, field := range []string{fieldDatabase, fieldTable} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

// ClearCollection drops every indexed database and recreates the empty collection.
func (s *QdrantStorage) ClearCollection(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return s.EnsureCollection(ctx)
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *QdrantStorage) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	wait := true
	return backoff.Retry(func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           &wait,
			Points:         points,
		})
		return err
	}, backoff.WithContext(newBackoff(), ctx))
}

// UpsertDocuments stores schema documents with their embeddings in batches of 100.
func (s *QdrantStorage) UpsertDocuments(ctx context.Context, docs []*SchemaDocument) error {
	if len(docs) == 0 {
		return nil
	}

	for i, doc := range docs {
		if len(doc.Embedding) != s.dimension {
			return fmt.Errorf("%w: document %d (%s) has %d dimensions, expected %d",
				ErrDimensionMismatch, i, doc.Metadata.TableName, len(doc.Embedding), s.dimension)
		}
	}

	batchSize := 100
	for i := 0; i < len(docs); i += batchSize {
		end := min(i+batchSize, len(docs))
		batch := docs[i:end]
		points := make([]*qdrant.PointStruct, len(batch))

		for j, doc := range batch {
			points[j] = &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(doc.ID),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					vectorName: qdrant.NewVector(doc.Embedding...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					fieldDatabase:       doc.Metadata.DatabaseName,
					fieldTable:          doc.Metadata.TableName,
					fieldColumnCount:    doc.Metadata.ColumnCount,
					fieldHasForeignKeys: doc.Metadata.HasForeignKeys,
					fieldContent:        doc.Content,
				}),
			}
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// Search returns up to limit documents of one database, nearest first.
func (s *QdrantStorage) Search(ctx context.Context, embedding []float32, limit int, database string) ([]*ScoredDocument, error) {
	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(embedding), s.dimension)
	}

	using := vectorName
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(embedding...),
		Using:          &using,
		Filter:         databaseFilter(database),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search schema: %w", err)
	}

	scored := make([]*ScoredDocument, 0, len(results))
	for _, result := range results {
		scored = append(scored, &ScoredDocument{
			Document: documentFromPayload(result.Id.GetUuid(), result.Payload),
			Score:    float64(result.Score),
		})
	}
	return scored, nil
}

// DeleteDatabase removes every document scoped to database.
func (s *QdrantStorage) DeleteDatabase(ctx context.Context, database string) error {
	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelectorFilter(databaseFilter(database)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete database %s: %w", database, err)
	}
	return nil
}

// ListDatabases returns the distinct database names in the index, sorted.
func (s *QdrantStorage) ListDatabases(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	err := s.scroll(ctx, nil, qdrant.NewWithPayloadInclude(fieldDatabase), func(point *qdrant.RetrievedPoint) {
		if name := point.Payload[fieldDatabase].GetStringValue(); name != "" {
			seen[name] = true
		}
	})
	if err != nil {
		return nil, err
	}

	databases := make([]string, 0, len(seen))
	for name := range seen {
		databases = append(databases, name)
	}
	sort.Strings(databases)
	return databases, nil
}

// ListDocuments returns all documents of one database sorted by table name.
// Returns ErrDatabaseNotFound if nothing is indexed for it.
func (s *QdrantStorage) ListDocuments(ctx context.Context, database string) ([]*SchemaDocument, error) {
	var docs []*SchemaDocument
	err := s.scroll(ctx, databaseFilter(database), qdrant.NewWithPayload(true), func(point *qdrant.RetrievedPoint) {
		docs = append(docs, documentFromPayload(point.Id.GetUuid(), point.Payload))
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, database)
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Metadata.TableName < docs[j].Metadata.TableName
	})
	return docs, nil
}

const scrollPageSize = 100

// scroll pages through the collection scrollPageSize points at a time.
func (s *QdrantStorage) scroll(ctx context.Context, filter *qdrant.Filter, payload *qdrant.WithPayloadSelector, visit func(*qdrant.RetrievedPoint)) error {
	return scrollPages(ctx, func(ctx context.Context, offset *qdrant.PointId) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
		return s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			Offset:         offset,
			WithPayload:    payload,
		})
	}, visit)
}

// pageFetcher returns one page starting at offset, inclusive, and the offset
// of the next page. A nil next offset marks the last page.
type pageFetcher func(ctx context.Context, offset *qdrant.PointId) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)

func scrollPages(ctx context.Context, fetch pageFetcher, visit func(*qdrant.RetrievedPoint)) error {
	var offset *qdrant.PointId
	for {
		results, next, err := fetch(ctx, offset)
		if err != nil {
			return fmt.Errorf("failed to scroll documents: %w", err)
		}

		for _, point := range results {
			visit(point)
		}

		if next == nil {
			return nil
		}
		offset = next
	}
}

// CollectionInfo contains collection statistics
type CollectionInfo struct {
	PointsCount uint64
}

// GetCollectionInfo retrieves collection statistics including total points count.
func (s *QdrantStorage) GetCollectionInfo(ctx context.Context) (*CollectionInfo, error) {
	collection, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	return &CollectionInfo{
		PointsCount: collection.GetPointsCount(),
	}, nil
}

func databaseFilter(database string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(fieldDatabase, database),
		},
	}
}

func documentFromPayload(id string, payload map[string]*qdrant.Value) *SchemaDocument {
	return &SchemaDocument{
		ID:      id,
		Content: payload[fieldContent].GetStringValue(),
		Metadata: SchemaMetadata{
			DatabaseName:   payload[fieldDatabase].GetStringValue(),
			TableName:      payload[fieldTable].GetStringValue(),
			ColumnCount:    int(payload[fieldColumnCount].GetIntegerValue()),
			HasForeignKeys: payload[fieldHasForeignKeys].GetBoolValue(),
		},
	}
}

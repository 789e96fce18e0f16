// Package indexer embeds database schemas into the vector index.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/text2sql-server/internal/schema"
	"github.com/bull/text2sql-server/internal/storage"
)

// Embedder embeds many texts in one call, results in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the vector index as seen by the indexer.
type Store interface {
	UpsertDocuments(ctx context.Context, docs []*storage.SchemaDocument) error
	DeleteDatabase(ctx context.Context, database string) error
	ListDatabases(ctx context.Context) ([]string, error)
	ListDocuments(ctx context.Context, database string) ([]*storage.SchemaDocument, error)
}

// Describer fills in missing table descriptions before indexing.
type Describer interface {
	DescribeMissing(ctx context.Context, db *schema.Database) int
}

// CacheInvalidator drops cached answers that a re-index makes stale.
type CacheInvalidator interface {
	InvalidateDatabase(ctx context.Context, database string)
}

// Source supplies schema files, e.g. a GitHub directory.
type Source interface {
	ListSchemas(ctx context.Context) ([]string, error)
	FetchSchema(ctx context.Context, path string) (*schema.Database, error)
}

// IndexResult contains statistics about indexing one database.
type IndexResult struct {
	Database       string        `json:"database_name"`
	TablesIndexed  int           `json:"tables_indexed"`
	ColumnsIndexed int           `json:"columns_indexed"`
	Described      int           `json:"tables_described"`
	Duration       time.Duration `json:"-"`
}

// BatchResult contains statistics about indexing every schema of a Source.
type BatchResult struct {
	TotalFiles int
	Indexed    []*IndexResult
	Failed     []FailedSchema
	Duration   time.Duration
}

// FailedSchema represents a schema file that failed to index.
type FailedSchema struct {
	Path   string
	Reason string
}

// Pipeline orchestrates describing, embedding and storing schemas.
type Pipeline struct {
	embedder  Embedder
	store     Store
	describer Describer
	cache     CacheInvalidator
	logger    *slog.Logger
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithDescriber generates descriptions for undocumented tables.
func WithDescriber(d Describer) Option {
	return func(p *Pipeline) { p.describer = d }
}

// WithCacheInvalidator clears a database's cached answers after it changes.
func WithCacheInvalidator(c CacheInvalidator) Option {
	return func(p *Pipeline) { p.cache = c }
}

// NewPipeline creates a new indexing pipeline with the given components.
func NewPipeline(embedder Embedder, store Store, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IndexDatabase replaces everything indexed for db.Name with one document per table.
// Embeddings are computed before the old documents are deleted, so an
// embedding failure leaves the previous index intact.
func (p *Pipeline) IndexDatabase(ctx context.Context, db *schema.Database) (*IndexResult, error) {
	start := time.Now()
	if err := db.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	result := &IndexResult{Database: db.Name}
	if p.describer != nil {
		result.Described = p.describer.DescribeMissing(ctx, db)
	}

	docs := schema.BuildDocuments(db)
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if len(embeddings) != len(docs) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d documents", len(embeddings), len(docs))
	}
	for i := range docs {
		docs[i].Embedding = embeddings[i]
	}

	if err := p.store.DeleteDatabase(ctx, db.Name); err != nil {
		return nil, fmt.Errorf("clear previous index: %w", err)
	}
	if err := p.store.UpsertDocuments(ctx, docs); err != nil {
		return nil, fmt.Errorf("store documents: %w", err)
	}

	if p.cache != nil {
		p.cache.InvalidateDatabase(ctx, db.Name)
	}

	result.TablesIndexed = len(docs)
	result.ColumnsIndexed = db.ColumnCount()
	result.Duration = time.Since(start)

	p.logger.Info("Indexed schema",
		"database", db.Name,
		"tables", result.TablesIndexed,
		"columns", result.ColumnsIndexed,
		"described", result.Described,
		"duration", result.Duration,
	)
	return result, nil
}

// IndexSource indexes every schema file of src. A file that fails is recorded
// and skipped.
func (p *Pipeline) IndexSource(ctx context.Context, src Source) (*BatchResult, error) {
	start := time.Now()

	paths, err := src.ListSchemas(ctx)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	result := &BatchResult{TotalFiles: len(paths)}
	p.logger.Info("Found schema files", "count", len(paths))

	for _, path := range paths {
		db, err := src.FetchSchema(ctx, path)
		if err == nil {
			var indexed *IndexResult
			indexed, err = p.IndexDatabase(ctx, db)
			if err == nil {
				result.Indexed = append(result.Indexed, indexed)
				continue
			}
		}

		p.logger.Warn("Failed to index schema", "path", path, "error", err)
		result.Failed = append(result.Failed, FailedSchema{Path: path, Reason: err.Error()})
	}

	result.Duration = time.Since(start)
	p.logger.Info("Indexing complete",
		"successful", len(result.Indexed),
		"failed", len(result.Failed),
		"duration", result.Duration,
	)
	return result, nil
}

// DeleteDatabase removes every document of database and its cached answers.
func (p *Pipeline) DeleteDatabase(ctx context.Context, database string) error {
	if err := p.store.DeleteDatabase(ctx, database); err != nil {
		return err
	}
	if p.cache != nil {
		p.cache.InvalidateDatabase(ctx, database)
	}
	p.logger.Info("Deleted schema", "database", database)
	return nil
}

// ListDatabases returns the indexed database names.
func (p *Pipeline) ListDatabases(ctx context.Context) ([]string, error) {
	return p.store.ListDatabases(ctx)
}

// ListTables returns the indexed documents of database, one per table.
func (p *Pipeline) ListTables(ctx context.Context, database string) ([]*storage.SchemaDocument, error) {
	return p.store.ListDocuments(ctx, database)
}

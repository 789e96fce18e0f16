// Package retriever finds the schema documents most relevant to a question.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/bull/text2sql-server/internal/storage"
)

// Embedder turns the question into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index runs a nearest-neighbour search restricted to one database.
type Index interface {
	Search(ctx context.Context, embedding []float32, limit int, database string) ([]*storage.ScoredDocument, error)
}

// Result holds the retrieved documents in similarity order, nearest first.
type Result struct {
	ContextText string
	Documents   []string
	Metadata    []storage.SchemaMetadata
	Scores      []float64
}

// TablesUsed returns the distinct table names of the retrieved documents, sorted.
func (r *Result) TablesUsed() []string {
	seen := make(map[string]bool, len(r.Metadata))
	tables := make([]string, 0, len(r.Metadata))
	for _, m := range r.Metadata {
		if m.TableName == "" || seen[m.TableName] {
			continue
		}
		seen[m.TableName] = true
		tables = append(tables, m.TableName)
	}
	sort.Strings(tables)
	return tables
}

// Retriever embeds questions and queries the vector index. It never retries.
type Retriever struct {
	embedder Embedder
	index    Index
	logger   *slog.Logger
}

// New creates a Retriever.
func New(embedder Embedder, index Index, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		logger:   logger,
	}
}

// Retrieve returns up to topK documents of database ranked by similarity to question.
func (r *Retriever) Retrieve(ctx context.Context, question, database string, topK int) (*Result, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", topK)
	}

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	hits, err := r.index.Search(ctx, vector, topK, database)
	if err != nil {
		return nil, fmt.Errorf("search schema: %w", err)
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}

	result := &Result{
		Documents: make([]string, 0, len(hits)),
		Metadata:  make([]storage.SchemaMetadata, 0, len(hits)),
		Scores:    make([]float64, 0, len(hits)),
	}
	for _, hit := range hits {
		if hit == nil || hit.Document == nil {
			continue
		}
		result.Documents = append(result.Documents, hit.Document.Content)
		result.Metadata = append(result.Metadata, hit.Document.Metadata)
		result.Scores = append(result.Scores, hit.Score)
	}
	result.ContextText = FormatContext(result.Documents)

	r.logger.Debug("Retrieved schema context",
		"database", database,
		"documents", len(result.Documents),
		"tables", result.TablesUsed(),
	)
	return result, nil
}

// FormatContext joins document texts into the schema context placed in the prompt.
// Each document already starts with its "Table: <name>" header.
func FormatContext(documents []string) string {
	return strings.Join(documents, "\n\n")
}

package storage

// SchemaDocument is the indexed description of one table.
// Documents are immutable once stored; re-indexing a database replaces all of them.
type SchemaDocument struct {
	ID        string         // UUID derived from database and table name
	Content   string         // Text that was embedded
	Metadata  SchemaMetadata // Scope and shape of the table
	Embedding []float32      // Not populated on reads
}

// SchemaMetadata is stored as the point payload alongside Content.
type SchemaMetadata struct {
	DatabaseName   string `json:"database_name"`
	TableName      string `json:"table_name"`
	ColumnCount    int    `json:"column_count"`
	HasForeignKeys bool   `json:"has_foreign_keys"`
}

// ScoredDocument is a search hit with its cosine similarity.
type ScoredDocument struct {
	Document *SchemaDocument
	Score    float64
}

// DefaultCollectionName is the Qdrant collection holding every indexed database.
const DefaultCollectionName = "schema_embeddings"

// DefaultVectorDimension is the embedding size for text-embedding-3-small.
const DefaultVectorDimension = 1536

// vectorName is the named vector used for schema content.
const vectorName = "content"

// payload field names
const (
	fieldDatabase       = "database_name"
	fieldTable          = "table_name"
	fieldColumnCount    = "column_count"
	fieldHasForeignKeys = "has_foreign_keys"
	fieldContent        = "content"
)

// Package mcp exposes SQL generation and the schema index as MCP tools.
package mcp

// GenerateSQLInput defines the input parameters for the generate_sql tool.
type GenerateSQLInput struct {
	// Question is the natural-language question to answer.
	Question string `json:"question" jsonschema:"the natural-language question to turn into SQL"`
	// Database is the indexed database to query.
	Database string `json:"database" jsonschema:"name of an indexed database, see list_databases"`
	// IncludeExplanation requests a plain-language explanation of the SQL.
	IncludeExplanation bool `json:"include_explanation,omitempty" jsonschema:"also return a plain-language explanation of the query"`
}

// GenerateSQLOutput contains the generated query or the validator's objections.
type GenerateSQLOutput struct {
	SQLQuery    string   `json:"sql_query,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
	Confidence  float64  `json:"confidence"`
	TablesUsed  []string `json:"tables_used"`
	Warnings    []string `json:"warnings"`
	Cached      bool     `json:"cached"`
	// Rejected is true when the generated SQL failed validation; Errors lists why.
	Rejected bool     `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

// ValidateSQLInput defines the input parameters for the validate_sql tool.
type ValidateSQLInput struct {
	SQL string `json:"sql" jsonschema:"the SQL statement to check"`
}

// ValidateSQLOutput contains the validation outcome.
type ValidateSQLOutput struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	// Formatted is the reformatted statement, only set when IsValid.
	Formatted string `json:"formatted_sql,omitempty"`
}

// ListDatabasesInput takes no parameters.
type ListDatabasesInput struct{}

// ListDatabasesOutput contains every indexed database name.
type ListDatabasesOutput struct {
	Databases []string `json:"databases"`
	Count     int      `json:"count"`
}

// GetSchemaInput defines the input parameters for the get_schema tool.
type GetSchemaInput struct {
	Database string `json:"database" jsonschema:"name of an indexed database"`
}

// GetSchemaOutput contains the indexed table documents of one database.
type GetSchemaOutput struct {
	Database string        `json:"database"`
	Tables   []TableSchema `json:"tables"`
	Found    bool          `json:"found"`
}

// TableSchema is one indexed table.
type TableSchema struct {
	Name           string `json:"name"`
	ColumnCount    int    `json:"column_count"`
	HasForeignKeys bool   `json:"has_foreign_keys"`
	Document       string `json:"document"`
}

// StatusInput takes no parameters.
type StatusInput struct{}

// StatusOutput summarizes the schema index.
type StatusOutput struct {
	Databases   []string `json:"databases"`
	TotalTables int      `json:"total_tables"`
}

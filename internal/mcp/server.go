package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/text2sql-server/internal/pipeline"
	"github.com/bull/text2sql-server/internal/sqlguard"
	"github.com/bull/text2sql-server/internal/storage"
)

// QueryService is the query pipeline as used by the tools.
type QueryService interface {
	Generate(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	Validate(sql string) sqlguard.Result
	Sanitize(sql string) string
}

// SchemaCatalog lists what has been indexed.
type SchemaCatalog interface {
	ListDatabases(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, database string) ([]*storage.SchemaDocument, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Query   QueryService
	Catalog SchemaCatalog
	Version string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	impl := &mcp.Implementation{
		Name:    "text2sql-server",
		Version: version,
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_sql",
		Description: "Translate a natural-language question into a validated, read-only SQL query for an indexed database. Returns the query, confidence and the tables it was grounded on.",
	}, makeGenerateHandler(cfg.Query))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate_sql",
		Description: "Check a SQL statement for dangerous operations, stacked statements and syntax problems. Returns errors, advisory warnings and a formatted version when valid.",
	}, makeValidateHandler(cfg.Query))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_databases",
		Description: "List the databases whose schemas have been indexed.",
	}, makeListHandler(cfg.Catalog))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_schema",
		Description: "Return the indexed table descriptions of one database.",
	}, makeSchemaHandler(cfg.Catalog))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Summarize the schema index: indexed databases and total table count.",
	}, makeStatusHandler(cfg.Catalog))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

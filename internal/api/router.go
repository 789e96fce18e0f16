// Package api serves the query pipeline and the schema index over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bull/text2sql-server/internal/indexer"
	"github.com/bull/text2sql-server/internal/observability"
	"github.com/bull/text2sql-server/internal/pipeline"
	"github.com/bull/text2sql-server/internal/schema"
	"github.com/bull/text2sql-server/internal/sqlguard"
	"github.com/bull/text2sql-server/internal/storage"
	"github.com/bull/text2sql-server/internal/stream"
)

// DefaultMaxBodyBytes bounds request bodies, schema uploads included.
const DefaultMaxBodyBytes = 4 << 20

// QueryService is the query pipeline.
type QueryService interface {
	Generate(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	Stream(ctx context.Context, req pipeline.Request, em *stream.Emitter) error
	Validate(sql string) sqlguard.Result
	Sanitize(sql string) string
}

// SchemaIndex manages indexed schemas.
type SchemaIndex interface {
	IndexDatabase(ctx context.Context, db *schema.Database) (*indexer.IndexResult, error)
	DeleteDatabase(ctx context.Context, database string) error
	ListDatabases(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, database string) ([]*storage.SchemaDocument, error)
}

// HealthChecker reports whether the vector index is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Config holds the router's dependencies. MCP is mounted at /mcp when set.
type Config struct {
	Query        QueryService
	Schemas      SchemaIndex
	Health       HealthChecker
	MCP          http.Handler
	Logger       *slog.Logger
	ChunkDelay   time.Duration
	MaxBodyBytes int64
}

type handler struct {
	query      QueryService
	schemas    SchemaIndex
	logger     *slog.Logger
	chunkDelay time.Duration
	maxBody    int64
}

// NewRouter builds the HTTP routes.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	h := &handler{
		query:      cfg.Query,
		schemas:    cfg.Schemas,
		logger:     logger,
		chunkDelay: cfg.ChunkDelay,
		maxBody:    maxBody,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.LoggingMiddleware(logger))
	r.Use(observability.MetricsMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/", NewLandingHandler())
	r.Get("/health", NewHealthHandler(cfg.Health))
	r.Handle("/metrics", promhttp.Handler())
	if cfg.MCP != nil {
		r.Handle("/mcp", cfg.MCP)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/query", func(r chi.Router) {
			r.Post("/text-to-sql", h.textToSQL)
			r.Post("/text-to-sql/stream", h.textToSQLStream)
			r.Post("/validate", h.validateSQL)
		})
		r.Route("/schema", func(r chi.Router) {
			r.Get("/", h.listDatabases)
			r.Post("/index", h.indexSchema)
			r.Get("/{database}", h.getSchema)
			r.Delete("/{database}", h.deleteSchema)
		})
	})

	return r
}

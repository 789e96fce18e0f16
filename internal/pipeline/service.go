// Package pipeline turns a natural-language question into validated SQL:
// cache lookup, schema retrieval, generation, extraction, validation, scoring.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bull/text2sql-server/internal/cache"
	"github.com/bull/text2sql-server/internal/chain"
	"github.com/bull/text2sql-server/internal/confidence"
	"github.com/bull/text2sql-server/internal/observability"
	"github.com/bull/text2sql-server/internal/retriever"
	"github.com/bull/text2sql-server/internal/sqlguard"
)

const (
	// DefaultTopK is the number of schema documents retrieved per question.
	DefaultTopK = 5
	// DefaultMaxQuestionLength bounds the question in characters.
	DefaultMaxQuestionLength = 500
)

// Retriever fetches schema context for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question, database string, topK int) (*retriever.Result, error)
}

// Generator prompts the model for SQL and explanations.
type Generator interface {
	Generate(ctx context.Context, question, schemaContext string, examples []chain.Example) (*chain.Generation, error)
	Explain(ctx context.Context, sql, schemaContext string) (string, error)
}

// Validator gates and formats generated SQL.
type Validator interface {
	Validate(sql string) sqlguard.Result
	Sanitize(sql string) string
}

// Cache memoizes results. Implementations must swallow their own failures.
type Cache interface {
	Get(ctx context.Context, key string, dst any) bool
	Put(ctx context.Context, key string, value any)
}

// Request is one question against one indexed database.
type Request struct {
	Question           string
	Database           string
	IncludeExplanation bool
	TopK               int // 0 uses the service default
}

// Result is the response for a successful request.
type Result struct {
	SQLQuery      string   `json:"sql_query"`
	Explanation   string   `json:"explanation,omitempty"`
	Confidence    float64  `json:"confidence"`
	TablesUsed    []string `json:"tables_used"`
	Warnings      []string `json:"warnings"`
	SchemaContext string   `json:"schema_context,omitempty"`
	Cached        bool     `json:"cached"`
}

// Options configures a Service.
type Options struct {
	TopK              int
	MaxQuestionLength int
	Examples          []chain.Example
}

// Service runs the query pipeline. Every collaborator is injected; cache may be nil.
type Service struct {
	retriever Retriever
	generator Generator
	validator Validator
	scorer    confidence.Scorer
	cache     Cache
	opts      Options
	logger    *slog.Logger
}

// NewService wires the pipeline.
func NewService(
	retriever Retriever,
	generator Generator,
	validator Validator,
	scorer confidence.Scorer,
	cache Cache,
	opts Options,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if scorer == nil {
		scorer = confidence.NewStepScorer()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.MaxQuestionLength <= 0 {
		opts.MaxQuestionLength = DefaultMaxQuestionLength
	}
	return &Service{
		retriever: retriever,
		generator: generator,
		validator: validator,
		scorer:    scorer,
		cache:     cache,
		opts:      opts,
		logger:    logger,
	}
}

// Validate checks generated or user-supplied SQL without calling a model.
func (s *Service) Validate(sql string) sqlguard.Result {
	return s.validator.Validate(sql)
}

// Sanitize formats SQL that already passed Validate.
func (s *Service) Sanitize(sql string) string {
	return s.validator.Sanitize(sql)
}

// Generate answers req. Failures are *Error values; nothing is retried.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	result, err := s.generate(ctx, req)
	switch {
	case err == nil && result.Cached:
		observability.RecordOutcome("cache_hit")
	case err == nil:
		observability.RecordOutcome("ok")
	default:
		observability.RecordOutcome(string(KindOf(err)) + "_error")
	}
	return result, err
}

func (s *Service) generate(ctx context.Context, req Request) (*Result, error) {
	if err := s.checkRequest(&req); err != nil {
		return nil, err
	}

	key := cache.KeyFor(req.Question, req.Database)
	if cached, ok := s.lookup(ctx, key, req); ok {
		return cached, nil
	}

	start := time.Now()
	retrieved, err := s.retriever.Retrieve(ctx, req.Question, req.Database, req.TopK)
	observability.ObserveStage("retrieve", time.Since(start))
	if err != nil {
		s.logger.Error("Schema retrieval failed", "database", req.Database, "error", err)
		return nil, retrievalError(err)
	}

	start = time.Now()
	generation, err := s.generator.Generate(ctx, req.Question, retrieved.ContextText, s.opts.Examples)
	observability.ObserveStage("generate", time.Since(start))
	if err != nil {
		s.logger.Error("SQL generation failed", "database", req.Database, "error", err)
		return nil, generationError(err)
	}
	s.logger.Debug("Generated SQL candidate", "sql", generation.SQL)

	start = time.Now()
	validation := s.validator.Validate(generation.SQL)
	observability.ObserveStage("validate", time.Since(start))
	if !validation.IsValid {
		s.logger.Info("Generated SQL rejected",
			"database", req.Database,
			"errors", validation.Errors,
		)
		return nil, rejectedSQL(validation.Errors)
	}

	var explanation string
	if req.IncludeExplanation {
		start = time.Now()
		explanation, err = s.generator.Explain(ctx, generation.SQL, retrieved.ContextText)
		observability.ObserveStage("explain", time.Since(start))
		if err != nil {
			s.logger.Error("SQL explanation failed", "database", req.Database, "error", err)
			return nil, generationError(err)
		}
	}

	result := &Result{
		SQLQuery:      s.validator.Sanitize(generation.SQL),
		Explanation:   explanation,
		Confidence:    s.scorer.Score(len(retrieved.Documents)),
		TablesUsed:    retrieved.TablesUsed(),
		Warnings:      validation.Warnings,
		SchemaContext: retrieved.ContextText,
	}
	if result.Warnings == nil {
		result.Warnings = []string{}
	}

	if s.cache != nil {
		s.cache.Put(ctx, key, result)
	}

	s.logger.Info("Generated SQL",
		"database", req.Database,
		"tables", result.TablesUsed,
		"confidence", result.Confidence,
		"warnings", len(result.Warnings),
	)
	return result, nil
}

// lookup returns a cached result usable for req. An entry without an
// explanation does not satisfy a request that asks for one.
func (s *Service) lookup(ctx context.Context, key string, req Request) (*Result, bool) {
	if s.cache == nil {
		return nil, false
	}

	var cached Result
	if !s.cache.Get(ctx, key, &cached) {
		return nil, false
	}
	if req.IncludeExplanation && cached.Explanation == "" {
		return nil, false
	}
	if !req.IncludeExplanation {
		cached.Explanation = ""
	}
	cached.Cached = true

	s.logger.Info("Returning cached result", "database", req.Database)
	return &cached, true
}

func (s *Service) checkRequest(req *Request) error {
	req.Question = strings.TrimSpace(req.Question)
	req.Database = strings.TrimSpace(req.Database)

	if req.Question == "" {
		return requestError("question must not be empty")
	}
	if n := utf8.RuneCountInString(req.Question); n > s.opts.MaxQuestionLength {
		return requestError("question exceeds the maximum length")
	}
	if req.Database == "" {
		return requestError("database name must not be empty")
	}
	if req.TopK <= 0 {
		req.TopK = s.opts.TopK
	}
	return nil
}

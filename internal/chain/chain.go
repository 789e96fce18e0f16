// Package chain prompts a language model for SQL and for explanations of SQL.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bull/text2sql-server/internal/extract"
	"github.com/bull/text2sql-server/internal/llm"
)

// Generation is the extracted SQL together with the model's raw reply.
type Generation struct {
	SQL string
	Raw string
}

// Chain builds prompts and calls the completion provider. A failed call is
// returned as is; the chain never retries or returns partial output.
type Chain struct {
	provider llm.Provider
	opts     llm.Options
	logger   *slog.Logger
}

// New creates a Chain that calls provider with opts.
func New(provider llm.Provider, opts llm.Options, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		provider: provider,
		opts:     opts,
		logger:   logger,
	}
}

// Generate asks the model to answer question with SQL over schemaContext.
func (c *Chain) Generate(ctx context.Context, question, schemaContext string, examples []Example) (*Generation, error) {
	messages := []llm.Message{
		llm.System(SystemPrompt(schemaContext, examples)),
		llm.User(question),
	}

	raw, err := c.provider.Complete(ctx, messages, c.opts)
	if err != nil {
		return nil, fmt.Errorf("generate SQL: %w", err)
	}

	sql := extract.SQL(raw)
	c.logger.Debug("Generated SQL candidate", "sql", sql, "raw_length", len(raw))

	return &Generation{SQL: sql, Raw: raw}, nil
}

// Explain asks the model to describe sql in plain language.
func (c *Chain) Explain(ctx context.Context, sql, schemaContext string) (string, error) {
	messages := []llm.Message{
		llm.User(ExplainPrompt(sql, schemaContext)),
	}

	explanation, err := c.provider.Complete(ctx, messages, c.opts)
	if err != nil {
		return "", fmt.Errorf("explain SQL: %w", err)
	}
	return strings.TrimSpace(explanation), nil
}

// Package main provides the text-to-SQL server entry point.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bull/text2sql-server/internal/api"
	"github.com/bull/text2sql-server/internal/app"
	"github.com/bull/text2sql-server/internal/chain"
	"github.com/bull/text2sql-server/internal/confidence"
	"github.com/bull/text2sql-server/internal/config"
	"github.com/bull/text2sql-server/internal/embedding"
	"github.com/bull/text2sql-server/internal/indexer"
	mcpserver "github.com/bull/text2sql-server/internal/mcp"
	"github.com/bull/text2sql-server/internal/observability"
	"github.com/bull/text2sql-server/internal/pipeline"
	"github.com/bull/text2sql-server/internal/retriever"
	"github.com/bull/text2sql-server/internal/sqlguard"
)

// version is set at build time with -ldflags.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// In stdio mode stdout carries the MCP protocol, so logs go to stderr.
	logger := observability.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	app.CheckDimension(cfg, logger)

	store, err := app.OpenStorage(ctx, cfg.Qdrant)
	if err != nil {
		return err
	}
	defer store.Close()

	providers, err := app.NewProviders(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	defer providers.Close()

	pool := embedding.NewWorkerPool(providers.Embedder, cfg.Retrieval.EmbedWorkers)
	defer pool.Close()

	queryCache, closeCache, err := app.OpenCache(ctx, cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	var serviceCache pipeline.Cache
	if queryCache != nil {
		serviceCache = queryCache
		go queryCache.RunJanitor(ctx, cfg.Cache.TTL)
	}

	service := pipeline.NewService(
		retriever.New(pool, store, logger),
		chain.New(providers.Chat, app.Options(cfg.LLM), logger),
		sqlguard.NewValidator(logger),
		confidence.NewStepScorer(),
		serviceCache,
		pipeline.Options{
			TopK:              cfg.Retrieval.TopK,
			MaxQuestionLength: cfg.Retrieval.MaxQuestionLength,
		},
		logger,
	)
	schemas := indexer.NewPipeline(pool, store, logger,
		app.IndexOptions(cfg.Index, providers.Chat, queryCache, logger)...)

	mcp := mcpserver.NewServer(&mcpserver.Config{
		Query:   service,
		Catalog: schemas,
		Version: version,
	})

	if !cfg.HTTP.ServerMode {
		logger.Info("Starting text-to-SQL MCP server (stdio mode)")
		return mcp.Run(ctx)
	}

	router := api.NewRouter(api.Config{
		Query:      service,
		Schemas:    schemas,
		Health:     store,
		MCP:        mcpserver.NewHTTPHandler(mcp, &mcpserver.HTTPHandlerOptions{Stateless: true}),
		Logger:     logger,
		ChunkDelay: cfg.Stream.ChunkDelay,
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", cfg.HTTP.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

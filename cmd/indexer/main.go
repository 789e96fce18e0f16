// Package main provides the indexer CLI for loading database schemas into Qdrant.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/text2sql-server/internal/app"
	"github.com/bull/text2sql-server/internal/config"
	"github.com/bull/text2sql-server/internal/embedding"
	ghclient "github.com/bull/text2sql-server/internal/github"
	"github.com/bull/text2sql-server/internal/indexer"
	"github.com/bull/text2sql-server/internal/markdown"
	"github.com/bull/text2sql-server/internal/metadata"
	"github.com/bull/text2sql-server/internal/observability"
	"github.com/bull/text2sql-server/internal/schema"
	"github.com/bull/text2sql-server/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "text2sql-indexer",
	Short: "Database schema indexing tool",
	Long:  "CLI tool for managing the schema index used by the text-to-SQL server",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger = observability.NewLogger(cfg.Log, os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
	SilenceUsage: true,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index a schema file or a GitHub directory of schema files",
	Long: `Replaces the indexed documents of each database with one document per table.

Sources:
  --file schema.json|schema.yaml   a single schema file
  --github owner/repo[/path]       every .json/.yaml/.yml file below path

Options:
  --dictionary dict.md   merge table and column descriptions from a markdown data dictionary
  --describe             ask the LLM to describe tables that have no description

Environment variables:
  TEXT2SQL_QDRANT_HOST     Qdrant hostname (default: localhost)
  TEXT2SQL_QDRANT_PORT     Qdrant gRPC port (default: 6334)
  TEXT2SQL_LLM_PROVIDER    openai or gemini (default: openai)
  OPENAI_API_KEY           OpenAI API key (required for openai)
  GEMINI_API_KEY           Gemini API key (required for gemini)
  GITHUB_TOKEN             GitHub token for higher rate limits (optional)`,
	RunE: runIndex,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <database>",
	Short: "Remove every indexed table of a database",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var listCmd = &cobra.Command{
	Use:   "list [database]",
	Short: "List indexed databases, or the tables of one database",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runList,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics",
	RunE:  runStatus,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every indexed database",
	RunE:  runClear,
}

var (
	cfg    *config.Config
	logger *slog.Logger

	flagFile       string
	flagGitHub     string
	flagDictionary string
	flagDescribe   bool
	flagYes        bool
)

func init() {
	indexCmd.Flags().StringVar(&flagFile, "file", "", "schema file to index (.json, .yaml, .yml)")
	indexCmd.Flags().StringVar(&flagGitHub, "github", "", "GitHub directory of schema files (owner/repo[/path])")
	indexCmd.Flags().StringVar(&flagDictionary, "dictionary", "", "markdown data dictionary to merge into the schema")
	indexCmd.Flags().BoolVar(&flagDescribe, "describe", false, "generate descriptions for undocumented tables")
	indexCmd.MarkFlagsMutuallyExclusive("file", "github")
	indexCmd.MarkFlagsOneRequired("file", "github")

	clearCmd.Flags().BoolVar(&flagYes, "yes", false, "confirm dropping the whole index")

	rootCmd.AddCommand(indexCmd, deleteCmd, listCmd, statusCmd, clearCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	start := time.Now()

	app.CheckDimension(cfg, logger)

	fmt.Printf("Connecting to Qdrant at %s:%d...\n", cfg.Qdrant.Host, cfg.Qdrant.Port)
	store, err := app.OpenStorage(ctx, cfg.Qdrant)
	if err != nil {
		return err
	}
	defer store.Close()
	fmt.Println("Qdrant healthy")

	providers, err := app.NewProviders(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	defer providers.Close()

	pool := embedding.NewWorkerPool(providers.Embedder, cfg.Retrieval.EmbedWorkers)
	defer pool.Close()

	var opts []indexer.Option
	if flagDescribe {
		opts = append(opts, indexer.WithDescriber(metadata.NewDescriber(providers.Chat, 0, logger)))
	}
	// Only a shared SQLite cache outlives this process, so only it needs invalidating.
	if cfg.Cache.Enabled && cfg.Cache.Backend == config.CacheBackendSQLite {
		queryCache, closeCache, err := app.OpenCache(ctx, cfg.Cache, logger)
		if err != nil {
			return err
		}
		defer closeCache()
		opts = append(opts, indexer.WithCacheInvalidator(queryCache))
	}

	var dict *markdown.Dictionary
	if flagDictionary != "" {
		dict, err = markdown.LoadDictionary(flagDictionary)
		if err != nil {
			return err
		}
	}

	pipeline := indexer.NewPipeline(pool, store, logger, opts...)

	if flagFile != "" {
		db, err := schema.LoadFile(flagFile)
		if err != nil {
			return err
		}
		if dict != nil {
			fmt.Printf("Applied %d descriptions from %s\n", dict.Apply(db), flagDictionary)
		}

		result, err := pipeline.IndexDatabase(ctx, db)
		if err != nil {
			return fmt.Errorf("Indexing failed: %w", err)
		}
		printIndexResult(result)
		fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Millisecond))
		return nil
	}

	loc, err := ghclient.ParseLocation(flagGitHub)
	if err != nil {
		return err
	}
	ghClient, err := ghclient.NewClient(cfg.GitHub.Token)
	if err != nil {
		return fmt.Errorf("Failed to create GitHub client: %w", err)
	}
	fetcher := ghclient.NewFetcher(ghClient, loc)

	commit, err := fetcher.GetLatestCommitSHA(ctx)
	if err != nil {
		return fmt.Errorf("Failed to resolve latest commit: %w", err)
	}
	fmt.Printf("Indexing schemas from %s at %s...\n", loc, shortSHA(commit))

	var src indexer.Source = fetcher
	if dict != nil {
		src = dictionarySource{Source: fetcher, dict: dict}
	}
	result, err := pipeline.IndexSource(ctx, src)
	if err != nil {
		return fmt.Errorf("Indexing failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Indexing complete!")
	fmt.Printf("  Schemas: %d/%d\n", len(result.Indexed), result.TotalFiles)
	for _, r := range result.Indexed {
		printIndexResult(r)
	}
	if len(result.Failed) > 0 {
		fmt.Println()
		fmt.Println("Failed schemas:")
		for _, failed := range result.Failed {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}
	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Second))
	return nil
}

// dictionarySource merges dictionary descriptions into every fetched schema.
type dictionarySource struct {
	indexer.Source
	dict *markdown.Dictionary
}

func (s dictionarySource) FetchSchema(ctx context.Context, path string) (*schema.Database, error) {
	db, err := s.Source.FetchSchema(ctx, path)
	if err != nil {
		return nil, err
	}
	s.dict.Apply(db)
	return db, nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	store, err := app.OpenStorage(ctx, cfg.Qdrant)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.ListDocuments(ctx, args[0]); err != nil {
		return err
	}
	if err := store.DeleteDatabase(ctx, args[0]); err != nil {
		return err
	}

	if cfg.Cache.Enabled && cfg.Cache.Backend == config.CacheBackendSQLite {
		queryCache, closeCache, err := app.OpenCache(ctx, cfg.Cache, logger)
		if err != nil {
			return err
		}
		defer closeCache()
		queryCache.InvalidateDatabase(ctx, args[0])
	}

	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	store, err := app.OpenStorage(ctx, cfg.Qdrant)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 1 {
		docs, err := store.ListDocuments(ctx, args[0])
		if err != nil {
			return err
		}
		printTables(docs)
		return nil
	}

	databases, err := store.ListDatabases(ctx)
	if err != nil {
		return err
	}
	if len(databases) == 0 {
		fmt.Println("No databases indexed")
		return nil
	}
	for _, name := range databases {
		fmt.Println(name)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	store, err := app.OpenStorage(ctx, cfg.Qdrant)
	if err != nil {
		return err
	}
	defer store.Close()

	info, err := store.GetCollectionInfo(ctx)
	if err != nil {
		return err
	}
	databases, err := store.ListDatabases(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Collection: %s\n", cfg.Qdrant.Collection)
	fmt.Printf("  Dimension: %d\n", store.Dimension())
	fmt.Printf("  Tables: %d\n", info.PointsCount)
	fmt.Printf("  Databases: %d\n", len(databases))
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	if !flagYes {
		return fmt.Errorf("refusing to clear the index without --yes")
	}
	ctx, cancel := signalContext()
	defer cancel()

	store, err := app.OpenStorage(ctx, cfg.Qdrant)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.ClearCollection(ctx); err != nil {
		return fmt.Errorf("Failed to clear collection: %w", err)
	}
	fmt.Println("Collection cleared")
	return nil
}

func printIndexResult(r *indexer.IndexResult) {
	fmt.Printf("  %s: %d tables, %d columns", r.Database, r.TablesIndexed, r.ColumnsIndexed)
	if r.Described > 0 {
		fmt.Printf(", %d described", r.Described)
	}
	fmt.Println()
}

func printTables(docs []*storage.SchemaDocument) {
	for _, doc := range docs {
		fk := ""
		if doc.Metadata.HasForeignKeys {
			fk = " (has foreign keys)"
		}
		fmt.Printf("%s: %d columns%s\n", doc.Metadata.TableName, doc.Metadata.ColumnCount, fk)
	}
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

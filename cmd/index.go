package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/ayudante-ai/ayudante/db"
	"github.com/ayudante-ai/ayudante/internal/config"
	"github.com/ayudante-ai/ayudante/internal/knowledge"
)

var indexCmd = &cobra.Command{
	Use:   "index <documents.json>",
	Short: "Load documents into the knowledge base",
	Long: `Index reads a JSON file of documents and loads them into the
vector store. The file is an array of objects:

  [{"content": "...", "metadata": {"source": "..."}}, ...]

Each document is embedded with the configured Voyage model and stored
with its embedding for similarity search.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(args[0])
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(path string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateIndex(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(cfg.Environment)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading documents file: %w", err)
	}

	var docs []knowledge.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("parsing documents file: %w", err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents in %s", path)
	}

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("creating connection pool: %w", err)
	}
	defer pool.Close()

	embedder := knowledge.NewEmbedder(cfg.VoyageAPIKey, cfg.EmbedderModel, logger)
	service := knowledge.NewService(embedder, knowledge.NewStore(pool, logger),
		cfg.SearchTopK, cfg.SearchThreshold, logger)

	if err := service.Index(ctx, docs); err != nil {
		return fmt.Errorf("indexing documents: %w", err)
	}

	logger.Info("documents indexed", "count", len(docs), "file", path)
	fmt.Printf("Indexed %d documents from %s\n", len(docs), path)
	return nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/ayudante-ai/ayudante/db"
	"github.com/ayudante-ai/ayudante/internal/api"
	"github.com/ayudante-ai/ayudante/internal/config"
	"github.com/ayudante-ai/ayudante/internal/knowledge"
	"github.com/ayudante-ai/ayudante/internal/model"
	"github.com/ayudante-ai/ayudante/internal/observability"
	"github.com/ayudante-ai/ayudante/internal/ratelimit"
	"github.com/ayudante-ai/ayudante/internal/store"
	"github.com/ayudante-ai/ayudante/internal/tools"
	"github.com/ayudante-ai/ayudante/internal/turn"
)

// Server timeout configuration. The write timeout must cover a full
// streamed turn: two generation passes plus tool execution.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 5 * time.Minute
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (host:port), overrides config")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	addr := cfg.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(cfg.Environment)
	logger.Info("starting ayudante server", "version", version)

	shutdownTracing, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	}, logger)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("flushing traces failed", "error", err)
		}
	}()

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("creating connection pool: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	st := store.New(pool, logger)

	embedder := knowledge.NewEmbedder(cfg.VoyageAPIKey, cfg.EmbedderModel, logger)
	knowledgeStore := knowledge.NewStore(pool, logger)
	retrieval := knowledge.NewService(embedder, knowledgeStore, cfg.SearchTopK, cfg.SearchThreshold, logger)

	searchTool, err := tools.NewSearchTool(retrieval, logger)
	if err != nil {
		return fmt.Errorf("building search tool: %w", err)
	}
	saveTool, err := tools.NewSaveTool(st, logger)
	if err != nil {
		return fmt.Errorf("building save tool: %w", err)
	}
	calculateTool, err := tools.NewCalculateTool(logger)
	if err != nil {
		return fmt.Errorf("building calculate tool: %w", err)
	}

	registry, err := tools.NewRegistry(searchTool, saveTool, calculateTool)
	if err != nil {
		return fmt.Errorf("building tool registry: %w", err)
	}

	orchestrator := turn.New(
		model.NewAnthropic(cfg.AnthropicAPIKey, cfg.ModelName, logger),
		registry,
		tools.NewExecutor(registry, logger),
		st,
		turn.Config{
			Temperature:   cfg.Temperature,
			MaxTokens:     cfg.MaxTokens,
			HistoryBudget: cfg.HistoryBudget,
		},
		logger,
	)

	server, err := api.NewServer(api.ServerConfig{
		Logger:       logger,
		Orchestrator: orchestrator,
		Store:        st,
		Limiter:      ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitWindow),
		Pool:         pool,
		HMACSecret:   []byte(cfg.HMACSecret),
		CORSOrigins:  cfg.CORSOrigins,
		IsDev:        cfg.Environment == "dev",
		TrustProxy:   cfg.TrustProxy,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", addr,
		"api", "/api/v1/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/schemalens/schemalens-engine/pkg/adapters/datasource"
	_ "github.com/schemalens/schemalens-engine/pkg/adapters/datasource/mssql"
	_ "github.com/schemalens/schemalens-engine/pkg/adapters/datasource/mysql"
	_ "github.com/schemalens/schemalens-engine/pkg/adapters/datasource/postgres"
	_ "github.com/schemalens/schemalens-engine/pkg/adapters/datasource/sqlite"
	"github.com/schemalens/schemalens-engine/pkg/config"
	"github.com/schemalens/schemalens-engine/pkg/guardrail"
	"github.com/schemalens/schemalens-engine/pkg/lifecycle"
	"github.com/schemalens/schemalens-engine/pkg/logging"
	"github.com/schemalens/schemalens-engine/pkg/mcp"
	"github.com/schemalens/schemalens-engine/pkg/mcp/tools"
	"github.com/schemalens/schemalens-engine/pkg/planner"
	"github.com/schemalens/schemalens-engine/pkg/retrieval"
	"github.com/schemalens/schemalens-engine/pkg/sqlast"
)

// Version is set at build time via ldflags.
var Version = "dev"

const (
	exitConfigError = 2
	exitInitError   = 3

	connectTimeout = 15 * time.Second
	stopGrace      = 10 * time.Second
)

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(exitConfigError)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(exitConfigError)
	}
	defer func() { _ = logger.Sync() }()

	os.Exit(run(cfg, logger))
}

func run(cfg *config.Config, logger *zap.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting schemalens-engine",
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.DatabaseURL)))

	adapter, err := datasource.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("opening database adapter failed", zap.String("error", logging.SanitizeError(err)))
		return exitInitError
	}
	defer func() { _ = adapter.Close() }()

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	err = adapter.TestConnection(connectCtx)
	cancel()
	if err != nil {
		logger.Error("database unreachable", zap.String("error", logging.SanitizeError(err)))
		return exitInitError
	}

	var encoder retrieval.Encoder
	if cfg.EmbeddingsConfigured() {
		encoder = retrieval.NewOpenAIEncoder(cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL, cfg.EmbeddingModel)
		logger.Info("embeddings enabled", zap.String("model", cfg.EmbeddingModel))
	}

	ast, err := sqlast.NewService(logger)
	if err != nil {
		logger.Error("sql service init failed", zap.Error(err))
		return exitInitError
	}

	dialect, err := sqlast.NormalizeDialect(adapter.Dialect())
	if err != nil {
		logger.Error("unsupported dialect", zap.Error(err))
		return exitInitError
	}

	coordinator := lifecycle.NewCoordinator(cfg, adapter, encoder, logger)
	coordinator.Start(ctx)
	defer coordinator.Stop(stopGrace)

	deps := &tools.Deps{
		Coordinator: coordinator,
		Guardrail: guardrail.New(adapter, ast, dialect, coordinator.Card,
			guardrail.Config{RowLimit: cfg.RowLimit, MaxCellChars: cfg.MaxCellChars}, logger),
		AST:        ast,
		Planner:    planner.Config{},
		DebugTools: cfg.DebugTools,
		Logger:     logger,
	}

	srv := mcp.NewServer("schemalens-engine", cfg.Version, logger)
	tools.RegisterAll(srv.MCP(), deps)

	if cfg.HTTPAddr != "" {
		return serveHTTP(ctx, cfg.HTTPAddr, srv, logger)
	}
	return serveStdio(ctx, srv, logger)
}

func serveStdio(ctx context.Context, srv *mcp.Server, logger *zap.Logger) int {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return 0
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			logger.Error("stdio server failed", zap.Error(err))
			return exitInitError
		}
		return 0
	}
}

func serveHTTP(ctx context.Context, addr string, srv *mcp.Server, logger *zap.Logger) int {
	mux := http.NewServeMux()
	mux.Handle("/mcp", srv.NewStreamableHTTPServer())

	httpServer := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()
	logger.Info("serving MCP over HTTP", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return 0
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", zap.Error(err))
			return exitInitError
		}
		return 0
	}
}

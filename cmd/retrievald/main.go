// Retrievald is a multi-tenant document retrieval daemon.
//
// It maintains one shared core knowledge base plus per-client private
// knowledge bases, each backed by a flat vector index over chunked
// document embeddings, and answers queries by fusing results from the
// core, client, and general stores.
//
// Configuration is loaded from an optional YAML file and RETRIEVALD_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	retrievald
//
//	# Configure via environment
//	RETRIEVALD_SERVER_PORT=5000 RETRIEVALD_EMBEDDING_BASE_URL=http://localhost:8080 retrievald
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrievald/internal/config"
	"github.com/fyrsmithlabs/retrievald/internal/docs"
	"github.com/fyrsmithlabs/retrievald/internal/embeddings"
	"github.com/fyrsmithlabs/retrievald/internal/ingest"
	"github.com/fyrsmithlabs/retrievald/internal/logging"
	"github.com/fyrsmithlabs/retrievald/internal/query"
	"github.com/fyrsmithlabs/retrievald/internal/responder"
	"github.com/fyrsmithlabs/retrievald/internal/server"
	"github.com/fyrsmithlabs/retrievald/internal/store"
	"github.com/fyrsmithlabs/retrievald/internal/telemetry"
	"github.com/labstack/echo/v4"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  retrievald           Start the retrievald daemon\n")
			fmt.Fprintf(os.Stderr, "  retrievald version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("retrievald by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the retrievald daemon and blocks until the context is
// cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("starting retrievald",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("core_dir", cfg.Stores.CoreDir),
		zap.String("clients_dir", cfg.Stores.ClientsDir))

	// The meter provider must be installed before any package creates its
	// instruments.
	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	rsp, err := responder.FromConfig(responder.Config{
		BaseURL: cfg.Responder.BaseURL,
		Model:   cfg.Responder.Model,
		APIKey:  cfg.Responder.APIKey,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize responder: %w", err)
	}

	chunker := docs.NewChunker(cfg.Documents.ChunkSize, cfg.Documents.ChunkOverlap)
	registry := store.NewRegistry(cfg.Stores.CoreDir, cfg.Stores.ClientsDir, chunker, embedder, logger)

	if err := seedCoreStore(ctx, cfg, registry, logger); err != nil {
		return fmt.Errorf("failed to seed core store: %w", err)
	}

	ingestor := ingest.NewOrchestrator(registry, logger.Named("ingest"))
	aggregator := query.NewAggregator(registry, rsp, cfg.Documents.ServiceURL, logger.Named("query"))

	srv, err := server.NewServer(ingestor, aggregator, logger.Named("http"), &server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if handler := tel.Handler(); handler != nil {
		srv.Echo().GET("/metrics", echo.WrapHandler(handler))
		logger.Info("metrics endpoint registered", zap.String("path", "/metrics"))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// seedCoreStore builds the core store from the seed directory on first
// start. An already-persisted core store or a missing seed directory skips
// the build.
func seedCoreStore(ctx context.Context, cfg *config.Config, registry *store.Registry, logger *zap.Logger) error {
	coreStore, err := registry.GetStore(store.CoreTenant)
	if err != nil {
		return err
	}
	if coreStore.ExistsOnDisk() {
		logger.Info("core store loaded from disk", zap.Int("vectors", coreStore.Count()))
		return nil
	}

	if _, err := os.Stat(cfg.Stores.CoreSeedDir); err != nil {
		logger.Info("no core seed directory, skipping initial build",
			zap.String("dir", cfg.Stores.CoreSeedDir))
		return nil
	}

	documents, err := docs.LoadAll(ctx, cfg.Stores.CoreSeedDir, logger)
	if err != nil {
		return err
	}
	if len(documents) == 0 {
		logger.Info("no core seed documents found, skipping initial build",
			zap.String("dir", cfg.Stores.CoreSeedDir))
		return nil
	}

	lock := registry.GetLock(store.CoreTenant)
	lock.Lock()
	defer lock.Unlock()

	logger.Info("building core store", zap.Int("documents", len(documents)))
	return coreStore.BuildFromDocuments(ctx, documents, nil)
}

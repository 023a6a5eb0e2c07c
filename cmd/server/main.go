// Package main runs the probability query server:
// - HTTP + WebSocket query API
// - periodic batch refresh from the catalog
// - health, status and Prometheus metrics
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pickem-lab/internal/api"
	"pickem-lab/internal/backend"
	"pickem-lab/internal/config"
	"pickem-lab/internal/correlation"
	"pickem-lab/internal/ingestion"
	"pickem-lab/internal/probability"
)

func main() {
	envFile := flag.String("env-file", ".env", "KEY=VALUE file loaded before reading the environment")
	configPath := flag.String("config", os.Getenv("PICKEM_CONFIG"), "YAML config file (optional)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory catalog and query log")
	batchFile := flag.String("batch-file", "", "Batch file to ingest into the catalog on startup")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if err := config.LoadEnvFile(*envFile); err != nil {
		logger.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *useMemory {
		cfg.Catalog.Backend = config.BackendMemory
		cfg.QueryLog.Backend = config.QueryLogMemory
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid config: %v", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	catalog, closeCatalog, err := backend.OpenCatalog(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to open %s catalog: %v", cfg.Catalog.Backend, err)
	}
	defer closeCatalog()

	queryLog, closeQueryLog, err := backend.OpenQueryLog(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to open query log: %v", err)
	}
	defer closeQueryLog()

	if *batchFile != "" {
		manager := ingestion.NewManager(ingestion.ManagerOptions{
			Source: ingestion.NewFileSource(*batchFile),
			Writer: catalog,
			Logger: log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile),
		})
		if _, err := manager.Ingest(ctx); err != nil {
			logger.Fatalf("Failed to ingest %s: %v", *batchFile, err)
		}
	}

	svc := probability.NewService(probability.Options{
		Catalog:  catalog,
		QueryLog: queryLog,
		Engine: correlation.NewEngine(correlation.Options{
			Workers:          cfg.Correlation.Workers,
			ParallelMinWords: cfg.Correlation.ParallelMinWords,
		}),
		Namespace: cfg.Namespace,
		Logger:    logger,
	})

	if _, err := svc.Refresh(ctx); err != nil {
		if !errors.Is(err, probability.ErrNoData) {
			logger.Fatalf("Initial batch load failed: %v", err)
		}
		logger.Println("No simulation batch yet, waiting for ingestion")
	}
	if cfg.RefreshInterval > 0 {
		go svc.Run(ctx, cfg.RefreshInterval)
	}

	wsCfg := api.DefaultWSConfig()
	wsCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	apiServer := api.NewServer(api.Options{
		Service:        svc,
		RequestTimeout: cfg.RequestTimeout,
		WS:             &wsCfg,
		Logger:         log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lshortfile),
	})
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	// Closed once in-flight requests have drained
	drained := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		go func() {
			sig := <-sigCh
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		}()

		shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
		defer stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}
		close(drained)
	}()

	logger.Printf("Starting HTTP server on %s (catalog=%s, query_log=%s, namespace=%s)",
		cfg.HTTP.Addr, cfg.Catalog.Backend, cfg.QueryLog.Backend, cfg.Namespace)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("HTTP server error: %v", err)
	}
	<-drained

	logger.Println("Shutdown complete")
}

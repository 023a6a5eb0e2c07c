package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"pickem-lab/internal/backend"
	"pickem-lab/internal/config"
	"pickem-lab/internal/ingestion"
	"pickem-lab/internal/observability"
)

func main() {
	// Parse flags
	envFile := flag.String("env-file", ".env", "KEY=VALUE file loaded before reading the environment")
	configPath := flag.String("config", os.Getenv("PICKEM_CONFIG"), "YAML config file (optional)")
	file := flag.String("file", "", "Batch file to ingest (JSON, optionally gzipped)")
	catalogBackend := flag.String("backend", "", "Catalog backend: redis, postgres or sqlite (overrides config)")
	clearFirst := flag.Bool("clear", false, "Drop the previous batch before writing (redis only)")
	workers := flag.Int("workers", 8, "Concurrent player bitmap writes")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile)

	if *file == "" {
		logger.Fatal("--file is required")
	}
	if err := config.LoadEnvFile(*envFile); err != nil {
		logger.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if *catalogBackend != "" {
		cfg.Catalog.Backend = *catalogBackend
	}
	if cfg.Catalog.Backend == config.BackendMemory {
		logger.Fatal("The memory backend does not outlive this process; use redis, postgres or sqlite")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid config: %v", err)
	}

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, closeCatalog, err := backend.OpenCatalog(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to open %s catalog: %v", cfg.Catalog.Backend, err)
	}
	defer closeCatalog()

	if *clearFirst {
		if _, ok := catalog.(ingestion.Clearer); !ok {
			logger.Printf("Warning: %s catalog cannot clear; rows are overwritten per key", cfg.Catalog.Backend)
		}
	}

	manager := ingestion.NewManager(ingestion.ManagerOptions{
		Source:     ingestion.NewFileSource(*file),
		Writer:     catalog,
		ClearFirst: *clearFirst,
		Workers:    *workers,
		Logger:     logger,
	})

	res, err := manager.Ingest(ctx)
	if err != nil {
		closeCatalog()
		logger.Fatalf("Ingestion failed: %v", err)
	}

	logger.Printf("Ingested %s into %s (namespace %s): num_sims=%d players=%d bitmaps=%d in %v",
		*file, cfg.Catalog.Backend, cfg.Namespace, res.NumSims, res.Players, res.Bitmaps, res.Duration)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pickem-lab/internal/backend"
	"pickem-lab/internal/config"
	"pickem-lab/internal/ingestion"
	"pickem-lab/internal/probability"
	"pickem-lab/internal/reporting"
	"pickem-lab/internal/storage"
	"pickem-lab/internal/storage/memory"
)

func main() {
	// Parse flags
	outputDir := flag.String("output-dir", "docs", "Output directory for generated files")
	envFile := flag.String("env-file", ".env", "KEY=VALUE file loaded before reading the environment")
	configPath := flag.String("config", os.Getenv("PICKEM_CONFIG"), "YAML config file (optional)")
	batchFile := flag.String("batch-file", "", "Report on this batch file in memory instead of the configured catalog")
	recent := flag.Int("recent-queries", reporting.DefaultRecentQueries, "Logged queries to include (0 to skip)")
	fixedClock := flag.Bool("fixed-clock", false, "Stamp the report with the batch timestamp for reproducible output")
	flag.Parse()

	ctx := context.Background()

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading env file: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Create stores based on mode
	var (
		catalog  storage.SimulationCatalog
		queryLog storage.QueryLogStore
	)
	if *batchFile != "" {
		mem := memory.NewCatalog()
		manager := ingestion.NewManager(ingestion.ManagerOptions{Source: ingestion.NewFileSource(*batchFile), Writer: mem})
		if _, err := manager.Ingest(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading batch file: %v\n", err)
			os.Exit(1)
		}
		catalog = mem
	} else {
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid config: %v\n", err)
			os.Exit(1)
		}
		c, closeCatalog, err := backend.OpenCatalog(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to catalog: %v\n", err)
			os.Exit(1)
		}
		defer closeCatalog()
		catalog = c

		ql, closeQueryLog, err := backend.OpenQueryLog(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to query log: %v\n", err)
			os.Exit(1)
		}
		defer closeQueryLog()
		queryLog = ql
	}

	svc := probability.NewService(probability.Options{
		Catalog:   catalog,
		QueryLog:  queryLog,
		Namespace: cfg.Namespace,
	})

	gen := reporting.NewGenerator(svc).WithRecentQueries(*recent)
	if *fixedClock {
		batch, err := svc.Current(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading batch: %v\n", err)
			os.Exit(1)
		}
		stamp := time.Unix(batch.Metadata.Timestamp, 0).UTC()
		gen = gen.WithClock(func() time.Time { return stamp })
	}

	report, err := gen.Generate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	files := []struct {
		name    string
		content string
	}{
		{"SIMULATION_REPORT.md", reporting.RenderMarkdown(report)},
		{"PROP_PROBABILITIES.csv", reporting.RenderCSV(report.Probabilities)},
	}
	if len(report.RecentQueries) > 0 {
		files = append(files, struct {
			name    string
			content string
		}{"CORRELATED_QUERIES.csv", reporting.RenderQueriesCSV(report.RecentQueries)})
	}
	for _, f := range files {
		path := filepath.Join(*outputDir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	fmt.Println("Simulation report generated successfully:")
	fmt.Printf("  - %s/SIMULATION_REPORT.md\n", *outputDir)
	fmt.Printf("  - %s/PROP_PROBABILITIES.csv (%d rows)\n", *outputDir, len(report.Probabilities))
	if len(report.RecentQueries) > 0 {
		fmt.Printf("  - %s/CORRELATED_QUERIES.csv (%d rows)\n", *outputDir, len(report.RecentQueries))
	}
}

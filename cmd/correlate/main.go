package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"

	"pickem-lab/internal/backend"
	"pickem-lab/internal/config"
	"pickem-lab/internal/domain"
	"pickem-lab/internal/ingestion"
	"pickem-lab/internal/probability"
	"pickem-lab/internal/storage"
	"pickem-lab/internal/storage/memory"
)

const usage = `Usage:
  correlate [flags] "Mike Trout|hits|0.5|over" "Aaron Judge|home_runs|0.5|under" ...
  correlate [flags] --prop mike_trout_hits_1_plus
  correlate [flags] --phi "Mike Trout|hits|0.5" "Aaron Judge|home_runs|0.5"

Each leg is player|stat_name|stat_value[|over|under]; the side defaults to over.

Flags:
`

func main() {
	// Parse flags
	envFile := flag.String("env-file", ".env", "KEY=VALUE file loaded before reading the environment")
	configPath := flag.String("config", os.Getenv("PICKEM_CONFIG"), "YAML config file (optional)")
	batchFile := flag.String("batch-file", "", "Query this batch file in memory instead of the configured catalog")
	prop := flag.String("prop", "", "Single canonical prop key to look up")
	phi := flag.Bool("phi", false, "Print the phi coefficient of exactly two legs")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[correlate] ", log.LstdFlags)

	legs, err := parseLegs(flag.Args())
	if err != nil {
		logger.Fatal(err)
	}
	if *prop == "" && len(legs) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadEnvFile(*envFile); err != nil {
		logger.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	var catalog storage.SimulationCatalog
	if *batchFile != "" {
		mem := memory.NewCatalog()
		manager := ingestion.NewManager(ingestion.ManagerOptions{
			Source: ingestion.NewFileSource(*batchFile),
			Writer: mem,
			Logger: logger,
		})
		if _, err := manager.Ingest(ctx); err != nil {
			logger.Fatalf("Failed to load %s: %v", *batchFile, err)
		}
		catalog = mem
	} else {
		if err := cfg.Validate(); err != nil {
			logger.Fatalf("Invalid config: %v", err)
		}
		c, closeCatalog, err := backend.OpenCatalog(ctx, cfg)
		if err != nil {
			logger.Fatalf("Failed to open %s catalog: %v", cfg.Catalog.Backend, err)
		}
		defer closeCatalog()
		catalog = c
	}

	svc := probability.NewService(probability.Options{
		Catalog:   catalog,
		Namespace: cfg.Namespace,
		Logger:    logger,
	})

	var out any
	switch {
	case *prop != "":
		out, err = svc.Probability(ctx, *prop)
	case *phi:
		if len(legs) != 2 {
			logger.Fatalf("--phi needs exactly 2 legs, got %d", len(legs))
		}
		var v float64
		v, err = svc.PairCorrelation(ctx, legs[0], legs[1])
		out = phiResult{A: legs[0].String(), B: legs[1].String(), Phi: v}
	default:
		out, err = svc.Correlate(ctx, legs)
	}
	if err != nil {
		logger.Fatalf("Query failed: %v", err)
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			logger.Fatalf("Failed to encode result: %v", err)
		}
		return
	}
	printResult(out)
}

type phiResult struct {
	A   string
	B   string
	Phi float64
}

// parseLegs parses player|stat_name|stat_value[|side] arguments.
func parseLegs(args []string) ([]domain.PropQuery, error) {
	legs := make([]domain.PropQuery, 0, len(args))
	for _, arg := range args {
		parts := strings.Split(arg, "|")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("leg %q: want player|stat_name|stat_value[|side]", arg)
		}
		value, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("leg %q: stat_value: %w", arg, err)
		}
		q := domain.PropQuery{
			Player:    strings.TrimSpace(parts[0]),
			StatName:  strings.TrimSpace(parts[1]),
			StatValue: value,
			Side:      domain.SideOver,
		}
		if len(parts) == 4 {
			side, ok := domain.ParseSide(parts[3])
			if !ok {
				return nil, fmt.Errorf("leg %q: side must be over or under", arg)
			}
			q.Side = side
		}
		legs = append(legs, q)
	}
	return legs, nil
}

func printResult(out any) {
	fmt.Println()
	switch r := out.(type) {
	case *probability.SingleResult:
		fmt.Println("=== Prop Probability ===")
		fmt.Printf("Prop:               %s\n", r.Key)
		fmt.Printf("Player:             %s\n", r.Prop.Player)
		fmt.Printf("Stat:               %s (threshold %s)\n", r.Prop.StatType, r.Prop.Threshold)
		fmt.Printf("Probability:        %.4f (%d/%d)\n", r.Probability, r.HitCount, r.TotalSims)
		fmt.Printf("Source:             %s\n", r.Source)

	case phiResult:
		fmt.Println("=== Prop Correlation ===")
		fmt.Printf("A:                  %s\n", r.A)
		fmt.Printf("B:                  %s\n", r.B)
		fmt.Printf("Phi:                %.4f\n", r.Phi)

	case *probability.CorrelatedResult:
		fmt.Println("=== Correlated Probability ===")
		fmt.Printf("Parlay ID:          %s\n", r.ParlayID)
		fmt.Printf("Batch ID:           %s\n", r.BatchID)
		for i, leg := range r.Legs {
			fmt.Printf("  Leg %d:            %s\n", i+1, leg)
		}
		fmt.Println()
		fmt.Printf("All hit:            %.4f (%d/%d)\n", r.CorrelatedProbability(), r.AllHit, r.TotalSims)
		fmt.Printf("All but one:        %.4f (%d/%d)\n", r.AllButOneProbability(), r.AllButOneHit, r.TotalSims)
		if p, ok := r.AllButTwoProbability(); ok {
			fmt.Printf("All but two:        %.4f (%d/%d)\n", p, *r.AllButTwoHit, r.TotalSims)
		}
		fmt.Printf("Duration:           %v\n", r.Duration)
	}
	fmt.Println()
}

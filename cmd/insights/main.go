// Command insights drives the risk pipeline from the command line.
//
// Usage:
//
//	go run ./cmd/insights generate   # Write synthetic raw CSVs
//	go run ./cmd/insights etl        # Load raw CSVs into the datamart
//	go run ./cmd/insights train      # Train and save the risk models
//	go run ./cmd/insights run        # Full pipeline run, persisting a report
//	go run ./cmd/insights export     # Export datamart tables and KPIs as CSV
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/gackouhamady/bnpp-risk-insights/internal/anomaly"
	"github.com/gackouhamady/bnpp-risk-insights/internal/config"
	"github.com/gackouhamady/bnpp-risk-insights/internal/datamart"
	"github.com/gackouhamady/bnpp-risk-insights/internal/etl"
	"github.com/gackouhamady/bnpp-risk-insights/internal/features"
	"github.com/gackouhamady/bnpp-risk-insights/internal/logging"
	"github.com/gackouhamady/bnpp-risk-insights/internal/metrics"
	"github.com/gackouhamady/bnpp-risk-insights/internal/models"
	"github.com/gackouhamady/bnpp-risk-insights/internal/pipeline"
	"github.com/gackouhamady/bnpp-risk-insights/internal/report"
	"github.com/gackouhamady/bnpp-risk-insights/internal/synthetic"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: insights <command>")
		fmt.Println("Commands: generate [count] [seed], etl, train, run, export")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, "text")
	ctx := context.Background()

	switch os.Args[1] {
	case "generate":
		err = runGenerate(cfg, os.Args[2:])
	case "etl":
		err = runETL(ctx, cfg, logger)
	case "train":
		err = runTrain(ctx, cfg, logger)
	case "run":
		err = runPipeline(ctx, cfg, logger)
	case "export":
		err = runExport(ctx, cfg, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func runGenerate(cfg *config.Config, args []string) error {
	gen := synthetic.Config{
		Transactions: 1000,
		Seed:         cfg.AnomalySeed,
		Now:          time.Now().UTC(),
	}
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid transaction count %q: %w", args[0], err)
		}
		gen.Transactions = n
	}
	if len(args) > 1 {
		seed, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seed %q: %w", args[1], err)
		}
		gen.Seed = seed
	}
	if err := synthetic.Generate(cfg.RawDir, gen); err != nil {
		return err
	}
	fmt.Printf("wrote %d transactions to %s\n", gen.Transactions, cfg.RawDir)
	return nil
}

func runETL(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, cleanup, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	runner := etl.NewRunner(store, logger)
	summary, err := runner.Run(ctx, cfg.RawDir)
	if err != nil {
		return err
	}
	fmt.Printf("loaded %d transactions (%d duplicates dropped)\n", summary.Transactions, summary.Duplicates)
	return nil
}

func runTrain(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, cleanup, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	runner := etl.NewRunner(store, logger)
	if _, err := runner.Run(ctx, cfg.RawDir); err != nil {
		return err
	}

	txs, err := store.ReadTransactions(ctx)
	if err != nil {
		return err
	}
	accounts, err := store.ReadAccounts(ctx)
	if err != nil {
		return err
	}

	defRows, err := features.AggregateDefaultAll(txs, distinctDays(txs))
	if err != nil {
		return err
	}
	churnRows, err := features.AggregateChurnAll(txs, accounts, time.Now().UTC())
	if err != nil {
		return err
	}

	defModel, err := models.TrainDefault(defRows)
	if err != nil {
		return err
	}
	churnModel, err := models.TrainChurn(churnRows)
	if err != nil {
		return err
	}

	defPath := filepath.Join(cfg.ModelDir, "model_default.json")
	churnPath := filepath.Join(cfg.ModelDir, "model_churn.json")
	if err := os.MkdirAll(cfg.ModelDir, 0o755); err != nil {
		return err
	}
	if err := models.Save(defPath, defModel); err != nil {
		return err
	}
	if err := models.Save(churnPath, churnModel); err != nil {
		return err
	}
	fmt.Printf("saved %s and %s\n", defPath, churnPath)
	return nil
}

func runPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, cleanup, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	scorer := anomaly.NewScorer(
		anomaly.WithSeed(cfg.AnomalySeed),
		anomaly.WithMinSamples(cfg.MinAnomalySamples),
	)
	p := pipeline.New(pipeline.Config{
		RawDir:        cfg.RawDir,
		ModelDir:      cfg.ModelDir,
		Contamination: cfg.DefaultContamination,
	}, store, etl.NewRunner(store, logger), scorer, report.NewFSSink(cfg.ReportDir), metrics.RunSink{}, logger)

	result, err := p.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("run %s: %d accounts, %d clients, %d anomalies scored\n",
		result.RunID, len(result.DefaultRiskSummary), len(result.ChurnRiskSummary), len(result.Anomalies))
	return nil
}

func runExport(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, cleanup, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	runner := etl.NewRunner(store, logger)
	if _, err := runner.Run(ctx, cfg.RawDir); err != nil {
		return err
	}

	paths, err := report.NewExporter(store, cfg.ExportDir).Export(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

// openStore returns a Postgres-backed store when DATABASE_URL is set,
// otherwise an in-memory one. The cleanup func closes any DB handle.
func openStore(cfg *config.Config) (datamart.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		return datamart.NewMemoryStore(), func() {}, nil
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	return datamart.NewPostgresStore(db), func() { _ = db.Close() }, nil
}

func distinctDays(txs []datamart.Transaction) int {
	days := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		days[tx.Timestamp.UTC().Format("2006-01-02")] = struct{}{}
	}
	return len(days)
}

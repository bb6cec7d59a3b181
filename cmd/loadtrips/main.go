// Command loadtrips loads the cleaned trips CSV into the relational
// store. It creates the schema if needed and inserts rows in batches;
// trips that are already present are skipped, so rerunning after a
// partial failure is safe.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nycmobility/taxi-trip-etl/internal/adapter/csvfile"
	"github.com/nycmobility/taxi-trip-etl/internal/config"
	"github.com/nycmobility/taxi-trip-etl/internal/observability"
	"github.com/nycmobility/taxi-trip-etl/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, metrics); err != nil {
		logger.Error("load failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	table, err := csvfile.NewReader(cfg.CleanedFile, logger).Read(ctx)
	if err != nil {
		return err
	}
	rows, err := store.RowsFromTable(table)
	if err != nil {
		return err
	}
	logger.Info("cleaned file parsed", "rows", len(rows))

	db, err := store.Open(cfg.DBDriver, cfg.SQLitePath, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	inserted := 0
	for start := 0; start < len(rows); start += cfg.LoadBatchSize {
		end := min(start+cfg.LoadBatchSize, len(rows))
		n, err := db.InsertTrips(ctx, rows[start:end])
		if err != nil {
			return fmt.Errorf("insert batch starting at row %d: %w", start+1, err)
		}
		inserted += n
		metrics.TripsLoaded.Add(float64(n))
		logger.Debug("batch loaded", "rows", end-start, "inserted", n)
	}

	logger.Info("load complete",
		"rows", len(rows),
		"inserted", inserted,
		"already_present", len(rows)-inserted,
	)
	return nil
}

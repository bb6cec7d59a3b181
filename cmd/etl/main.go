// Command etl runs the trip cleaning pipeline once: it reads the raw
// trips CSV, writes the cleaned dataset and the exclusion log, and exits.
// Set METRICS_ADDR to also serve Prometheus metrics for the duration of
// the run.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nycmobility/taxi-trip-etl/internal/adapter/csvfile"
	"github.com/nycmobility/taxi-trip-etl/internal/config"
	"github.com/nycmobility/taxi-trip-etl/internal/observability"
	"github.com/nycmobility/taxi-trip-etl/internal/pipeline"
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

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			logger.Info("metrics server starting", "addr", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	p := pipeline.New(
		csvfile.NewReader(cfg.RawFile, logger),
		csvfile.NewWriter(cfg.CleanedFile, logger),
		csvfile.NewWriter(cfg.ExcludedFile, logger),
		logger,
		metrics,
	)

	report, runErr := p.Run(ctx)

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
		cancel()
	}

	if runErr != nil {
		logger.Error("pipeline failed", "error", runErr)
		os.Exit(1)
	}

	logger.Info("run summary",
		"run_id", report.RunID,
		"rows_loaded", report.RowsLoaded,
		"duplicates_removed", report.DuplicatesRemoved,
		"dropped_missing_required", report.DroppedMissingRequired,
		"dropped_bad_timestamp", report.DroppedBadTimestamp,
		"excluded_rows", report.ExcludedRows,
		"cleaned_rows", report.CleanedRows,
		"duration", report.Duration,
	)
}

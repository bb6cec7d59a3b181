// Command api serves the trips read API over HTTP: GET /trips returns
// rows from the relational store as JSON, with health, readiness, and
// metrics endpoints alongside. Set STATIC_DIR to also serve a frontend
// at /.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nycmobility/taxi-trip-etl/internal/adapter/httpapi"
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

	db, err := store.Open(cfg.DBDriver, cfg.SQLitePath, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv := httpapi.NewServer(cfg.HTTPAddr, db, httpapi.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		TripsLimit:     cfg.TripsLimit,
		StaticDir:      cfg.StaticDir,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Pipeline file locations.
	RawFile      string
	CleanedFile  string
	ExcludedFile string

	HTTPAddr        string
	MetricsAddr     string // empty disables the standalone metrics listener
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Relational store.
	DBDriver    string // "sqlite" or "postgres"
	SQLitePath  string
	DatabaseURL string

	// Read API.
	StaticDir          string // empty disables static file serving
	CORSAllowedOrigins []string
	TripsLimit         int

	LoadBatchSize int
}

// Load reads configuration from the environment, applying defaults where
// unset. A .env file in the working directory is loaded first when
// present; real environment variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := parsePositiveDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	tripsLimit, err := parsePositiveInt("TRIPS_LIMIT", 100)
	if err != nil {
		return nil, err
	}
	loadBatchSize, err := parsePositiveInt("LOAD_BATCH_SIZE", 500)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RawFile:      envOrDefault("RAW_FILE", "data/raw/train.csv"),
		CleanedFile:  envOrDefault("CLEANED_FILE", "data/processed/cleaned_train.csv"),
		ExcludedFile: envOrDefault("EXCLUDED_FILE", "logs/excluded_records.csv"),

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		MetricsAddr:     os.Getenv("METRICS_ADDR"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DBDriver:    envOrDefault("DB_DRIVER", "sqlite"),
		SQLitePath:  envOrDefault("SQLITE_PATH", "data/trips.db"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		StaticDir:          os.Getenv("STATIC_DIR"),
		CORSAllowedOrigins: splitList(envOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		TripsLimit:         tripsLimit,

		LoadBatchSize: loadBatchSize,
	}

	switch cfg.DBDriver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("invalid DB_DRIVER %q (want sqlite or postgres)", cfg.DBDriver)
	}
	if cfg.DBDriver == "postgres" && cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

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

const (
	// DefaultSourceURL is the official consolidated IRVE extract on data.gouv.fr.
	DefaultSourceURL = "https://www.data.gouv.fr/api/1/datasets/r/eb76d20a-8501-400e-b336-d85724de5435"

	defaultSchemaVersion   = "v2"
	defaultHTTPAddr        = ":8080"
	defaultFetchTimeout    = 60 * time.Second
	defaultFetchRetries    = 3
	defaultShutdownTimeout = 10 * time.Second
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	SourceURL     string
	SourceFile    string
	SchemaVersion string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	FetchTimeout time.Duration
	FetchRetries int

	TiersFile    string // optional YAML tier table; built-in defaults when empty
	SnapshotFile string // optional warm-start snapshot path
	DatabaseURL  string // optional Postgres sink
}

// Load reads configuration from environment variables (optionally .env),
// applying defaults where unset. A local SOURCE_FILE overrides SOURCE_URL;
// when neither is set the official data.gouv.fr extract is used.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		SourceURL:     strings.TrimSpace(envOrDefault("SOURCE_URL", DefaultSourceURL)),
		SourceFile:    strings.TrimSpace(os.Getenv("SOURCE_FILE")),
		SchemaVersion: envOrDefault("SCHEMA_VERSION", defaultSchemaVersion),
		HTTPAddr:      envOrDefault("HTTP_ADDR", defaultHTTPAddr),
		LogLevel:      envOrDefault("LOG_LEVEL", "info"),
		LogFormat:     envOrDefault("LOG_FORMAT", "json"),
		TiersFile:     strings.TrimSpace(os.Getenv("TIERS_FILE")),
		SnapshotFile:  strings.TrimSpace(os.Getenv("SNAPSHOT_FILE")),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}
	if cfg.SourceFile != "" {
		cfg.SourceURL = ""
	}

	var err error
	cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", defaultShutdownTimeout)
	if err != nil {
		return nil, err
	}
	cfg.FetchTimeout, err = durationEnv("FETCH_TIMEOUT", defaultFetchTimeout)
	if err != nil {
		return nil, err
	}

	cfg.FetchRetries = defaultFetchRetries
	if v := os.Getenv("FETCH_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid FETCH_RETRIES: %q", v)
		}
		cfg.FetchRetries = n
	}

	if cfg.SourceURL == "" && cfg.SourceFile == "" {
		return nil, errors.New("SOURCE_URL or SOURCE_FILE is required")
	}
	if cfg.SchemaVersion == "" {
		return nil, errors.New("SCHEMA_VERSION must not be empty")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}

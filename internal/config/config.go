package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr       = ":8080"
	defaultDBPath           = "labengine.db"
	defaultCatalogPath      = "catalog.json"
	defaultProvisionTimeout = 5 * time.Minute
	defaultTeardownTimeout  = 2 * time.Minute

	envListenAddr       = "LABENGINE_LISTEN_ADDR"
	envDBPath           = "LABENGINE_DB_PATH"
	envCatalogPath      = "LABENGINE_CATALOG_PATH"
	envLogLevel         = "LABENGINE_LOG_LEVEL"
	envProvisionTimeout = "LABENGINE_PROVISION_TIMEOUT_S"
	envTeardownTimeout  = "LABENGINE_TEARDOWN_TIMEOUT_S"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr       string
	DBPath           string
	CatalogPath      string
	LogLevel         slog.Level
	ProvisionTimeout time.Duration
	TeardownTimeout  time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:       defaultListenAddr,
		DBPath:           defaultDBPath,
		CatalogPath:      defaultCatalogPath,
		LogLevel:         slog.LevelInfo,
		ProvisionTimeout: defaultProvisionTimeout,
		TeardownTimeout:  defaultTeardownTimeout,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envCatalogPath); v != "" {
		cfg.CatalogPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if d, ok := parseSeconds(os.Getenv(envProvisionTimeout)); ok {
		cfg.ProvisionTimeout = d
	}
	if d, ok := parseSeconds(os.Getenv(envTeardownTimeout)); ok {
		cfg.TeardownTimeout = d
	}

	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseSeconds(s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

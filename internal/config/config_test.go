package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.DBPath != "labengine.db" {
		t.Errorf("DBPath = %q, want labengine.db", cfg.DBPath)
	}
	if cfg.CatalogPath != "catalog.json" {
		t.Errorf("CatalogPath = %q, want catalog.json", cfg.CatalogPath)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.ProvisionTimeout != 5*time.Minute {
		t.Errorf("ProvisionTimeout = %v, want 5m", cfg.ProvisionTimeout)
	}
	if cfg.TeardownTimeout != 2*time.Minute {
		t.Errorf("TeardownTimeout = %v, want 2m", cfg.TeardownTimeout)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LABENGINE_LISTEN_ADDR", ":9090")
	t.Setenv("LABENGINE_DB_PATH", "/tmp/test.db")
	t.Setenv("LABENGINE_CATALOG_PATH", "/etc/labengine/catalog.json")
	t.Setenv("LABENGINE_LOG_LEVEL", "debug")
	t.Setenv("LABENGINE_PROVISION_TIMEOUT_S", "120")
	t.Setenv("LABENGINE_TEARDOWN_TIMEOUT_S", "30")

	cfg := Load()

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.ListenAddr)
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want /tmp/test.db", cfg.DBPath)
	}
	if cfg.CatalogPath != "/etc/labengine/catalog.json" {
		t.Errorf("CatalogPath = %q", cfg.CatalogPath)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.ProvisionTimeout != 2*time.Minute {
		t.Errorf("ProvisionTimeout = %v, want 2m", cfg.ProvisionTimeout)
	}
	if cfg.TeardownTimeout != 30*time.Second {
		t.Errorf("TeardownTimeout = %v, want 30s", cfg.TeardownTimeout)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseSecondsInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "-5", "0"} {
		if _, ok := parseSeconds(in); ok {
			t.Errorf("parseSeconds(%q) accepted invalid input", in)
		}
	}
}

func TestNewLoggerEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	logger.Info("hello", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "hello" {
		t.Errorf("msg = %v, want hello", entry["msg"])
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want value", entry["key"])
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)
	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("info log emitted at warn level: %s", buf.String())
	}
	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Error("warn log suppressed at warn level")
	}
}

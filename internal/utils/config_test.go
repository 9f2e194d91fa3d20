package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("LLM_PROVIDER", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Store.Backend != StoreMemory {
		t.Fatalf("expected memory store by default, got %q", cfg.Store.Backend)
	}
	if cfg.LLM.Provider != ProviderOpenAI {
		t.Fatalf("expected openai provider by default, got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Temperature != 0.7 {
		t.Fatalf("expected temperature 0.7, got %v", cfg.LLM.Temperature)
	}
	if cfg.LLM.Timeout != 60*time.Second {
		t.Fatalf("expected 60s llm timeout, got %v", cfg.LLM.Timeout)
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "BOLT")
	t.Setenv("BOLT_PATH", "/tmp/lovelens.bolt")
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_MODEL", "claude-test")
	t.Setenv("OPENAI_BASE_URL", "https://example.com/v1/")
	t.Setenv("LLM_TIMEOUT", "15s")
	t.Setenv("POSTGRES_MAX_CONNS", "4")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.ServerPort != "9090" {
		t.Fatalf("expected port 9090, got %s", cfg.ServerPort)
	}
	if cfg.Store.Backend != StoreBolt || cfg.Store.BoltPath != "/tmp/lovelens.bolt" {
		t.Fatalf("unexpected store config %+v", cfg.Store)
	}
	if active := cfg.LLM.Active(); active.APIKey != "sk-test" || active.Model != "claude-test" {
		t.Fatalf("unexpected active provider %+v", active)
	}
	if cfg.LLM.OpenAI.BaseURL != "https://example.com/v1" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.LLM.OpenAI.BaseURL)
	}
	if cfg.LLM.Timeout != 15*time.Second {
		t.Fatalf("expected 15s timeout, got %v", cfg.LLM.Timeout)
	}
	if cfg.Postgres.MaxConns != 4 {
		t.Fatalf("expected 4 max conns, got %d", cfg.Postgres.MaxConns)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lovelens.yaml")
	if err := os.WriteFile(path, []byte("port: \"7070\"\nopenai_model: gpt-test\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.ServerPort != "7070" {
		t.Fatalf("expected port from file, got %s", cfg.ServerPort)
	}
	if cfg.LLM.OpenAI.Model != "gpt-test" {
		t.Fatalf("expected model from file, got %s", cfg.LLM.OpenAI.Model)
	}
}

func TestLoadConfigRejectsUnknownNames(t *testing.T) {
	t.Setenv("STORE_BACKEND", "cassandra")
	t.Setenv("LLM_PROVIDER", "carrier-pigeon")

	_, err := LoadConfig()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "STORE_BACKEND") || !strings.Contains(err.Error(), "LLM_PROVIDER") {
		t.Fatalf("expected both names reported, got %v", err)
	}
}

func TestBuildDSN(t *testing.T) {
	cfg := PostgresConfig{User: "u", Password: "p", Host: "db", Port: 5432, Database: "lovelens"}
	if got := cfg.BuildDSN(); got != "postgres://u:p@db:5432/lovelens" {
		t.Fatalf("unexpected dsn %s", got)
	}

	cfg.DSN = "postgres://override"
	if got := cfg.BuildDSN(); got != "postgres://override" {
		t.Fatalf("expected explicit dsn, got %s", got)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("DEBUG") != zapcore.DebugLevel {
		t.Fatalf("expected debug level")
	}
	if parseLevel("nonsense") != zapcore.InfoLevel {
		t.Fatalf("expected info fallback")
	}
}

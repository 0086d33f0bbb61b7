package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ANTHROPIC_API_KEY", "ANTHROPIC_AUTH_TOKEN", "ANTHROPIC_BASE_URL", "OPENAI_API_KEY", "OPENAI_BASE_URL"} {
		t.Setenv(key, "")
	}
}

func TestDefault_HistoryWindow(t *testing.T) {
	cfg := Default()
	if cfg.History.WindowSize != 50 || cfg.History.LoadStep != 50 || cfg.History.Threshold != 200 {
		t.Fatalf("unexpected history defaults: %+v", cfg.History)
	}
}

func TestLoad_MissingFile_UsesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source != path {
		t.Fatalf("cfg.Source = %q, want %q", cfg.Source, path)
	}
	if cfg.Backend.Provider != "echo" {
		t.Fatalf("cfg.Backend.Provider = %q, want echo", cfg.Backend.Provider)
	}
}

func TestLoad_FromTOMLAndEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "env-key")

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
[backend]
provider = "openai"
model = "gpt-4.1"
openai_token = "file-key"

[history]
window_size = 20
load_step = 0

[storage]
driver = "SQLite"
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.Provider != "openai" || cfg.Backend.Model != "gpt-4.1" {
		t.Fatalf("unexpected backend: %+v", cfg.Backend)
	}
	if cfg.Backend.OpenAIToken != "env-key" {
		t.Fatalf("env should override file token, got %q", cfg.Backend.OpenAIToken)
	}
	if cfg.History.WindowSize != 20 || cfg.History.LoadStep != 50 {
		t.Fatalf("unexpected history: %+v", cfg.History)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("driver = %q, want sqlite", cfg.Storage.Driver)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Backend.Model = "saved-model"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Backend.Model != "saved-model" {
		t.Fatalf("model = %q", got.Backend.Model)
	}
}

func TestApplyKVOverrides(t *testing.T) {
	cfg := ApplyKVOverrides(Default(), []string{"model=override-model", "history.window_size=10", "history.load_step=oops", "broken"})
	if cfg.Backend.Model != "override-model" {
		t.Fatalf("Model = %q", cfg.Backend.Model)
	}
	if cfg.History.WindowSize != 10 || cfg.History.LoadStep != 50 {
		t.Fatalf("unexpected history: %+v", cfg.History)
	}
}

func TestApplyKVOverrides_Backend(t *testing.T) {
	cfg := ApplyKVOverrides(Default(), []string{"backend.context_tokens=-5", "backend.instructions=false", "history.scroll_buffer=9", "backend.max_concurrent=2"})
	if cfg.Backend.ContextTokens != 0 {
		t.Fatalf("ContextTokens = %d, want 0", cfg.Backend.ContextTokens)
	}
	if cfg.Backend.Instructions {
		t.Fatalf("Instructions should be disabled")
	}
	if cfg.Backend.MaxConcurrent != 2 {
		t.Fatalf("MaxConcurrent = %d", cfg.Backend.MaxConcurrent)
	}
	if cfg.History.ScrollBuffer != 9 {
		t.Fatalf("ScrollBuffer = %d", cfg.History.ScrollBuffer)
	}
}

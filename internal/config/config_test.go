package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Provider.Kind != "gemini" {
		t.Errorf("expected gemini, got %s", cfg.Provider.Kind)
	}
	if cfg.Database.Path != "fyreflow.db" {
		t.Errorf("expected fyreflow.db, got %s", cfg.Database.Path)
	}
	if cfg.Storage.SharedRoot == "" {
		t.Error("expected a non-empty default shared storage root")
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[provider]
kind = "openai_compat"
model = "gpt-4o"

[database]
path = "custom.db"
`), 0644)

	cfg := Load(path)
	if cfg.Provider.Kind != "openai_compat" {
		t.Errorf("expected openai_compat, got %s", cfg.Provider.Kind)
	}
	if cfg.Database.Path != "custom.db" {
		t.Errorf("expected custom.db, got %s", cfg.Database.Path)
	}
	// Defaults preserved for fields not set in the file.
	if cfg.Storage.SharedRoot == "" {
		t.Error("default storage root should be preserved")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("FYREFLOW_LLM_KIND", "openai_compat")
	t.Setenv("FYREFLOW_LLM_API_KEY", "env-key")
	t.Setenv("FYREFLOW_DB_PATH", "env.db")

	cfg := Load("/nonexistent/path.toml")
	if cfg.Provider.Kind != "openai_compat" {
		t.Errorf("expected openai_compat, got %s", cfg.Provider.Kind)
	}
	if cfg.Provider.APIKey != "env-key" {
		t.Errorf("expected env-key, got %s", cfg.Provider.APIKey)
	}
	if cfg.Database.Path != "env.db" {
		t.Errorf("expected env.db, got %s", cfg.Database.Path)
	}
}

func TestEnvOverride_ObserverEnabled(t *testing.T) {
	t.Setenv("FYREFLOW_OBSERVER_ENABLED", "true")

	cfg := Load("/nonexistent/path.toml")
	if !cfg.Observer.Enabled {
		t.Error("expected observer to be enabled")
	}
}

// Package config loads engine-wide settings: defaults, overlaid by a
// TOML file, overlaid by environment variables (env wins).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Provider ProviderConfig `toml:"provider"`
	Database DatabaseConfig `toml:"database"`
	Storage  StorageConfig  `toml:"storage"`
	Observer ObserverConfig `toml:"observer"`
}

// ProviderConfig configures the default model driving flow steps that
// don't name a specific registered provider ID.
type ProviderConfig struct {
	Kind   string `toml:"kind"` // "gemini" | "openai_compat"
	Model  string `toml:"model"`
	APIKey string `toml:"api_key"`
}

type DatabaseConfig struct {
	Path       string `toml:"path"`
	TursoURL   string `toml:"turso_url"`
	TursoToken string `toml:"turso_token"`
}

// StorageConfig mirrors fyreflow.StorageConfig's roots for TOML/env
// overlay before being handed to the engine.
type StorageConfig struct {
	SharedRoot   string `toml:"shared_root"`
	IsolatedRoot string `toml:"isolated_root"`
	RunRoot      string `toml:"run_root"`
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider: ProviderConfig{Kind: "gemini", Model: "gemini-2.5-flash"},
		Database: DatabaseConfig{Path: "fyreflow.db"},
		Storage: StorageConfig{
			SharedRoot:   "./fyreflow-storage/shared",
			IsolatedRoot: "./fyreflow-storage/isolated",
			RunRoot:      "./fyreflow-storage/runs",
		},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "fyreflow.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("FYREFLOW_LLM_KIND"); v != "" {
		cfg.Provider.Kind = v
	}
	if v := os.Getenv("FYREFLOW_LLM_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("FYREFLOW_LLM_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("FYREFLOW_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("FYREFLOW_TURSO_URL"); v != "" {
		cfg.Database.TursoURL = v
	}
	if v := os.Getenv("FYREFLOW_TURSO_TOKEN"); v != "" {
		cfg.Database.TursoToken = v
	}
	if os.Getenv("FYREFLOW_OBSERVER_ENABLED") == "true" || os.Getenv("FYREFLOW_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}

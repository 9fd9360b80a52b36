// Package config loads canvasforge configuration from an optional YAML file
// with environment overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Store backend names accepted by BudgetConfig.Store.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Config holds all canvasforge configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Gemini GeminiConfig `yaml:"gemini"`
	Budget BudgetConfig `yaml:"budget"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// GeminiConfig configures the model provider.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// BudgetConfig configures the token ledger.
type BudgetConfig struct {
	// Allowance is the fixed maximum cumulative tokens the process will
	// spend, across restarts.
	Allowance int `yaml:"allowance"`
	// Store selects the ledger backend: "file" or "sqlite".
	Store string `yaml:"store"`
	Path  string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Listen: ":8080"},
		Gemini: GeminiConfig{},
		Budget: BudgetConfig{
			Allowance: 100000,
			Store:     StoreFile,
			Path:      ".canvasforge/ledger.json",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path if one
// is given, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("CANVASFORGE_MODEL"); v != "" {
		c.Gemini.Model = v
	}
	if v := os.Getenv("CANVASFORGE_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("CANVASFORGE_ALLOWANCE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Budget.Allowance = n
		}
	}
	if v := os.Getenv("CANVASFORGE_LEDGER_STORE"); v != "" {
		c.Budget.Store = v
	}
	if v := os.Getenv("CANVASFORGE_LEDGER_PATH"); v != "" {
		c.Budget.Path = v
	}
}

func (c *Config) validate() error {
	if c.Budget.Allowance < 0 {
		return fmt.Errorf("budget.allowance must be >= 0, got %d", c.Budget.Allowance)
	}
	switch c.Budget.Store {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("budget.store must be %q or %q, got %q", StoreFile, StoreSQLite, c.Budget.Store)
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	return nil
}

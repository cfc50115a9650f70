// Package config holds all stamina configuration, loaded from a YAML
// file with sensible defaults and environment overrides. CLI flags
// override whatever the file provides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all stamina configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Truncation settings
	Exploration ExplorationConfig `yaml:"exploration"`

	// Downstream solver settings (recorded and handed off, not executed)
	Solver SolverConfig `yaml:"solver"`

	// Export targets
	Export ExportConfig `yaml:"export"`

	// Result store
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig mirrors internal/logging's expectations.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// ExportConfig names the optional output files of a run.
type ExportConfig struct {
	// Model is the text export of the truncated model.
	Model string `yaml:"model"`
	// PerimeterStates appends the perimeter state list to a file.
	PerimeterStates string `yaml:"perimeter_states"`
	// Transitions exports "<from> <to> <rate>" lines.
	Transitions string `yaml:"transitions"`
}

// StoreConfig configures SQLite persistence of truncation results.
type StoreConfig struct {
	// Path of the result database; empty disables the store.
	Path string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:        "stamina",
		Version:     "1.0.0",
		Exploration: DefaultExploration(),
		Solver:      DefaultSolver(),
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a config file over the defaults. An empty or missing path
// returns the defaults; environment overrides are applied in every case.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		cfg.applyEnv()
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv lets STAMINA_* variables override file values, matching how
// deployments tune runs without editing config files.
func (c *Config) applyEnv() {
	if v := os.Getenv("STAMINA_KAPPA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Exploration.Kappa = f
		}
	}
	if v := os.Getenv("STAMINA_PROB_WIN"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Exploration.ProbWin = f
		}
	}
	if v := os.Getenv("STAMINA_METHOD"); v != "" {
		c.Exploration.Method = v
	}
	if v := os.Getenv("STAMINA_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Exploration.Threads = n
		}
	}
	if v := os.Getenv("STAMINA_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("STAMINA_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "1" || v == "true"
	}
}

// Package config holds all blockmend configuration. Precedence, lowest to
// highest: built-in defaults, YAML config file, BLOCKMEND_* environment
// variables, then command-line flags applied by the caller.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all blockmend configuration.
type Config struct {
	// Targets are files, directories or glob patterns to repair when the
	// command line names none.
	Targets []string `yaml:"targets"`

	// SignaturePath optionally points to a YAML defect-signature file;
	// empty selects the built-in signature.
	SignaturePath string `yaml:"signature_path"`

	// DryRun computes repairs and diffs without writing anything.
	DryRun bool `yaml:"dry_run"`

	// Backup writes <path>.bak before overwriting a repaired file.
	Backup bool `yaml:"backup"`

	// Jobs bounds batch concurrency; 0 selects the runner default.
	Jobs int `yaml:"jobs"`

	History HistoryConfig `yaml:"history"`
	Logging LoggingConfig `yaml:"logging"`
}

// HistoryConfig configures the repair-history store.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures categorized debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Dir        string          `yaml:"dir"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		History: HistoryConfig{
			Enabled: false,
			Path:    ".blockmend/history.db",
		},
		Logging: LoggingConfig{
			Dir:   ".blockmend/logs",
			Level: "info",
		},
	}
}

// Load reads a YAML file over the defaults and applies environment
// overrides. An empty path skips the file and still applies the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overlays BLOCKMEND_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BLOCKMEND_SIGNATURE"); v != "" {
		c.SignaturePath = v
	}
	if v := os.Getenv("BLOCKMEND_DRY_RUN"); v != "" {
		c.DryRun = parseBool(v, c.DryRun)
	}
	if v := os.Getenv("BLOCKMEND_BACKUP"); v != "" {
		c.Backup = parseBool(v, c.Backup)
	}
	if v := os.Getenv("BLOCKMEND_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Jobs = n
		}
	}
	if v := os.Getenv("BLOCKMEND_HISTORY_PATH"); v != "" {
		c.History.Enabled = true
		c.History.Path = v
	}
	if v := os.Getenv("BLOCKMEND_DEBUG"); v != "" {
		c.Logging.DebugMode = parseBool(v, c.Logging.DebugMode)
	}
}

// Validate rejects configurations the tool cannot act on.
func (c *Config) Validate() error {
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must be >= 0, got %d", c.Jobs)
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history enabled but no path configured")
	}
	return nil
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

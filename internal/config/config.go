// Package config loads annostore configuration from YAML
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the complete annostore configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DatabaseConfig selects the annotation database and acting coder
type DatabaseConfig struct {
	Path    string `yaml:"path"`
	CoderID int    `yaml:"coder_id"`
}

// SearchConfig tunes the streaming search engine
type SearchConfig struct {
	BatchSize     int `yaml:"batch_size"`
	BufferBatches int `yaml:"buffer_batches"`
	ContextChars  int `yaml:"context_chars"`
}

// LoggingConfig mirrors logger.Config
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Pretty     bool   `yaml:"pretty"`
	WithCaller bool   `yaml:"with_caller"`
}

// MetricsConfig controls the observability endpoint
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Default returns a configuration with sensible defaults
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Path: "annostore.db",
		},
		Search: SearchConfig{
			BatchSize:     20,
			BufferBatches: 4,
			ContextChars:  30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML
func Save(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks value ranges
func (c Config) Validate() error {
	var errs []error

	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Database.CoderID < 0 {
		errs = append(errs, fmt.Errorf("database.coder_id must not be negative, got %d", c.Database.CoderID))
	}
	if c.Search.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("search.batch_size must be positive, got %d", c.Search.BatchSize))
	}
	if c.Search.BufferBatches < 0 {
		errs = append(errs, fmt.Errorf("search.buffer_batches must not be negative, got %d", c.Search.BufferBatches))
	}
	if c.Search.ContextChars < 0 {
		errs = append(errs, fmt.Errorf("search.context_chars must not be negative, got %d", c.Search.ContextChars))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		errs = append(errs, fmt.Errorf("metrics.port out of range: %d", c.Metrics.Port))
	}

	return errors.Join(errs...)
}

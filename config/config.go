// Package config loads the snapfold YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the full snapfold configuration.
type Config struct {
	Listen          string         `yaml:"listen"`
	DBPath          string         `yaml:"db_path"`
	LogLevel        string         `yaml:"log_level"`
	CheckIntervalMs int            `yaml:"check_interval_ms"`
	SnapshotTypes   []string       `yaml:"snapshot_types"`
	Registry        RegistryConfig `yaml:"registry"`
}

// RegistryConfig configures the external authority registry lookups.
type RegistryConfig struct {
	SearchURL string `yaml:"search_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
	MaxBytes  int64  `yaml:"max_bytes"`
	UserAgent string `yaml:"user_agent"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          ":8086",
		DBPath:          "snapfold.db",
		LogLevel:        "info",
		CheckIntervalMs: 60_000,
		SnapshotTypes: []string{
			"https://productencatalogus.data.vlaanderen.be/ns/ipdc-lpdc#ConceptSnapshot",
			"https://productencatalogus.data.vlaanderen.be/ns/ipdc-lpdc#InstanceSnapshot",
		},
		Registry: RegistryConfig{
			TimeoutMs: 10_000,
			MaxBytes:  1 * 1024 * 1024,
			UserAgent: "snapfold/1.0",
		},
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig
// merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.CheckIntervalMs <= 0 {
		return fmt.Errorf("check_interval_ms must be > 0")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log_level %q (use debug, info, warn or error)", c.LogLevel)
	}
	if len(c.SnapshotTypes) == 0 {
		return fmt.Errorf("snapshot_types must name at least one type URI")
	}
	return nil
}

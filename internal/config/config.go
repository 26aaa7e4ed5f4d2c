// Package config loads the engine configuration from YAML.
//
// A missing config file is not an error: DefaultConfig applies. Relative
// paths in the file are resolved against the file's directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// FileName is the default config file name inside the data dir.
	FileName = "evolve.yaml"
	// EnvPath overrides the config file location.
	EnvPath = "EVOLVE_CONFIG"
	// EnvDataDir overrides the data dir when no config file sets one.
	EnvDataDir = "EVOLVE_DATA_DIR"
)

// Config is the complete engine configuration.
type Config struct {
	// DataDir holds proposal records and the journal database.
	DataDir string `yaml:"data_dir"`
	// SnapshotDir is the snapshot store root (default <data_dir>/.snapshots).
	SnapshotDir string `yaml:"snapshot_dir"`
	// TrackedPaths are captured by the pre/post implementation snapshots.
	TrackedPaths []string `yaml:"tracked_paths"`
	// DatabasePaths are backed up alongside tracked paths but never restored.
	DatabasePaths []string `yaml:"database_paths"`
	// Exclude lists doublestar patterns skipped when copying directories.
	Exclude []string `yaml:"exclude"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// Journal enables the SQLite event journal.
	Journal bool `yaml:"journal"`
	// RecentLimit caps the recently completed section of the report.
	RecentLimit int `yaml:"recent_limit"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := os.Getenv(EnvDataDir)
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".evolve")
	}
	return &Config{
		DataDir:     dataDir,
		LogLevel:    "info",
		Journal:     true,
		RecentLimit: 5,
		Exclude:     []string{"**/.git", "**/node_modules", "**/__pycache__"},
	}
}

// SnapshotRoot returns the effective snapshot store root.
func (c *Config) SnapshotRoot() string {
	if c.SnapshotDir != "" {
		return c.SnapshotDir
	}
	return filepath.Join(c.DataDir, ".snapshots")
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}
	if c.RecentLimit < 0 {
		return fmt.Errorf("recent_limit must not be negative")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

// Load reads the config from path, falling back to EVOLVE_CONFIG and then
// to defaults when no file exists. The result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		path = filepath.Join(DefaultConfig().DataDir, FileName)
	}

	var cfg *Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg = DefaultConfig()
	} else {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// resolve makes relative paths absolute against base.
func (c *Config) resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.DataDir = abs(c.DataDir)
	c.SnapshotDir = abs(c.SnapshotDir)
	for i, p := range c.TrackedPaths {
		c.TrackedPaths[i] = abs(p)
	}
	for i, p := range c.DatabasePaths {
		c.DatabasePaths[i] = abs(p)
	}
}

// Package config holds the runtime configuration shared by the CLI and
// embedders: observer selection, decision cache location, and default state
// timing. Files are JSON and merge over defaults, so partial configs are
// fine.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	defaultObserver            = "slog"
	defaultCacheDir            = ".stateflow_cache"
	defaultStateTimeoutSeconds = 60
)

// Config holds initialization parameters for the machine runtime.
type Config struct {
	// Observer names a registered observer ("slog", "noop", or one added
	// via observability.RegisterObserver).
	Observer string `json:"observer,omitempty"`

	// CacheDir is where compiled decision functions are persisted.
	CacheDir string `json:"cache_dir,omitempty"`

	// DefaultStateTimeout is the per-state timeout in seconds applied to
	// declarative states that declare none.
	DefaultStateTimeout int `json:"default_state_timeout,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Observer:            defaultObserver,
		CacheDir:            defaultCacheDir,
		DefaultStateTimeout: defaultStateTimeoutSeconds,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Observer != "" {
		c.Observer = source.Observer
	}
	if source.CacheDir != "" {
		c.CacheDir = source.CacheDir
	}
	if source.DefaultStateTimeout > 0 {
		c.DefaultStateTimeout = source.DefaultStateTimeout
	}
}

// Load reads a JSON config file, merges it with defaults, and returns the
// resulting Config.
func Load(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

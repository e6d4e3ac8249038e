// Package config handles loading and managing application configuration
// from YAML files, .env files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/genqr/genqr/qr"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "GENQR_"

// RateLimit bounds render requests per client IP.
type RateLimit struct {
	RPS   float64 `yaml:"rps" env:"RPS"`
	Burst int     `yaml:"burst" env:"BURST"`
}

// History controls the download history store.
type History struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	Limit   int  `yaml:"limit" env:"LIMIT"`
}

// Config holds all application configuration values.
type Config struct {
	Port            int       `yaml:"port" env:"PORT"`
	DataDir         string    `yaml:"data_dir" env:"DATA_DIR"`
	LogLevel        string    `yaml:"log_level" env:"LOG_LEVEL"`
	RecoveryLevel   string    `yaml:"recovery_level" env:"RECOVERY_LEVEL"`
	DefaultFilename string    `yaml:"default_filename" env:"DEFAULT_FILENAME"`
	ResizeDebounce  Duration  `yaml:"resize_debounce" env:"RESIZE_DEBOUNCE"`
	RateLimit       RateLimit `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	History         History   `yaml:"history" envPrefix:"HISTORY_"`
}

// Duration is a wrapper around time.Duration that supports YAML and
// environment values written as human-readable strings like "120ms" or "2s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// UnmarshalText lets caarlos0/env decode Duration values.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// Defaults returns a Config populated with sensible default values.
func Defaults() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return &Config{
		Port:            8565,
		DataDir:         filepath.Join(homeDir, ".genqr"),
		LogLevel:        "info",
		RecoveryLevel:   "M",
		DefaultFilename: qr.DefaultFilename,
		ResizeDebounce:  Duration{120 * time.Millisecond},
		RateLimit:       RateLimit{RPS: 20, Burst: 40},
		History:         History{Enabled: true, Limit: 50},
	}
}

// Load reads configuration from the YAML file at path, falling back to
// defaults if the file does not exist. A .env file in the working directory
// is loaded next, then GENQR_* environment variables override any file or
// default values.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Variables already set in the process environment win over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := qr.ParseLevel(c.RecoveryLevel); err != nil {
		return fmt.Errorf("recovery_level: %w", err)
	}
	if c.ResizeDebounce.Duration <= 0 {
		return fmt.Errorf("resize_debounce must be positive, got %s", c.ResizeDebounce)
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rate_limit values must not be negative")
	}
	return nil
}

// HistoryPath is the SQLite file holding the download history.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// EnsureDataDir creates the DataDir if it does not already exist.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir %s: %w", c.DataDir, err)
	}
	return nil
}

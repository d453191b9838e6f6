// Package config loads the rescue configuration from viper: config file,
// RESCUE_* environment variables, and bound CLI flags.
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// TierConfig holds per-tier oracle settings. Tier timeouts double as the
// handler-availability budget: expiry marks the tier unavailable rather than
// diagnosed-and-failed.
type TierConfig struct {
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxTokens int           `mapstructure:"max_tokens"`
}

// RetryConfig controls transport-level retries of oracle backend calls. The
// pipeline itself never re-runs a tier; this only covers transient API
// failures inside a single invocation.
type RetryConfig struct {
	Attempts     int    `mapstructure:"attempts"`
	InitialDelay int    `mapstructure:"initial_delay"` // milliseconds
	MaxDelay     int    `mapstructure:"max_delay"`     // milliseconds
	BackoffType  string `mapstructure:"backoff_type"`  // "exponential" or "fixed"
}

// CLIConfig configures the subprocess oracle backend.
type CLIConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// OracleConfig selects and configures the diagnostic backends.
type OracleConfig struct {
	Backend     string      `mapstructure:"backend"` // "cli" or "anthropic"
	CLI         CLIConfig   `mapstructure:"cli"`
	Tier1       TierConfig  `mapstructure:"tier1"`
	Tier2       TierConfig  `mapstructure:"tier2"`
	MaxSearches int         `mapstructure:"max_searches"`
	Retry       RetryConfig `mapstructure:"retry"`
}

// Config is the top-level rescue configuration.
type Config struct {
	LogsDir string       `mapstructure:"logs_dir"`
	DBPath  string       `mapstructure:"db_path"`
	NoFix   bool         `mapstructure:"no_fix"`
	Oracle  OracleConfig `mapstructure:"oracle"`
}

// DefaultRetryConfig is applied when no retry settings are configured.
var DefaultRetryConfig = RetryConfig{
	Attempts:     3,
	InitialDelay: 500,
	MaxDelay:     5000,
	BackoffType:  "exponential",
}

// FromViper unmarshals the configuration and applies defaults.
func FromViper() (Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to unmarshal configuration")
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Oracle.Backend == "" {
		cfg.Oracle.Backend = "cli"
	}
	if cfg.Oracle.CLI.Command == "" {
		cfg.Oracle.CLI.Command = "claude"
	}
	if cfg.Oracle.Tier1.Model == "" {
		cfg.Oracle.Tier1.Model = "claude-3-5-haiku-latest"
	}
	if cfg.Oracle.Tier1.Timeout == 0 {
		cfg.Oracle.Tier1.Timeout = 8 * time.Second
	}
	if cfg.Oracle.Tier1.MaxTokens == 0 {
		cfg.Oracle.Tier1.MaxTokens = 1024
	}
	if cfg.Oracle.Tier2.Model == "" {
		cfg.Oracle.Tier2.Model = "claude-3-7-sonnet-latest"
	}
	if cfg.Oracle.Tier2.Timeout == 0 {
		cfg.Oracle.Tier2.Timeout = 60 * time.Second
	}
	if cfg.Oracle.Tier2.MaxTokens == 0 {
		cfg.Oracle.Tier2.MaxTokens = 4096
	}
	if cfg.Oracle.MaxSearches == 0 {
		cfg.Oracle.MaxSearches = 3
	}
	if cfg.Oracle.Retry.Attempts == 0 {
		cfg.Oracle.Retry = DefaultRetryConfig
	}
}

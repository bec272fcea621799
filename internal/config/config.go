// Package config loads loreledger settings from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Log formats accepted by LORELEDGER_LOG_FORMAT.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the environment-derived configuration. CLI flags override it.
type Config struct {
	// DBPath is the SQLite ledger file.
	DBPath string `env:"LORELEDGER_DB" envDefault:"loreledger.db"`

	// ImportEnabled gates the importer; disabled imports fail fast.
	ImportEnabled bool `env:"LORELEDGER_IMPORT_ENABLED" envDefault:"true"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `env:"LORELEDGER_LOG_FORMAT" envDefault:"text"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses Config from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field values env tags cannot express.
func (c Config) Validate() error {
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("invalid LORELEDGER_LOG_FORMAT %q (want %s or %s)", c.LogFormat, LogFormatText, LogFormatJSON)
	}
	if c.DBPath == "" {
		return fmt.Errorf("LORELEDGER_DB must not be empty")
	}
	return nil
}

// Package config loads shellhost settings from SHELL_* environment
// variables and sets up logging and tracing from them.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/wippyai/wasm-shell/errors"
)

// Config holds the host settings. Command-line flags override these.
type Config struct {
	Dir          string `env:"SHELL_DIR" envDefault:"."`
	Bind         string `env:"SHELL_BIND" envDefault:"127.0.0.1:8000"`
	Manifest     string `env:"SHELL_MANIFEST"`
	Origin       string `env:"SHELL_ORIGIN"`
	CacheDB      string `env:"SHELL_CACHE_DB"`
	TLSCert      string `env:"SHELL_TLS_CERT"`
	TLSKey       string `env:"SHELL_TLS_KEY"`
	Features     string `env:"SHELL_FEATURES" envDefault:"bulk-memory,threads"`
	LogLevel     string `env:"SHELL_LOG_LEVEL" envDefault:"info"`
	ServiceName  string `env:"SHELL_SERVICE_NAME" envDefault:"shellhost"`
	OTelEndpoint string `env:"SHELL_OTEL_ENDPOINT"`
	Isolation    bool   `env:"SHELL_ISOLATION" envDefault:"true"`
	LogDev       bool   `env:"SHELL_LOG_DEV"`
	OTelEnabled  bool   `env:"SHELL_OTEL_ENABLED" envDefault:"true"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "environment")
	}
	return cfg, nil
}

// Validate checks settings that depend on each other.
func (c Config) Validate() error {
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.InvalidInput(errors.PhaseConfig, "TLS needs both a certificate and a key")
	}
	if strings.TrimSpace(c.Bind) == "" {
		return errors.InvalidInput(errors.PhaseConfig, "bind address is required")
	}
	return nil
}

// TLS reports whether the host serves HTTPS.
func (c Config) TLS() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// Package config loads settings for the server (environment) and the
// terminal client (TOML file, environment, flags).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server configures todod.
type Server struct {
	Addr        string        `env:"TADA_ADDR" envDefault:":8080"`
	Store       string        `env:"TADA_STORE" envDefault:"sqlite"`
	DBPath      string        `env:"TADA_DB_PATH" envDefault:"tada.db"`
	JSONPath    string        `env:"TADA_JSON_PATH" envDefault:"tada.json"`
	JWTSecret   string        `env:"TADA_JWT_SECRET"`
	TokenTTL    time.Duration `env:"TADA_TOKEN_TTL" envDefault:"24h"`
	LogLevel    string        `env:"TADA_LOG_LEVEL" envDefault:"info"`
	LogFormat   string        `env:"TADA_LOG_FORMAT" envDefault:"text"`
	OTelEnabled string        `env:"TADA_OTEL_ENABLED"`
	OTelURL     string        `env:"TADA_OTEL_ENDPOINT"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadServer parses and validates the server configuration.
func LoadServer() (Server, error) {
	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return Server{}, err
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	switch cfg.Store {
	case "sqlite", "json":
	default:
		return Server{}, fmt.Errorf("TADA_STORE must be sqlite or json, got %q", cfg.Store)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return Server{}, fmt.Errorf("TADA_JWT_SECRET is required")
	}
	if cfg.TokenTTL <= 0 {
		return Server{}, fmt.Errorf("TADA_TOKEN_TTL must be positive")
	}
	return cfg, nil
}

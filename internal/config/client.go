package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Duration decodes "5m" style strings from both TOML and the environment.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

// Client configures the terminal client.
type Client struct {
	Server    string   `toml:"server" env:"TADA_SERVER"`
	StaleTime Duration `toml:"stale_time" env:"TADA_STALE_TIME"`
	Timeout   Duration `toml:"timeout" env:"TADA_TIMEOUT"`
	Theme     string   `toml:"theme" env:"TADA_THEME"`
	LogLevel  string   `toml:"log_level" env:"TADA_LOG_LEVEL"`
}

// DefaultClient returns the built-in client settings.
func DefaultClient() Client {
	return Client{
		Server:    "http://localhost:8080",
		StaleTime: Duration(5 * time.Minute),
		Timeout:   Duration(10 * time.Second),
		Theme:     "classic",
		LogLevel:  "warn",
	}
}

// Dir is ~/.tada, shared with the credential file.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home: %w", err)
	}
	return filepath.Join(home, ".tada"), nil
}

// ClientConfigPath returns the default config file location.
func ClientConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LoadClient loads, in order: defaults, the TOML file at path (missing is
// fine), then environment overrides. Flags are applied by the caller.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Client{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Client{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.Server = strings.TrimRight(strings.TrimSpace(cfg.Server), "/")
	if cfg.Server == "" {
		return Client{}, fmt.Errorf("server address is empty")
	}
	if cfg.StaleTime < 0 {
		return Client{}, fmt.Errorf("stale_time must not be negative")
	}
	return cfg, nil
}

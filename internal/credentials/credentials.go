// Package credentials keeps the terminal client's session token in
// ~/.tada/credentials.json.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Makepad-fr/tada/internal/config"
)

const fileName = "credentials.json"

// EnvToken overrides the stored token when set.
const EnvToken = "TADA_TOKEN"

type TokenInfo struct {
	Token     string     `json:"token"`
	Source    string     `json:"source"`     // "env" | "file"
	Email     string     `json:"email,omitempty"`
	Server    string     `json:"server,omitempty"`
	CreatedAt time.Time  `json:"created_at"` // when we saved to file
	ExpiresAt *time.Time `json:"expires_at"`
}

// Expired reports whether the token has a known expiry before now.
func (ti *TokenInfo) Expired(now time.Time) bool {
	return ti != nil && ti.ExpiresAt != nil && !now.Before(*ti.ExpiresAt)
}

// Store reads and writes the credential file in Dir.
type Store struct {
	Dir string
}

// Default returns the store under ~/.tada.
func Default() (*Store, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) path() string { return filepath.Join(s.Dir, fileName) }

// Get returns the current token, or nil when not logged in.
func (s *Store) Get() (*TokenInfo, error) {
	// 1) env override
	if env := strings.TrimSpace(os.Getenv(EnvToken)); env != "" {
		return &TokenInfo{Token: stripBearer(env), Source: "env"}, nil
	}

	// 2) file
	b, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var ti TokenInfo
	if err := json.Unmarshal(b, &ti); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	ti.Token = stripBearer(ti.Token)
	ti.Source = "file"
	return &ti, nil
}

// Token returns the bearer token or "" and never fails; it is the token
// source handed to the API client.
func (s *Store) Token() string {
	ti, err := s.Get()
	if err != nil || ti == nil {
		return ""
	}
	return ti.Token
}

// Set saves a session for server.
func (s *Store) Set(ti TokenInfo) error {
	ti.Token = stripBearer(strings.TrimSpace(ti.Token))
	if ti.Token == "" {
		return fmt.Errorf("empty token")
	}
	// ensure the directory exists with 0700
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	ti.Source = "file"
	if ti.CreatedAt.IsZero() {
		ti.CreatedAt = time.Now()
	}
	b, err := json.MarshalIndent(ti, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	// write with 0600 (owner-only)
	if err := os.WriteFile(s.path(), b, 0o600); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Delete removes the saved session. Missing files are fine.
func (s *Store) Delete() error {
	if err := os.Remove(s.path()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

func stripBearer(s string) string {
	if strings.HasPrefix(strings.ToLower(s), "bearer ") {
		return strings.TrimSpace(s[7:])
	}
	return s
}

package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	credDirName  = ".todolist"
	credFileName = "credentials.json"
	TokenEnv     = "TODOLIST_TOKEN"
)

type TokenInfo struct {
	Token     string     `json:"token"`
	Username  string     `json:"username,omitempty"`
	Source    string     `json:"source"`     // "env" | "file"
	CreatedAt time.Time  `json:"created_at"` // when we saved to file
	ExpiresAt *time.Time `json:"expires_at"`
}

// Expired reports whether the stored expiry has passed. Tokens without a
// known expiry are left for the server to judge.
func (ti *TokenInfo) Expired(now time.Time) bool {
	return ti != nil && ti.ExpiresAt != nil && !now.Before(*ti.ExpiresAt)
}

// TokenFile is the client-side token holder. Dir defaults to ~/.todolist.
type TokenFile struct {
	Dir string
}

func (f TokenFile) dir() (string, error) {
	if f.Dir != "" {
		return f.Dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home: %w", err)
	}
	return filepath.Join(home, credDirName), nil
}

func (f TokenFile) path() (string, error) {
	dir, err := f.dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, credFileName), nil
}

// Load returns nil, nil when no token is held.
func (f TokenFile) Load() (*TokenInfo, error) {
	if env := strings.TrimSpace(os.Getenv(TokenEnv)); env != "" {
		return &TokenInfo{Token: stripBearer(env), Source: "env"}, nil
	}

	p, err := f.path()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil // not logged in
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var ti TokenInfo
	if err := json.Unmarshal(b, &ti); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	ti.Token = stripBearer(ti.Token)
	if ti.Token == "" {
		return nil, nil
	}
	return &ti, nil
}

func (f TokenFile) Save(token, username string, expires *time.Time) error {
	token = stripBearer(strings.TrimSpace(token))
	if token == "" {
		return errors.New("empty token")
	}
	dir, err := f.dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	ti := TokenInfo{
		Token:     token,
		Username:  username,
		Source:    "file",
		CreatedAt: time.Now(),
		ExpiresAt: expires,
	}
	b, err := json.MarshalIndent(ti, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	p, err := f.path()
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, b, 0o600); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Delete removes the stored token. Deleting a missing file is not an error.
func (f TokenFile) Delete() error {
	p, err := f.path()
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
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

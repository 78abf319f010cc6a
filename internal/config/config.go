// Package config reads the server settings from the environment, after
// loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minSecretLen = 16

type Config struct {
	Port        string
	DatabaseURL string
	DBName      string
	JWTSecret   []byte
	TokenTTL    time.Duration
	CORSOrigins []string
}

// LoadEnv reads .env into the process environment. A missing file is fine.
func LoadEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// Load builds a Config from the environment.
func Load() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary lookup function.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	cfg := Config{
		Port:        get("PORT", "5000"),
		DatabaseURL: get("DATABASE_URL", get("MONGO_URI", "memory://")),
		DBName:      get("DB_NAME", "mytodo"),
		JWTSecret:   []byte(get("JWT_SECRET", "")),
	}

	if n, err := strconv.Atoi(cfg.Port); err != nil || n < 1 || n > 65535 {
		return Config{}, fmt.Errorf("PORT %q is not a valid port", cfg.Port)
	}

	if len(cfg.JWTSecret) == 0 {
		return Config{}, errors.New("JWT_SECRET must be set")
	}
	if len(cfg.JWTSecret) < minSecretLen {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLen)
	}

	ttl, err := time.ParseDuration(get("TOKEN_TTL", "72h"))
	if err != nil {
		return Config{}, fmt.Errorf("TOKEN_TTL: %w", err)
	}
	if ttl <= 0 {
		return Config{}, errors.New("TOKEN_TTL must be positive")
	}
	cfg.TokenTTL = ttl

	for _, o := range strings.Split(get("CORS_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}
	return cfg, nil
}

func (c Config) Addr() string { return ":" + c.Port }

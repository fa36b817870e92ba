// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all tunables for the simulation engine.
type Config struct {
	// EngineURL is the base URL of a remote execution engine. Empty
	// means no remote engine is configured and runs use the offline
	// generator.
	EngineURL string

	// EngineAPIKey authenticates against the remote engine.
	EngineAPIKey string

	// DefaultShots is the shot count used when a request does not
	// specify one.
	DefaultShots int

	// MaxQubits caps the size of a single simulation run.
	MaxQubits int

	// CacheSize bounds the in-memory result store.
	CacheSize int

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// Load reads configuration from the environment. A .env file in the
// working directory is honored when present; a missing file is not an
// error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		EngineURL:    os.Getenv("QKD_ENGINE_URL"),
		EngineAPIKey: os.Getenv("QKD_ENGINE_API_KEY"),
		DefaultShots: 1024,
		MaxQubits:    20,
		CacheSize:    500,
		LogLevel:     "info",
	}

	if v := os.Getenv("QKD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	var err error
	if cfg.DefaultShots, err = intEnv("QKD_DEFAULT_SHOTS", cfg.DefaultShots); err != nil {
		return nil, err
	}
	if cfg.MaxQubits, err = intEnv("QKD_MAX_QUBITS", cfg.MaxQubits); err != nil {
		return nil, err
	}
	if cfg.CacheSize, err = intEnv("QKD_CACHE_SIZE", cfg.CacheSize); err != nil {
		return nil, err
	}

	if cfg.DefaultShots < 1 {
		return nil, fmt.Errorf("QKD_DEFAULT_SHOTS must be positive, got %d", cfg.DefaultShots)
	}
	if cfg.MaxQubits < 1 {
		return nil, fmt.Errorf("QKD_MAX_QUBITS must be positive, got %d", cfg.MaxQubits)
	}

	return cfg, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

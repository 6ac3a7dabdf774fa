// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port   string
	DBPath string

	RedisHost string
	RedisPort int
	RedisDB   int

	// InactivityThreshold is how long a user may be idle before the
	// reaper flushes their cached sessions to the archive.
	InactivityThreshold time.Duration
	// SweepInterval is how often the reaper wakes up.
	SweepInterval time.Duration
	// CacheReadTimeout bounds how long a read waits on the hot store
	// before falling back to the archive.
	CacheReadTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "6003"),
		DBPath:              getEnv("DB_PATH", "./data/chatstore.db"),
		RedisHost:           getEnv("REDIS_HOST", "localhost"),
		RedisPort:           getEnvInt("REDIS_PORT", 6379),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		InactivityThreshold: getEnvDuration("INACTIVITY_THRESHOLD", 15*time.Minute),
		SweepInterval:       getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		CacheReadTimeout:    getEnvDuration("CACHE_READ_TIMEOUT", time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST cannot be empty")
	}
	if c.RedisPort <= 0 || c.RedisPort > 65535 {
		return fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.RedisPort)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("REDIS_DB cannot be negative")
	}
	if c.InactivityThreshold <= 0 {
		return fmt.Errorf("INACTIVITY_THRESHOLD must be > 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if c.CacheReadTimeout <= 0 {
		return fmt.Errorf("CACHE_READ_TIMEOUT must be > 0")
	}
	return nil
}

// RedisAddr returns the hot-store address in host:port form.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

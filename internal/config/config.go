// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/foresight/event-engine/internal/event"
)

// Config holds all configuration for the server.
type Config struct {
	Environment     string
	Port            string
	DatabaseURL     string // empty selects the in-memory store
	RedisURL        string // empty disables the read-through cache
	AutoMigrate     bool   // apply MigrationsDir on startup when using PostgreSQL
	MigrationsDir   string
	CacheTTL        time.Duration
	ShutdownTimeout time.Duration
	StakeDefaults   event.Defaults
}

// Load reads configuration from environment variables. Outside production
// a .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	env := getEnv("GO_ENV", "development")
	if env != "production" {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			slog.Warn(".env file could not be loaded", "err", err)
		}
	}

	cfg := &Config{
		Environment:   env,
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "sql/postgres"),
	}

	var err error
	if cfg.AutoMigrate, err = getBool("AUTO_MIGRATE", true); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	defaults := event.DefaultBounds()
	if defaults.MinStake, err = getDecimal("DEFAULT_MIN_STAKE", defaults.MinStake); err != nil {
		return nil, err
	}
	if defaults.MaxStake, err = getDecimal("DEFAULT_MAX_STAKE", defaults.MaxStake); err != nil {
		return nil, err
	}
	if defaults.MinStake.IsNegative() || defaults.MaxStake.LessThan(defaults.MinStake) {
		return nil, fmt.Errorf("config: stake defaults %s..%s are not a valid range", defaults.MinStake, defaults.MaxStake)
	}
	cfg.StakeDefaults = defaults

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func getDecimal(key string, def decimal.Decimal) (decimal.Decimal, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}

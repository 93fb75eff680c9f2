package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-faster/errors"

	"github.com/JonMunkholm/aggrada/internal/outsource"
	"github.com/JonMunkholm/aggrada/internal/period"
)

// Load reads configuration from the process environment.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	return load(env.Options{})
}

// LoadFrom reads configuration from environ instead of the process
// environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	return load(env.Options{Environment: environ})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, errors.Wrap(err, "config load")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation")
	}
	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	switch strings.ToLower(c.Database.Driver) {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required for the postgres driver")
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			errs = append(errs, "SQLITE_PATH is required for the sqlite driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER (%q) must be one of: postgres, sqlite", c.Database.Driver))
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Ingest validation
	if _, err := period.LoadLocation(c.Ingest.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("INGEST_TIMEZONE (%q) is not a known timezone", c.Ingest.Timezone))
	}
	if c.Ingest.BatchSize < 0 {
		errs = append(errs, "INGEST_BATCH_SIZE must be non-negative")
	}
	if c.Ingest.CacheSize <= 0 {
		errs = append(errs, "INGEST_CACHE_SIZE must be positive")
	}
	if c.Ingest.CacheTTL <= 0 {
		errs = append(errs, "INGEST_CACHE_TTL must be positive")
	}
	if c.Ingest.FanOut <= 0 || c.Ingest.FanOut > outsource.MaxConcurrency {
		errs = append(errs, fmt.Sprintf("INGEST_OUTSOURCE_CONCURRENCY (%d) must be 1-%d",
			c.Ingest.FanOut, outsource.MaxConcurrency))
	}
	if c.Ingest.MaxConcurrent <= 0 {
		errs = append(errs, "INGEST_MAX_CONCURRENT must be positive")
	}
	if c.Ingest.MaxWaitTime <= 0 {
		errs = append(errs, "INGEST_MAX_WAIT_TIME must be positive")
	}
	if c.Ingest.Timeout <= 0 {
		errs = append(errs, "INGEST_TIMEOUT must be positive")
	}
	if c.Ingest.MaxJobSize <= 0 {
		errs = append(errs, "INGEST_MAX_JOB_SIZE must be positive")
	}
	if c.Ingest.LogDir == "" {
		errs = append(errs, "INGEST_LOG_DIR must not be empty")
	}
	if c.Ingest.DataDir == "" {
		errs = append(errs, "INGEST_DATA_DIR must not be empty")
	}

	// Outsource validation
	if c.Outsource.Timeout <= 0 {
		errs = append(errs, "OUTSOURCE_TIMEOUT must be positive")
	}
	if c.Outsource.RetryMax < 0 {
		errs = append(errs, "OUTSOURCE_RETRY_MAX must be non-negative")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return errors.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// The database URL and API tokens are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Database: {Driver: %q, URL: %s, SQLitePath: %q, MaxConns: %d, MinConns: %d}, ",
		c.Database.Driver, mask(c.Database.URL), c.Database.SQLitePath, c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Ingest: {Timezone: %q, CacheSize: %d, CacheTTL: %s, FanOut: %d, MaxConcurrent: %d, LogDir: %q, DataDir: %q, AllowQueryJobs: %t}, ",
		c.Ingest.Timezone, c.Ingest.CacheSize, c.Ingest.CacheTTL, c.Ingest.FanOut, c.Ingest.MaxConcurrent, c.Ingest.LogDir, c.Ingest.DataDir, c.Ingest.AllowQueryJobs))
	b.WriteString(fmt.Sprintf("Outsource: {Timeout: %s, RetryMax: %d, CEPAbertoToken: %s}, ",
		c.Outsource.Timeout, c.Outsource.RetryMax, mask(c.Outsource.CEPAbertoToken)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

func mask(secret string) string {
	if secret == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}

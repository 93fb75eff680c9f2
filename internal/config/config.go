// Package config provides centralized configuration management for the ingester.
// Process settings come from environment variables with sensible defaults and
// are validated on startup to fail fast on misconfiguration. Ingestion jobs are
// described separately in YAML files (see LoadJob).
package config

import (
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/JonMunkholm/aggrada/internal/outsource"
	"github.com/JonMunkholm/aggrada/internal/store"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all process configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Ingest    IngestConfig
	Outsource OutsourceConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envDefault:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`

	// WriteTimeout is 0 by default because ingest requests can run for minutes.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including draining runs (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DatabaseConfig selects and sizes the store.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite" (default: postgres)
	Driver string `env:"DB_DRIVER" envDefault:"postgres"`

	// URL is the PostgreSQL connection string, required for the postgres driver
	URL string `env:"DATABASE_URL"`

	// SQLitePath is the database file for the sqlite driver (default: aggrada.db)
	SQLitePath string `env:"SQLITE_PATH" envDefault:"aggrada.db"`

	MaxConns        int           `env:"DB_MAX_CONNS" envDefault:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" envDefault:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
}

// IngestConfig tunes the pipeline and the spatial cache.
type IngestConfig struct {
	// Timezone applies to jobs that do not name one (default: UTC)
	Timezone string `env:"INGEST_TIMEZONE" envDefault:"UTC"`

	// BatchSize overrides the per-extension default when > 0
	BatchSize int `env:"INGEST_BATCH_SIZE" envDefault:"0"`

	CacheSize int           `env:"INGEST_CACHE_SIZE" envDefault:"30000"`
	CacheTTL  time.Duration `env:"INGEST_CACHE_TTL" envDefault:"8m"`

	// FanOut is the number of concurrent outsourced lookups (default: 10, max 20)
	FanOut int `env:"INGEST_OUTSOURCE_CONCURRENCY" envDefault:"10"`

	// MaxConcurrent is the number of runs the server executes at once (default: 2)
	MaxConcurrent int `env:"INGEST_MAX_CONCURRENT" envDefault:"2"`

	// MaxWaitTime is how long a request waits for a run slot (default: 30s)
	MaxWaitTime time.Duration `env:"INGEST_MAX_WAIT_TIME" envDefault:"30s"`

	// Timeout bounds a run started over HTTP (default: 30m)
	Timeout time.Duration `env:"INGEST_TIMEOUT" envDefault:"30m"`

	// MaxJobSize caps the size of a job body posted to the API (default: 1MB)
	MaxJobSize int64 `env:"INGEST_MAX_JOB_SIZE" envDefault:"1048576"`

	// LogDir holds the metrics file and the not-found log (default: .log)
	LogDir string `env:"INGEST_LOG_DIR" envDefault:".log"`

	// DataDir is the only directory jobs posted to the API may read from (default: data)
	DataDir string `env:"INGEST_DATA_DIR" envDefault:"data"`

	// AllowQueryJobs lets API jobs derive periods from a store query (default: false)
	AllowQueryJobs bool `env:"INGEST_ALLOW_QUERY_JOBS" envDefault:"false"`
}

// OutsourceConfig configures remote registries.
type OutsourceConfig struct {
	Timeout  time.Duration `env:"OUTSOURCE_TIMEOUT" envDefault:"10s"`
	RetryMax int           `env:"OUTSOURCE_RETRY_MAX" envDefault:"3"`

	IBGEBaseURL      string `env:"IBGE_BASE_URL" envDefault:"https://servicodados.ibge.gov.br"`
	CEPAbertoBaseURL string `env:"CEP_ABERTO_BASE_URL" envDefault:"https://www.cepaberto.com"`
	CEPAbertoToken   string `env:"CEP_ABERTO_TOKEN"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" envDefault:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// PoolConfig converts the pool settings for store.OpenPostgres.
func (c *DatabaseConfig) PoolConfig() store.PoolConfig {
	return store.PoolConfig{
		MaxConns:        c.MaxConns,
		MinConns:        c.MinConns,
		MaxConnLifetime: c.MaxConnLifetime,
		MaxConnIdleTime: c.MaxConnIdleTime,
	}
}

func (c *IngestConfig) MetricsPath() string {
	return filepath.Join(c.LogDir, "performance_metrics.jsonl")
}

func (c *IngestConfig) NotFoundPath() string {
	return filepath.Join(c.LogDir, "index_not_found.log")
}

// Settings converts to the outsource registry settings.
func (c *OutsourceConfig) Settings() outsource.Settings {
	return outsource.Settings{
		Client: outsource.ClientConfig{
			Timeout:  c.Timeout,
			RetryMax: c.RetryMax,
		},
		IBGEBaseURL:      c.IBGEBaseURL,
		CEPAbertoBaseURL: c.CEPAbertoBaseURL,
		CEPAbertoToken:   c.CEPAbertoToken,
	}
}

// Package config provides centralized configuration management for the
// ingestion service. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendDynamo   = "dynamodb"
	BackendMemory   = "memory"
)

// Blob backends.
const (
	BlobS3    = "s3"
	BlobLocal = "local"
)

// MaxBatchSize is the per-call item limit of the batch write API.
const MaxBatchSize = 25

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Blob     BlobConfig
	Ingest   IngestConfig
	Observer ObserverConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings for the trigger endpoints.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"6m"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds the wait for active invocations on shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// StoreConfig selects the key-value store.
type StoreConfig struct {
	// Backend is one of postgres, dynamodb, memory (default: postgres)
	Backend string `env:"STORE_BACKEND" default:"postgres"`

	// Table is the target store identifier, resolved once at startup.
	// targetDyanamo is accepted for older deployments.
	Table string `env:"TARGET_TABLE" envAlt:"targetDyanamo" required:"true"`
}

// DatabaseConfig holds PostgreSQL settings, used when Store.Backend is postgres.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// NotifyChannel is the LISTEN/NOTIFY channel carrying committed rows (default: food_changes)
	NotifyChannel string `env:"DB_NOTIFY_CHANNEL" default:"food_changes"`

	// EnsureSchema creates the table and notify trigger on startup (default: true)
	EnsureSchema bool `env:"DB_ENSURE_SCHEMA" default:"true"`

	// DeadLetterTable keeps permanently failed records; empty logs them instead.
	DeadLetterTable string `env:"DB_DEAD_LETTER_TABLE"`
}

// AWSConfig holds settings shared by the S3 and DynamoDB clients.
type AWSConfig struct {
	// Region defaults to eu-west-2.
	Region string `env:"AWS_REGION" envAlt:"AWS_DEFAULT_REGION" default:"eu-west-2"`

	// Endpoint overrides the service endpoint (e.g. a local emulator).
	Endpoint string `env:"AWS_ENDPOINT_URL"`
}

// BlobConfig selects where uploaded objects are read from.
type BlobConfig struct {
	// Backend is s3 or local (default: s3)
	Backend string `env:"BLOB_BACKEND" default:"s3"`

	// LocalRoot is the directory holding <bucket>/<key> files for the local backend.
	LocalRoot string `env:"BLOB_LOCAL_ROOT" default:"./data"`

	// MaxObjectSize rejects larger objects before parsing (default: 100MB)
	MaxObjectSize int64 `env:"BLOB_MAX_OBJECT_SIZE" default:"104857600"`
}

// IngestConfig holds batching and retry settings for one invocation.
type IngestConfig struct {
	// BatchSize is the number of records per store call, at most 25 (default: 25)
	BatchSize int `env:"INGEST_BATCH_SIZE" default:"25"`

	// MaxAttempts is how many times a record may be sent before it is dead-lettered (default: 3)
	MaxAttempts int `env:"INGEST_MAX_ATTEMPTS" default:"3"`

	// RetryBackoff is the wait before the first retry, doubled per attempt (default: 200ms)
	RetryBackoff time.Duration `env:"INGEST_RETRY_BACKOFF" default:"200ms"`

	// MaxBackoff caps the retry wait (default: 5s)
	MaxBackoff time.Duration `env:"INGEST_MAX_BACKOFF" default:"5s"`

	// Timeout is the hard execution budget of one invocation (default: 5m)
	Timeout time.Duration `env:"INGEST_TIMEOUT" default:"5m"`

	// MaxConcurrent caps parallel invocations (default: 5)
	MaxConcurrent int `env:"INGEST_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an invocation slot (default: 30s)
	MaxWaitTime time.Duration `env:"INGEST_MAX_WAIT_TIME" default:"30s"`

	// ResultRetention is how long finished invocation results stay queryable (default: 1h)
	ResultRetention time.Duration `env:"INGEST_RESULT_RETENTION" default:"1h"`
}

// ObserverConfig holds change observer settings.
type ObserverConfig struct {
	// Enabled starts the change observer for the configured store (default: true)
	Enabled bool `env:"OBSERVER_ENABLED" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

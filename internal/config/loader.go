package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables, applies defaults for
// unset values and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	cfg.Blob.Backend = strings.ToLower(strings.TrimSpace(cfg.Blob.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		// Get tags
		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Primary name wins over the alternate
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}

		// Apply default if not set
		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		// Set the field value
		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Store validation
	switch strings.ToLower(c.Store.Backend) {
	case BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required when STORE_BACKEND is postgres")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Observer.Enabled && c.Database.NotifyChannel == "" {
			errs = append(errs, "DB_NOTIFY_CHANNEL is required when OBSERVER_ENABLED is true")
		}
	case BackendDynamo, BackendMemory:
	default:
		errs = append(errs, fmt.Sprintf("STORE_BACKEND (%q) must be one of: postgres, dynamodb, memory", c.Store.Backend))
	}
	if strings.TrimSpace(c.Store.Table) == "" {
		errs = append(errs, "TARGET_TABLE is required")
	}

	// Blob validation
	switch strings.ToLower(c.Blob.Backend) {
	case BlobS3:
	case BlobLocal:
		if c.Blob.LocalRoot == "" {
			errs = append(errs, "BLOB_LOCAL_ROOT is required when BLOB_BACKEND is local")
		}
	default:
		errs = append(errs, fmt.Sprintf("BLOB_BACKEND (%q) must be one of: s3, local", c.Blob.Backend))
	}
	if c.Blob.MaxObjectSize <= 0 {
		errs = append(errs, "BLOB_MAX_OBJECT_SIZE must be positive")
	}
	if (c.Store.Backend == BackendDynamo || c.Blob.Backend == BlobS3) && c.AWS.Region == "" {
		errs = append(errs, "AWS_REGION is required for the s3 and dynamodb backends")
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
	if c.Ingest.BatchSize <= 0 || c.Ingest.BatchSize > MaxBatchSize {
		errs = append(errs, fmt.Sprintf("INGEST_BATCH_SIZE (%d) must be 1-%d", c.Ingest.BatchSize, MaxBatchSize))
	}
	if c.Ingest.MaxAttempts <= 0 {
		errs = append(errs, "INGEST_MAX_ATTEMPTS must be positive")
	}
	if c.Ingest.RetryBackoff < 0 {
		errs = append(errs, "INGEST_RETRY_BACKOFF must be non-negative")
	}
	if c.Ingest.MaxBackoff < c.Ingest.RetryBackoff {
		errs = append(errs, "INGEST_MAX_BACKOFF must be >= INGEST_RETRY_BACKOFF")
	}
	if c.Ingest.Timeout <= 0 {
		errs = append(errs, "INGEST_TIMEOUT must be positive")
	}
	if c.Ingest.MaxConcurrent <= 0 {
		errs = append(errs, "INGEST_MAX_CONCURRENT must be positive")
	}
	if c.Ingest.MaxWaitTime <= 0 {
		errs = append(errs, "INGEST_MAX_WAIT_TIME must be positive")
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
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// The database URL is masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Store: {Backend: %q, Table: %q}, ", c.Store.Backend, c.Store.Table))
	b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, NotifyChannel: %q}, ",
		c.Database.MaxConns, c.Database.NotifyChannel))
	b.WriteString(fmt.Sprintf("Blob: {Backend: %q, MaxObjectSize: %d}, ", c.Blob.Backend, c.Blob.MaxObjectSize))
	b.WriteString(fmt.Sprintf("Ingest: {BatchSize: %d, MaxAttempts: %d, Timeout: %s}, ",
		c.Ingest.BatchSize, c.Ingest.MaxAttempts, c.Ingest.Timeout))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

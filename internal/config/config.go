// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and FEEDRANK_* environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the ops HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueCapacity bounds the view signal queue before drop-oldest applies.
	QueueCapacity int `koanf:"queue_capacity"`

	// StoreDriver selects persistence: memory, sqlite, postgres or redis.
	StoreDriver string `koanf:"store_driver"`

	SQLitePath       string `koanf:"sqlite_path"`
	PostgresURL      string `koanf:"postgres_url"`
	PostgresMaxConns int    `koanf:"postgres_max_conns"`
	RedisAddr        string `koanf:"redis_addr"`
	RedisDB          int    `koanf:"redis_db"`
	RedisKeyPrefix   string `koanf:"redis_key_prefix"`

	// BreakerFailureThreshold is the number of consecutive store failures
	// that opens the circuit. Zero disables the breaker.
	BreakerFailureThreshold uint32 `koanf:"breaker_failure_threshold"`

	// BreakerTimeoutMS is how long the circuit stays open before probing.
	BreakerTimeoutMS int `koanf:"breaker_timeout_ms"`

	// ShutdownTimeoutMS bounds graceful shutdown of HTTP and the worker.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms"`

	// MetricsNamespace and MetricsSubsystem prefix every exported metric,
	// e.g. feedrank_ingest_queue_size.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`
}

var metricNameSegment = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		QueueCapacity:           1000,
		StoreDriver:             "memory",
		SQLitePath:              "data/feedrank.db",
		PostgresMaxConns:        8,
		RedisDB:                 0,
		RedisKeyPrefix:          "feedrank:post:",
		BreakerFailureThreshold: 5,
		BreakerTimeoutMS:        30_000,
		ShutdownTimeoutMS:       10_000,
		MetricsNamespace:        "feedrank",
		MetricsSubsystem:        "ingest",
	}
}

// BreakerTimeout returns BreakerTimeoutMS as a duration.
func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutMS) * time.Millisecond
}

// ShutdownTimeout returns ShutdownTimeoutMS as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("%w: queue_capacity must be positive, got %d", ErrInvalidConfig, c.QueueCapacity)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	switch strings.ToLower(c.StoreDriver) {
	case "", "memory":
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path is required for the sqlite driver", ErrInvalidConfig)
		}
	case "postgres":
		if c.PostgresURL == "" {
			return fmt.Errorf("%w: postgres_url is required for the postgres driver", ErrInvalidConfig)
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for the redis driver", ErrInvalidConfig)
		}
		if c.RedisDB < 0 {
			return fmt.Errorf("%w: redis_db must not be negative", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.BreakerFailureThreshold > 0 && c.BreakerTimeoutMS <= 0 {
		return fmt.Errorf("%w: breaker_timeout_ms must be positive when the breaker is enabled", ErrInvalidConfig)
	}
	if c.ShutdownTimeoutMS <= 0 {
		return fmt.Errorf("%w: shutdown_timeout_ms must be positive", ErrInvalidConfig)
	}
	if !metricNameSegment.MatchString(c.MetricsNamespace) {
		return fmt.Errorf("%w: invalid metrics_namespace %q", ErrInvalidConfig, c.MetricsNamespace)
	}
	if c.MetricsSubsystem != "" && !metricNameSegment.MatchString(c.MetricsSubsystem) {
		return fmt.Errorf("%w: invalid metrics_subsystem %q", ErrInvalidConfig, c.MetricsSubsystem)
	}
	return nil
}

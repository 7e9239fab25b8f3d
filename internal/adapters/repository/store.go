// Package repository persists posts for the ingestion worker and the
// ranking service.
//
// Every adapter implements the same contract: LoadPost and Persist return
// ErrNotFound when the post does not exist, and nothing is cached between
// calls, so a load always reflects the latest persisted state.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/pkg/metrics"
)

// Supported driver names.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// PostStore is what the ingestion worker needs from persistence.
type PostStore interface {
	// LoadPost returns a fresh copy of the post. ErrNotFound if unknown.
	LoadPost(ctx context.Context, id int32) (*model.Post, error)

	// Persist writes p back and stamps p.UpdatedAt. ErrNotFound if the post
	// was removed since it was loaded.
	Persist(ctx context.Context, p *model.Post) error
}

// Store is the full adapter surface used by the application.
type Store interface {
	PostStore

	// Create inserts or replaces p.
	Create(ctx context.Context, p *model.Post) error

	// Count returns the number of stored posts.
	Count(ctx context.Context) (int, error)

	// Driver names the backing engine.
	Driver() string

	Close() error
}

// Config selects and addresses a backing store.
type Config struct {
	Driver      string
	SQLitePath  string
	PostgresURL string
	RedisAddr   string
	RedisDB     int
}

// Open connects to the store named by cfg.Driver and prepares its schema.
func Open(ctx context.Context, cfg Config, opts ...Option) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverMemory:
		return NewMemoryStore(opts...), nil
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath, opts...)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.PostgresURL, opts...)
	case DriverRedis:
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisDB, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

func validatePost(p *model.Post) error {
	if p == nil {
		return fmt.Errorf("%w: nil post", ErrInvalidPost)
	}
	return nil
}

// observe records the latency of one store operation.
func observe(driver, op string, start time.Time) {
	metrics.RecordStoreLatency(driver, op, float64(time.Since(start).Microseconds())/1000)
}

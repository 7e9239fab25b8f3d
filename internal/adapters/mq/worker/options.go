package worker

import (
	"context"
	"errors"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/feedrank/internal/adapters/repository"
	"github.com/okian/feedrank/pkg/logger"
	"github.com/okian/feedrank/pkg/metrics"
)

// Option applies a configuration option to the IngestionWorker.
type Option func(*IngestionWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *IngestionWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *IngestionWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithCircuitBreaker guards the load/persist cycle with a breaker built
// from settings. Missing posts and cancellations do not count as failures.
// While the breaker is open signals are dropped without touching the store.
func WithCircuitBreaker(settings gobreaker.Settings) Option {
	return func(w *IngestionWorker) {
		if settings.Name == "" {
			settings.Name = "post-store"
		}
		if settings.IsSuccessful == nil {
			settings.IsSuccessful = func(err error) bool {
				return err == nil ||
					errors.Is(err, repository.ErrNotFound) ||
					errors.Is(err, context.Canceled)
			}
		}
		next := settings.OnStateChange
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(name, int(to))
			w.logger.Warn(context.Background(), "circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
			if next != nil {
				next(name, from, to)
			}
		}
		w.breaker = gobreaker.NewCircuitBreaker[struct{}](settings)
		metrics.UpdateBreakerState(settings.Name, int(gobreaker.StateClosed))
	}
}

package repository

import "github.com/okian/feedrank/pkg/logger"

const (
	defaultMaxConns       = 8
	defaultRedisKeyPrefix = "feedrank:post:"
)

type options struct {
	logger    logger.Logger
	maxConns  int
	keyPrefix string
}

func defaultOptions() options {
	return options{
		logger:    logger.Get().Named("repository"),
		maxConns:  defaultMaxConns,
		keyPrefix: defaultRedisKeyPrefix,
	}
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxConns caps the Postgres pool size.
func WithMaxConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConns = n
		}
	}
}

// WithKeyPrefix sets the Redis key prefix under which posts are stored.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

package queue

import "github.com/okian/feedrank/pkg/logger"

// Option applies a configuration option to the ViewQueue.
type Option func(*ViewQueue)

// WithCapacity sets the maximum number of pending signals. Once full, the
// oldest signal is evicted to make room for the newest.
func WithCapacity(capacity int) Option {
	return func(q *ViewQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithUnbounded disables eviction; the buffer grows as needed.
func WithUnbounded() Option {
	return func(q *ViewQueue) {
		q.unbounded = true
	}
}

// WithLogger sets a custom logger for the queue.
func WithLogger(l logger.Logger) Option {
	return func(q *ViewQueue) {
		if l != nil {
			q.logger = l
		}
	}
}

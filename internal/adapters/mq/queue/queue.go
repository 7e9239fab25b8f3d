// Package queue buffers view signals between request handlers and the
// ingestion worker.
//
// Producers never wait: when the buffer is full the oldest pending signal is
// evicted so that the most recent activity survives overload. Every enqueue
// is an independent increment; signals for the same post are not merged.
package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/feedrank/pkg/logger"
	"github.com/okian/feedrank/pkg/metrics"
)

// DefaultCapacity is the number of pending signals kept before eviction.
const DefaultCapacity = 1000

// Queue is what producers and the worker see of the buffer.
type Queue interface {
	// Enqueue admits a signal for postID without blocking on consumers.
	Enqueue(ctx context.Context, postID int32) error

	// Dequeue blocks until a signal is available, ctx is done, or the
	// queue is closed and drained.
	Dequeue(ctx context.Context) (int32, error)

	// Len returns the number of pending signals.
	Len() int

	// Close stops accepting signals and wakes blocked consumers.
	Close() error

	// IsClosed reports whether Close has been called.
	IsClosed() bool
}

// ViewQueue is a FIFO ring buffer of post ids with drop-oldest overflow.
type ViewQueue struct {
	mu        sync.Mutex
	buf       []int32
	head      int
	size      int
	capacity  int
	unbounded bool
	closed    bool

	dropped atomic.Uint64

	// ready holds at most one wakeup for a blocked consumer.
	ready chan struct{}
	done  chan struct{}

	logger logger.Logger
}

var _ Queue = (*ViewQueue)(nil)

// NewViewQueue creates an empty queue.
func NewViewQueue(opts ...Option) *ViewQueue {
	q := &ViewQueue{
		capacity: DefaultCapacity,
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("view-queue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.buf = make([]int32, q.capacity)

	metrics.UpdateQueueCapacity(q.Capacity())
	metrics.UpdateQueueSize(0, q.Capacity())

	return q
}

// Enqueue appends postID. At capacity the oldest pending signal is evicted
// and counted in Dropped; the caller still gets nil. After Close it returns
// ErrClosed.
func (q *ViewQueue) Enqueue(ctx context.Context, postID int32) error {
	start := time.Now()
	defer func() {
		metrics.RecordEnqueueLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		metrics.RecordViewRejected()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}

	var (
		evicted int32
		dropped bool
	)
	if q.size == len(q.buf) {
		if q.unbounded {
			q.grow()
		} else {
			evicted, dropped = q.popLocked(), true
		}
	}
	q.buf[(q.head+q.size)%len(q.buf)] = postID
	q.size++
	size := q.size
	q.mu.Unlock()

	q.signal()

	metrics.RecordViewEnqueued()
	metrics.UpdateQueueSize(size, q.Capacity())
	if dropped {
		total := q.dropped.Add(1)
		metrics.RecordViewDropped()
		q.logger.Debug(ctx, "queue full, dropped oldest view signal",
			logger.Int32("post_id", evicted),
			logger.Uint64("dropped_total", total),
		)
	}
	return nil
}

// Dequeue removes and returns the oldest signal. It returns ErrClosed once
// the queue is closed and empty, and an error wrapping both ErrCancelled and
// ctx.Err() when ctx ends first.
func (q *ViewQueue) Dequeue(ctx context.Context) (int32, error) {
	for {
		q.mu.Lock()
		if q.size > 0 {
			postID := q.popLocked()
			size := q.size
			q.mu.Unlock()

			// Another consumer may be parked on ready.
			if size > 0 {
				q.signal()
			}
			metrics.RecordViewDequeued()
			metrics.UpdateQueueSize(size, q.Capacity())
			return postID, nil
		}
		if q.closed {
			q.mu.Unlock()
			return 0, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
	}
}

// Len returns the number of pending signals.
func (q *ViewQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Capacity returns the eviction threshold, or 0 for an unbounded queue.
func (q *ViewQueue) Capacity() int {
	if q.unbounded {
		return 0
	}
	return q.capacity
}

// Dropped returns how many signals have been evicted since creation.
func (q *ViewQueue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close stops accepting signals. Pending signals stay available to Dequeue.
// Closing twice is a no-op.
func (q *ViewQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	return nil
}

// IsClosed reports whether Close has been called.
func (q *ViewQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *ViewQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// popLocked removes the head element. q.mu must be held and q.size > 0.
func (q *ViewQueue) popLocked() int32 {
	postID := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return postID
}

// grow doubles the ring, unrolling it so head is at index 0.
func (q *ViewQueue) grow() {
	next := make([]int32, 2*len(q.buf))
	n := copy(next, q.buf[q.head:])
	copy(next[n:], q.buf[:q.head])
	q.buf = next
	q.head = 0
}

// Package worker drains view signals from the queue into persistence.
//
// A single IngestionWorker consumes the queue so increments for the same
// post are applied one at a time. Each signal is handled at most once: a
// failed load or persist drops that signal and the loop moves on.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/thejerf/suture/v4"

	"github.com/okian/feedrank/internal/adapters/mq/queue"
	"github.com/okian/feedrank/internal/adapters/repository"
	"github.com/okian/feedrank/pkg/logger"
	"github.com/okian/feedrank/pkg/metrics"
)

// Queue defines how the worker receives signals.
type Queue interface {
	Dequeue(ctx context.Context) (int32, error)
}

// State is the lifecycle phase of a worker.
type State int32

// Lifecycle states. Transitions only move forward.
const (
	StateIdle State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Discard reasons reported on the discarded-views metric.
const (
	reasonNotFound    = "not_found"
	reasonBreakerOpen = "breaker_open"
	reasonCancelled   = "cancelled"
	reasonPanic       = "panic"
)

// IngestionWorker applies one view increment per dequeued signal.
type IngestionWorker struct {
	queue   Queue
	store   repository.PostStore
	name    string
	breaker *gobreaker.CircuitBreaker[struct{}]

	state atomic.Int32

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once

	logger logger.Logger
}

// NewIngestionWorker creates an idle worker reading from q and writing to store.
func NewIngestionWorker(q Queue, store repository.PostStore, opts ...Option) *IngestionWorker {
	w := &IngestionWorker{
		queue:  q,
		store:  store,
		name:   "ingestion-worker",
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	metrics.UpdateWorkerState(int(StateIdle))
	return w
}

// Name identifies the worker in logs and the supervisor tree.
func (w *IngestionWorker) Name() string { return w.name }

// String lets suture report the service by name.
func (w *IngestionWorker) String() string { return w.name }

// State returns the current lifecycle state.
func (w *IngestionWorker) State() State {
	return State(w.state.Load())
}

func (w *IngestionWorker) setState(s State) {
	w.state.Store(int32(s))
	metrics.UpdateWorkerState(int(s))
}

// Run consumes the queue until ctx is done, Shutdown is called, or the queue
// is closed and drained. Pending signals are not flushed on cancellation.
// Those exits stop the worker for good. When Run fails instead, with a
// dequeue error or a panic, the worker goes back to idle so a supervisor can
// run it again. Concurrent calls return ErrAlreadyStarted; calls after the
// worker stopped return ErrStopped.
func (w *IngestionWorker) Run(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		if w.State() == StateStopped {
			return ErrStopped
		}
		return ErrAlreadyStarted
	}
	metrics.UpdateWorkerState(int(StateRunning))

	clean := false
	defer func() {
		if !clean && w.rearm() {
			return
		}
		w.setState(StateStopped)
		w.doneOnce.Do(func() { close(w.done) })
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-runCtx.Done():
		}
	}()

	w.logger.Info(ctx, "worker started", logger.String("worker", w.name))

	for {
		if runCtx.Err() != nil {
			w.logger.Info(ctx, "worker stopping", logger.String("worker", w.name))
			clean = true
			return nil
		}

		postID, err := w.queue.Dequeue(runCtx)
		if err != nil {
			switch {
			case errors.Is(err, queue.ErrClosed):
				w.logger.Info(ctx, "queue closed, worker stopping", logger.String("worker", w.name))
				clean = true
				return nil
			case runCtx.Err() != nil:
				w.logger.Info(ctx, "worker stopping", logger.String("worker", w.name))
				clean = true
				return nil
			default:
				metrics.RecordErrorByComponent("worker", "dequeue_failed")
				w.logger.Error(ctx, "dequeue failed, worker exiting for restart",
					logger.String("worker", w.name),
					logger.Error(err),
				)
				return fmt.Errorf("dequeue failed: %w", err)
			}
		}

		w.process(runCtx, postID)
	}
}

// Serve implements suture.Service. Failed runs are returned to the
// supervisor, which restarts the worker; a worker that stopped through
// Shutdown, ctx or a closed queue is not restarted.
func (w *IngestionWorker) Serve(ctx context.Context) error {
	err := w.Run(ctx)
	if err == nil || errors.Is(err, ErrAlreadyStarted) || errors.Is(err, ErrStopped) {
		return suture.ErrDoNotRestart
	}
	return err
}

// rearm moves a failed Running worker back to Idle. It reports false when a
// shutdown already claimed the worker. Shutdown inspects the state only after
// closing stop, so it finds and stops a rearmed worker itself.
func (w *IngestionWorker) rearm() bool {
	if w.stopRequested() || !w.state.CompareAndSwap(int32(StateRunning), int32(StateIdle)) {
		return false
	}
	metrics.UpdateWorkerState(int(StateIdle))
	return true
}

func (w *IngestionWorker) stopRequested() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

// Shutdown asks Run to return and waits for it or for ctx. The signal being
// processed, if any, finishes or is abandoned with the cancelled context.
func (w *IngestionWorker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stop) })

	if w.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
		metrics.UpdateWorkerState(int(StateStopped))
		w.doneOnce.Do(func() { close(w.done) })
		return nil
	}
	if w.state.CompareAndSwap(int32(StateRunning), int32(StateShuttingDown)) {
		metrics.UpdateWorkerState(int(StateShuttingDown))
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out", logger.String("worker", w.name))
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once the worker has stopped.
func (w *IngestionWorker) Done() <-chan struct{} {
	return w.done
}

// process applies one signal and classifies the outcome. It never returns an
// error: every failure is contained here.
func (w *IngestionWorker) process(ctx context.Context, postID int32) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordViewDiscarded(reasonPanic)
			metrics.RecordErrorByComponent("worker", "panic")
			w.logger.Error(ctx, "view signal handler panicked",
				logger.Int32("post_id", postID),
				logger.Any("panic", r),
			)
		}
	}()

	err := w.execute(ctx, postID)
	switch {
	case err == nil:
		metrics.RecordViewPersisted()
	case errors.Is(err, repository.ErrNotFound):
		metrics.RecordViewDiscarded(reasonNotFound)
		w.logger.Debug(ctx, "post not found, view discarded", logger.Int32("post_id", postID))
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordViewDiscarded(reasonBreakerOpen)
		w.logger.Warn(ctx, "circuit open, view dropped",
			logger.Int32("post_id", postID),
			logger.Error(err),
		)
	case ctx.Err() != nil:
		metrics.RecordViewDiscarded(reasonCancelled)
	default:
		metrics.RecordPersistFailure()
		metrics.RecordErrorByComponent("worker", "persist_failed")
		w.logger.Warn(ctx, "failed to apply view increment",
			logger.Int32("post_id", postID),
			logger.Error(err),
		)
	}
}

func (w *IngestionWorker) execute(ctx context.Context, postID int32) error {
	if w.breaker == nil {
		return w.increment(ctx, postID)
	}
	_, err := w.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, w.increment(ctx, postID)
	})
	return err
}

// increment is the load, increment, persist cycle for one view.
func (w *IngestionWorker) increment(ctx context.Context, postID int32) error {
	post, err := w.store.LoadPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("load post %d: %w", postID, err)
	}
	post.IncrementViewCount()
	if err := w.store.Persist(ctx, post); err != nil {
		return fmt.Errorf("persist post %d: %w", postID, err)
	}
	return nil
}

// Package service wires the view ingestion pipeline and the ranking engine
// into the dependencies required by the HTTP layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	eventqueue "github.com/okian/feedrank/internal/adapters/mq/queue"
	ingest "github.com/okian/feedrank/internal/adapters/mq/worker"
	"github.com/okian/feedrank/internal/adapters/repository"
	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/domain/scoring"
	"github.com/okian/feedrank/pkg/logger"
	"github.com/okian/feedrank/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultShutdownTimeout = 10 * time.Second
	defaultMetricsInterval = 10 * time.Second
	supervisorBackoff      = 5 * time.Second
)

// Service owns the queue, the ingestion worker and the post store.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	queue      *eventqueue.ViewQueue
	worker     *ingest.IngestionWorker
	supervisor *suture.Supervisor
	supErr     <-chan error
	cancel     context.CancelFunc

	// Configuration
	queueCapacity    int
	breakerThreshold uint32
	breakerTimeout   time.Duration
	shutdownTimeout  time.Duration
	metricsInterval  time.Duration

	// State
	instanceID uuid.UUID
	startedAt  time.Time
	started    bool
	stopped    bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the post store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithQueueCapacity sets how many view signals may wait before the oldest
// is dropped.
func WithQueueCapacity(capacity int) Option {
	return func(s *Service) {
		if capacity > 0 {
			s.queueCapacity = capacity
		}
	}
}

// WithCircuitBreaker opens the store circuit after threshold consecutive
// failures and retries the store after timeout. A zero threshold disables it.
func WithCircuitBreaker(threshold uint32, timeout time.Duration) Option {
	return func(s *Service) {
		s.breakerThreshold = threshold
		if timeout > 0 {
			s.breakerTimeout = timeout
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for the worker.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithMetricsInterval sets how often runtime and queue gauges are sampled.
func WithMetricsInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.metricsInterval = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		queueCapacity:   eventqueue.DefaultCapacity,
		breakerTimeout:  30 * time.Second,
		shutdownTimeout: defaultShutdownTimeout,
		metricsInterval: defaultMetricsInterval,
		instanceID:      uuid.New(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// InstanceID identifies this process in logs and stats.
func (s *Service) InstanceID() uuid.UUID { return s.instanceID }

// Start builds the queue and worker and runs the worker under a supervisor.
// The supervisor outlives ctx; call Stop to end it. Start after Stop returns
// ErrStopped.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("feed-service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}

	s.logger.Info(ctx, "starting feed service...", logger.String("instance_id", s.instanceID.String()))

	s.queue = eventqueue.NewViewQueue(
		eventqueue.WithCapacity(s.queueCapacity),
		eventqueue.WithLogger(s.logger.Named("view-queue")),
	)

	workerOpts := []ingest.Option{
		ingest.WithName("view-ingestion"),
		ingest.WithLogger(s.logger.Named("worker")),
	}
	if s.breakerThreshold > 0 {
		threshold := s.breakerThreshold
		workerOpts = append(workerOpts, ingest.WithCircuitBreaker(gobreaker.Settings{
			Name:    s.store.Driver() + "-store",
			Timeout: s.breakerTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= threshold
			},
		}))
	}
	s.worker = ingest.NewIngestionWorker(s.queue, s.store, workerOpts...)

	handler := &sutureslog.Handler{Logger: logger.Slog()}
	s.supervisor = suture.New("feedrank", suture.Spec{
		EventHook:      handler.MustHook(),
		FailureBackoff: supervisorBackoff,
		Timeout:        s.shutdownTimeout,
	})
	s.supervisor.Add(s.worker)
	s.supervisor.Add(&metricsSampler{
		interval: s.metricsInterval,
		queue:    s.queue,
	})

	supCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.supErr = s.supervisor.ServeBackground(supCtx)

	s.startedAt = time.Now()
	s.started = true
	s.logger.Info(ctx, "feed service started",
		logger.String("store", s.store.Driver()),
		logger.Int("queue_capacity", s.queueCapacity),
		logger.Bool("circuit_breaker", s.breakerThreshold > 0),
	)

	return nil
}

// Stop halts the worker without draining pending signals, then closes the
// queue and the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping feed service...")

	if err := s.worker.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker shutdown incomplete", logger.Error(err))
	}
	_ = s.queue.Close()

	s.cancel()
	select {
	case err := <-s.supErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn(ctx, "supervisor stopped with error", logger.Error(err))
		}
	case <-ctx.Done():
		s.logger.Warn(ctx, "supervisor shutdown timed out")
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "failed to close store", logger.Error(err))
	}

	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "feed service stopped",
		logger.Int("pending_views_abandoned", s.queue.Len()),
		logger.Uint64("views_dropped", s.queue.Dropped()),
	)
}

// RecordView submits one view of postID for asynchronous counting. It never
// waits on persistence; the only errors are a stopped service or closed queue.
func (s *Service) RecordView(ctx context.Context, postID int32) error {
	s.mu.RLock()
	q, started, stopped := s.queue, s.started, s.stopped
	s.mu.RUnlock()

	if stopped {
		return ErrStopped
	}
	if !started {
		return ErrNotStarted
	}
	if err := q.Enqueue(ctx, postID); err != nil {
		return fmt.Errorf("record view of post %d: %w", postID, err)
	}
	return nil
}

// RankRequest selects posts and the strategy to order them by.
type RankRequest struct {
	PostIDs  []int32
	Strategy scoring.Strategy
	Period   scoring.Period

	// UserTags and AuthorAffinity feed the personalized strategy.
	UserTags       []int32
	AuthorAffinity map[int32]float64

	// Now defaults to the current time.
	Now time.Time

	// Limit caps the result length when positive.
	Limit int
}

// Rank loads the requested posts and orders them. Unknown posts and drafts
// are left out.
func (s *Service) Rank(ctx context.Context, req RankRequest) ([]model.RankedResult, error) {
	s.mu.RLock()
	store, stopped := s.store, s.stopped
	s.mu.RUnlock()

	if stopped {
		return nil, ErrStopped
	}
	if store == nil {
		return nil, ErrNotStarted
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	candidates := make([]scoring.Candidate, 0, len(req.PostIDs))
	for _, id := range req.PostIDs {
		post, err := store.LoadPost(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("rank: %w", err)
		}
		c := scoring.Candidate{ItemID: int64(post.ID), Snapshot: post.Snapshot()}
		if req.Strategy == scoring.Personalized {
			a := scoring.NewAffinity(req.UserTags, post.TagIDs, req.AuthorAffinity[post.AuthorID], post.PublishedAt, now)
			c.Affinity = &a
		}
		candidates = append(candidates, c)
	}

	results, err := scoring.Rank(candidates, req.Strategy, req.Period, now)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(results) > req.Limit {
		results = results[:req.Limit]
	}

	metrics.RecordFeedRanked(req.Strategy.String(), len(results))
	return results, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":       s.started,
		"stopped":       s.stopped,
		"instanceId":    s.instanceID.String(),
		"queueCapacity": s.queueCapacity,
	}

	if s.started {
		queueLen := s.queue.Len()
		stats["uptimeSeconds"] = time.Since(s.startedAt).Seconds()
		stats["storeDriver"] = s.store.Driver()
		stats["queueLength"] = queueLen
		stats["viewsDropped"] = s.queue.Dropped()
		stats["workerState"] = s.worker.State().String()

		ctx := context.Background()
		if n, err := s.store.Count(ctx); err == nil {
			stats["totalPosts"] = n
		} else {
			s.logger.Warn(ctx, "failed to count posts", logger.Error(err))
		}

		metrics.UpdateQueueSize(queueLen, s.queueCapacity)
	}

	return stats
}

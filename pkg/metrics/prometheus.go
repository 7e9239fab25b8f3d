// Package metrics provides Prometheus metrics for the feedrank service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exposed by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Ingestion queue
	viewsEnqueued    prometheus.Counter
	viewsDropped     prometheus.Counter
	viewsRejected    prometheus.Counter
	viewsDequeued    prometheus.Counter
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	enqueueLatency   prometheus.Histogram

	// Ingestion worker
	viewsPersisted          prometheus.Counter
	viewsDiscarded          *prometheus.CounterVec
	persistFailures         prometheus.Counter
	workerProcessingLatency prometheus.Histogram
	workerState             prometheus.Gauge
	breakerState            *prometheus.GaugeVec

	// Persistence adapters
	storeLatency *prometheus.HistogramVec

	// Ranking
	feedsRanked *prometheus.CounterVec
	rankedItems prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure replaces the global manager with one built from opts on a fresh
// registry, which GetRegistry returns from then on. Call it once at startup,
// before anything records metrics.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	opts = append([]Option{WithPrometheusRegistry(registry)}, opts...)
	customRegistry = registry
	globalManager = NewManager(opts...)
}

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "feedrank",
		subsystem:        "ingest",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.viewsEnqueued = m.counter("views_enqueued_total", "Total number of view signals accepted by the queue")
	m.viewsDropped = m.counter("views_dropped_total", "Total number of queued view signals evicted by drop-oldest overflow")
	m.viewsRejected = m.counter("views_rejected_total", "Total number of view signals rejected because the queue was closed")
	m.viewsDequeued = m.counter("views_dequeued_total", "Total number of view signals handed to the worker")
	m.queueSize = m.gauge("queue_size", "Current number of buffered view signals")
	m.queueCapacity = m.gauge("queue_capacity", "Configured queue capacity (0 when unbounded)")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (size / capacity)")
	m.enqueueLatency = m.histogram("enqueue_latency_milliseconds", "Time spent inside Enqueue in milliseconds",
		[]float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5})

	m.viewsPersisted = m.counter("views_persisted_total", "Total number of view increments durably written")
	m.viewsDiscarded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "views_discarded_total",
		Help:      "Total number of view signals discarded by the worker, by reason",
	}, []string{"reason"})
	m.persistFailures = m.counter("persist_failures_total", "Total number of view signals dropped after a persistence failure")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Load-increment-persist cycle latency in milliseconds", m.histogramBuckets)
	m.workerState = m.gauge("worker_state", "Ingestion worker state (0 idle, 1 running, 2 shutting down, 3 stopped)")
	m.breakerState = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "store",
		Name:      "operation_latency_milliseconds",
		Help:      "Persistence adapter operation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"driver", "operation"})

	m.feedsRanked = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "ranking",
		Name:      "feeds_ranked_total",
		Help:      "Total number of ranked feed computations, by strategy",
	}, []string{"strategy"})
	m.rankedItems = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "ranking",
		Name:      "ranked_items",
		Help:      "Number of published items per ranked feed",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_by_component_total",
		Help:      "Total number of errors by component",
	}, []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "memory_usage_bytes",
		Help:      "Heap bytes allocated",
	})
	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "goroutine_count",
		Help:      "Number of goroutines",
	})
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "gc_pause_time_milliseconds",
		Help:      "Average GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// Queue metrics.

// RecordViewEnqueued increments the accepted view signal counter.
func RecordViewEnqueued() { globalManager.viewsEnqueued.Inc() }

// RecordViewDropped increments the drop-oldest eviction counter.
func RecordViewDropped() { globalManager.viewsDropped.Inc() }

// RecordViewRejected increments the closed-queue rejection counter.
func RecordViewRejected() { globalManager.viewsRejected.Inc() }

// RecordViewDequeued increments the dequeue counter.
func RecordViewDequeued() { globalManager.viewsDequeued.Inc() }

// RecordEnqueueLatency records time spent inside Enqueue.
func RecordEnqueueLatency(latencyMs float64) { globalManager.enqueueLatency.Observe(latencyMs) }

// UpdateQueueSize sets the current queue size and derived utilization.
// Utilization reads 0 for an unbounded queue (capacity 0).
func UpdateQueueSize(size, capacity int) {
	globalManager.queueSize.Set(float64(size))
	if capacity <= 0 {
		globalManager.queueUtilization.Set(0)
		return
	}
	globalManager.queueUtilization.Set(float64(size) / float64(capacity))
}

// UpdateQueueCapacity sets the configured queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// Worker metrics.

// RecordViewPersisted increments the persisted increment counter.
func RecordViewPersisted() { globalManager.viewsPersisted.Inc() }

// RecordViewDiscarded increments the discard counter for reason.
func RecordViewDiscarded(reason string) { globalManager.viewsDiscarded.WithLabelValues(reason).Inc() }

// RecordPersistFailure increments the persistence failure counter.
func RecordPersistFailure() { globalManager.persistFailures.Inc() }

// RecordWorkerProcessingLatency records one load-increment-persist cycle.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerState sets the numeric worker state.
func UpdateWorkerState(state int) { globalManager.workerState.Set(float64(state)) }

// UpdateBreakerState sets the numeric circuit breaker state for name.
func UpdateBreakerState(name string, state int) {
	globalManager.breakerState.WithLabelValues(name).Set(float64(state))
}

// Store metrics.

// RecordStoreLatency records a persistence adapter operation.
func RecordStoreLatency(driver, operation string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(driver, operation).Observe(latencyMs)
}

// Ranking metrics.

// RecordFeedRanked records one ranked feed of n items for strategy.
func RecordFeedRanked(strategy string, n int) {
	globalManager.feedsRanked.WithLabelValues(strategy).Inc()
	globalManager.rankedItems.Observe(float64(n))
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System metrics.

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

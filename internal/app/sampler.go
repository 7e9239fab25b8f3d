package service

import (
	"context"
	"runtime"
	"time"

	"github.com/okian/feedrank/pkg/metrics"
)

type queueGauge interface {
	Len() int
	Capacity() int
}

// metricsSampler periodically publishes runtime and queue gauges. It runs
// under the service supervisor.
type metricsSampler struct {
	interval time.Duration
	queue    queueGauge

	lastNumGC uint32
}

func (m *metricsSampler) String() string { return "metrics-sampler" }

func (m *metricsSampler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *metricsSampler) sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	metrics.UpdateSystemMemoryUsage(ms.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	// Only the pauses since the previous sample, bounded by the ring size.
	newGC := ms.NumGC - m.lastNumGC
	if newGC > uint32(len(ms.PauseNs)) {
		newGC = uint32(len(ms.PauseNs))
	}
	for i := uint32(0); i < newGC; i++ {
		idx := (ms.NumGC - 1 - i) % uint32(len(ms.PauseNs))
		metrics.RecordSystemGCPauseTime(float64(ms.PauseNs[idx]) / 1e6)
	}
	m.lastNumGC = ms.NumGC

	if m.queue != nil {
		metrics.UpdateQueueSize(m.queue.Len(), m.queue.Capacity())
	}
}

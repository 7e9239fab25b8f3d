package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/feedrank/pkg/metrics"
)

// HealthHandler reports liveness from the service stats.
type HealthHandler struct {
	statsProvider StatsProvider
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(statsProvider StatsProvider) *HealthHandler {
	return &HealthHandler{statsProvider: statsProvider}
}

// workerRunning is the worker state reported while signals are consumed.
const workerRunning = "running"

type healthResponse struct {
	Status      string `json:"status"`
	WorkerState string `json:"worker_state,omitempty"`
}

// HandleHealth handles GET /healthz requests. It answers 503 until the
// service is started and whenever the ingestion worker is not running.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}

	stats := h.statsProvider.GetStats()
	if started, _ := stats["started"].(bool); !started {
		writeError(w, http.StatusServiceUnavailable, "not_ready", ErrNotReady)
		return
	}

	state, _ := stats["workerState"].(string)
	if state != workerRunning {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", WorkerState: state})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", WorkerState: state})
}

// NewMetricsHandler serves the custom metrics registry in the Prometheus
// exposition format.
func NewMetricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}

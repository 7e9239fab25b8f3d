// Package api exposes the operational HTTP surface: health, stats and
// Prometheus metrics.
package api

import (
	"encoding/json"
	"net/http"
)

// Server wires the operational HTTP routes.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	metricsHandler http.Handler
}

// NewServer creates a new API server with all handlers.
func NewServer(statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(statsProvider),
		statsHandler:   NewStatsHandler(statsProvider),
		metricsHandler: NewMetricsHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.Handle("/metrics", s.metricsHandler)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Option customizes a Manager before its collectors are registered.
type Option func(*Manager)

// WithNamespace prefixes every collector name. Empty keeps "feedrank".
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem sets the name segment between namespace and metric name.
// Empty keeps "ingest".
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithPrometheusRegistry registers the collectors on registry instead of the
// Prometheus default registerer.
func WithPrometheusRegistry(registry prometheus.Registerer) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

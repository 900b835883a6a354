// Package metrics provides Prometheus metrics registration and exposure.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry manages Prometheus metrics registration and exposure. The
// module's own collectors register through promauto into the default
// registry (which also carries the Go and process collectors); Registry
// merges those with any explicitly registered collectors when serving
// /metrics.
type Registry struct {
	registry *prometheus.Registry
}

// NewRegistry creates a metrics registry.
func NewRegistry() *Registry {
	return &Registry{
		registry: prometheus.NewRegistry(),
	}
}

// Register registers a custom Prometheus collector.
func (r *Registry) Register(collector prometheus.Collector) error {
	return r.registry.Register(collector)
}

// MustRegister registers custom Prometheus collectors and panics on error.
// Use this for metrics that must be registered at startup.
func (r *Registry) MustRegister(collectors ...prometheus.Collector) {
	r.registry.MustRegister(collectors...)
}

// Unregister removes a collector from the registry.
// This is primarily useful for testing.
func (r *Registry) Unregister(collector prometheus.Collector) bool {
	return r.registry.Unregister(collector)
}

// Handler returns an HTTP handler that exposes metrics in Prometheus format.
// It belongs on the management server at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Gatherer returns the combined gatherer backing the handler: explicitly
// registered collectors plus everything in the default registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return prometheus.Gatherers{r.registry, prometheus.DefaultGatherer}
}

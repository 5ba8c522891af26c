// Package metrics provides Prometheus instrumentation for the server (spec
// §11 domain stack). All metrics are optional: when InitRegistry hasn't
// been called, every recorder falls back to a no-op implementation with
// zero overhead, so the server never pays a cost for metrics it isn't
// exposing.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry. Safe to call
// more than once; only the first call takes effect.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global registry, or nil if InitRegistry hasn't
// been called.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether metrics collection is active.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// Package metrics collects Prometheus counters for the routing layer.
// The collectors live on a private registry so parallel test instances
// never collide on the global default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelbridge/internal/core"
)

// Metrics holds the collectors. It implements authcache.Observer.
type Metrics struct {
	registry *prometheus.Registry

	verifyCacheHits      *prometheus.CounterVec
	verifyTransportCalls *prometheus.CounterVec
	completionsStarted   *prometheus.CounterVec
	cancellations        prometheus.Counter
}

// New creates the collectors on a fresh private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		verifyCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modelbridge_verify_cache_hits_total",
			Help: "Verifications answered from the credential/model cache.",
		}, []string{"backend"}),
		verifyTransportCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modelbridge_verify_transport_calls_total",
			Help: "Verification discovery round-trips to a backend.",
		}, []string{"backend"}),
		completionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modelbridge_completions_started_total",
			Help: "Completion requests started, by backend.",
		}, []string{"backend"}),
		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modelbridge_cancel_all_total",
			Help: "Registry-wide cancellations triggered.",
		}),
	}

	m.registry.MustRegister(
		m.verifyCacheHits,
		m.verifyTransportCalls,
		m.completionsStarted,
		m.cancellations,
	)
	return m
}

// Handler serves the metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// VerifyServedFromCache implements authcache.Observer.
func (m *Metrics) VerifyServedFromCache(kind core.BackendKind) {
	m.verifyCacheHits.WithLabelValues(string(kind)).Inc()
}

// VerifyTransportCall implements authcache.Observer.
func (m *Metrics) VerifyTransportCall(kind core.BackendKind) {
	m.verifyTransportCalls.WithLabelValues(string(kind)).Inc()
}

// CompletionStarted records one completion request.
func (m *Metrics) CompletionStarted(kind core.BackendKind) {
	m.completionsStarted.WithLabelValues(string(kind)).Inc()
}

// CancelAllTriggered records one registry-wide cancellation.
func (m *Metrics) CancelAllTriggered() {
	m.cancellations.Inc()
}

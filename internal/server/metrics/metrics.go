// Package metrics exposes Prometheus counters for stamp issuance,
// verification outcomes and key rotation. A nil *Metrics is a no-op.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	stampsIssued        prometheus.Counter
	issueRejected       *prometheus.CounterVec
	validations         *prometheus.CounterVec
	keyRotations        prometheus.Counter
	integrityAnomalies  *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stampsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stamps_issued_total",
			Help: "Stamps successfully issued.",
		}),
		issueRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stamp_issue_rejected_total",
			Help: "Issuance requests rejected by a precondition.",
		}, []string{"reason"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stamp_validations_total",
			Help: "Stamp verifications by result.",
		}, []string{"result"}),
		keyRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signing_key_rotations_total",
			Help: "Signing key rotations, including the initial key.",
		}),
		integrityAnomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stamp_integrity_anomalies_total",
			Help: "Verifications that hit storage corruption or a bug.",
		}, []string{"reason"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.stampsIssued,
		m.issueRejected,
		m.validations,
		m.keyRotations,
		m.integrityAnomalies,
		m.httpRequests,
		m.httpRequestDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) StampIssued() {
	if m == nil {
		return
	}
	m.stampsIssued.Inc()
}

func (m *Metrics) IssueRejected(reason string) {
	if m == nil {
		return
	}
	m.issueRejected.WithLabelValues(reason).Inc()
}

// Validation records one verification outcome; result is "valid", "legacy"
// or a failure reason.
func (m *Metrics) Validation(result string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(result).Inc()
}

func (m *Metrics) KeyRotated() {
	if m == nil {
		return
	}
	m.keyRotations.Inc()
}

func (m *Metrics) IntegrityAnomaly(reason string) {
	if m == nil {
		return
	}
	m.integrityAnomalies.WithLabelValues(reason).Inc()
}

// ObserveHTTP records one finished HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

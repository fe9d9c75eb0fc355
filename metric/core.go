// Package metric exposes the Prometheus metrics of the form flow service and
// the HTTP server that serves them.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "formflow"

// Metrics contains the service-level metrics recorded by the engine, the
// HTTP gateway and the storage layer.
type Metrics struct {
	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Navigation
	NavigationDecisions *prometheus.CounterVec
	ValidationFailures  *prometheus.CounterVec
	SubmissionsFinal    *prometheus.CounterVec
	PluginMisses        *prometheus.CounterVec
	Redirects           *prometheus.CounterVec

	// Storage and sessions
	StoreDuration  *prometheus.HistogramVec
	StoreErrors    *prometheus.CounterVec
	SessionsActive prometheus.Gauge
	NATSConnected  prometheus.Gauge
}

// NewMetrics creates the metric set. Nothing is registered until the set is
// handed to a MetricsRegistry.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "method", "status"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),

		NavigationDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "navigation",
				Name:      "decisions_total",
				Help:      "Next-screen decisions by flow and outcome (screen, loop, exit)",
			},
			[]string{"flow", "outcome"},
		),

		ValidationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "navigation",
				Name:      "validation_failures_total",
				Help:      "Posts rejected by field validation",
			},
			[]string{"flow", "screen"},
		),

		SubmissionsFinal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "navigation",
				Name:      "submissions_finalized_total",
				Help:      "Submissions stamped as submitted",
			},
			[]string{"flow"},
		),

		PluginMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "plugin",
				Name:      "misses_total",
				Help:      "Lookups of unregistered conditions, actions and filters",
			},
			[]string{"kind"},
		),

		Redirects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "navigation",
				Name:      "policy_redirects_total",
				Help:      "Requests redirected by a flow policy (disabled, locked, landmark, condition)",
			},
			[]string{"flow", "reason"},
		),

		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operation_duration_seconds",
				Help:      "Submission store operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		StoreErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "errors_total",
				Help:      "Submission store errors by operation and class",
			},
			[]string{"operation", "class"},
		),

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "active",
				Help:      "Number of live sessions",
			},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RequestsTotal,
		m.RequestDuration,
		m.NavigationDecisions,
		m.ValidationFailures,
		m.SubmissionsFinal,
		m.PluginMisses,
		m.Redirects,
		m.StoreDuration,
		m.StoreErrors,
		m.SessionsActive,
		m.NATSConnected,
	}
}

// The Record methods are safe to call on a nil *Metrics so that components
// built without a registry need no guards.

// RecordRequest counts one HTTP request and observes its duration
func (m *Metrics) RecordRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, method, statusLabel(status)).Inc()
	m.RequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// RecordNavigation counts a navigation decision
func (m *Metrics) RecordNavigation(flow, outcome string) {
	if m == nil {
		return
	}
	m.NavigationDecisions.WithLabelValues(flow, outcome).Inc()
}

// RecordValidationFailure counts a rejected post
func (m *Metrics) RecordValidationFailure(flow, screen string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(flow, screen).Inc()
}

// RecordSubmitted counts a finalized submission
func (m *Metrics) RecordSubmitted(flow string) {
	if m == nil {
		return
	}
	m.SubmissionsFinal.WithLabelValues(flow).Inc()
}

// RecordPluginMiss counts a lookup of an unregistered plugin
func (m *Metrics) RecordPluginMiss(kind string) {
	if m == nil {
		return
	}
	m.PluginMisses.WithLabelValues(kind).Inc()
}

// RecordRedirect counts a policy redirect
func (m *Metrics) RecordRedirect(flow, reason string) {
	if m == nil {
		return
	}
	m.Redirects.WithLabelValues(flow, reason).Inc()
}

// RecordStoreOperation observes a store call and counts its error, if any
func (m *Metrics) RecordStoreOperation(operation string, d time.Duration, errClass string) {
	if m == nil {
		return
	}
	m.StoreDuration.WithLabelValues(operation).Observe(d.Seconds())
	if errClass != "" {
		m.StoreErrors.WithLabelValues(operation, errClass).Inc()
	}
}

// RecordNATSStatus updates NATS connection status
func (m *Metrics) RecordNATSStatus(connected bool) {
	if m == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	m.NATSConnected.Set(value)
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

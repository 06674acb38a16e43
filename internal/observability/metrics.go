package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Route outcomes recorded by the model router.
const (
	OutcomeSuccess             = "success"
	OutcomeInvalidRequest      = "invalid_request"
	OutcomeUnknownRole         = "unknown_role"
	OutcomeUpstreamUnavailable = "upstream_unavailable"
	OutcomeUpstreamError       = "upstream_error"
	OutcomeFailed              = "failed"
)

// Metrics collects application metrics on a private registry so that each
// process (and each test) owns its collectors.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	routeRequestsTotal *prometheus.CounterVec
	upstreamDuration   *prometheus.HistogramVec

	queriesTotal  *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
}

// NewMetrics registers all collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		routeRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "router_requests_total",
				Help:      "Chat completion requests by role and outcome",
			},
			[]string{"role", "outcome"},
		),
		upstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "router_upstream_duration_seconds",
				Help:      "Time spent waiting on the model backend",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"role"},
		),
		queriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_queries_total",
				Help:      "Observability backend queries by backend and outcome",
			},
			[]string{"backend", "outcome"},
		),
		queryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_query_duration_seconds",
				Help:      "Observability backend query duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"backend"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordHTTPRequest records one served HTTP request. route should be the
// matched route pattern, not the raw path.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRoute records the outcome of one routed chat completion.
// upstream is zero when no backend call was made.
func (m *Metrics) RecordRoute(role, outcome string, upstream time.Duration) {
	if m == nil {
		return
	}
	m.routeRequestsTotal.WithLabelValues(role, outcome).Inc()
	if upstream > 0 {
		m.upstreamDuration.WithLabelValues(role).Observe(upstream.Seconds())
	}
}

// RecordQuery records one observability backend query.
func (m *Metrics) RecordQuery(backend, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(backend, outcome).Inc()
	m.queryDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

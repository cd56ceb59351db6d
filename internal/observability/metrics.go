// Package observability collects Prometheus metrics for the portal.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the Prometheus collectors used by the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	registryInits   *prometheus.CounterVec
	gateDecisions   *prometheus.CounterVec
	loaderMerges    prometheus.Counter
	loaderFailures  prometheus.Counter
}

// NewMetrics initializes the registry and base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	registryInits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_plugin_registry_initializations_total",
		Help: "Plugin registry initialization attempts by outcome.",
	}, []string{"outcome"})
	gateDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_entitlement_gate_decisions_total",
		Help: "Entitlement gate decisions by outcome and denial stage.",
	}, []string{"outcome", "stage"})
	loaderMerges := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_plugin_loader_merges_total",
		Help: "Completed plugin contribution merges.",
	})
	loaderFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_plugin_loader_contribution_failures_total",
		Help: "Plugin contributions excluded from a merge because they failed to resolve.",
	})
	registry.MustRegister(requests, duration, registryInits, gateDecisions, loaderMerges, loaderFailures)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		registryInits:   registryInits,
		gateDecisions:   gateDecisions,
		loaderMerges:    loaderMerges,
		loaderFailures:  loaderFailures,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// RegistryInit counts one registry initialization attempt.
func (m *Metrics) RegistryInit(outcome string) {
	if m == nil {
		return
	}
	m.registryInits.WithLabelValues(outcome).Inc()
}

// GateDecision counts one entitlement gate decision. stage names the check
// that denied, or "allowed".
func (m *Metrics) GateDecision(allowed bool, stage string) {
	if m == nil {
		return
	}
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.gateDecisions.WithLabelValues(outcome, stage).Inc()
}

// LoaderMerge counts one completed merge and the contributions it excluded.
func (m *Metrics) LoaderMerge(failed int) {
	if m == nil {
		return
	}
	m.loaderMerges.Inc()
	for i := 0; i < failed; i++ {
		m.loaderFailures.Inc()
	}
}

// Registerer exposes the registry for registering custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

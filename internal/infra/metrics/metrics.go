// Package metrics exposes Prometheus instrumentation for the HTTP surface
// and the entitlement core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	limitChecks    *prometheus.CounterVec
	usageCacheHits *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "restodesk",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests partitioned by route, method and status.",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "restodesk",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency per route.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"route", "method"},
		),
		limitChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "restodesk",
				Subsystem: "entitlements",
				Name:      "limit_checks_total",
				Help:      "Tier limit checks partitioned by resource and verdict.",
			},
			[]string{"resource", "verdict"},
		),
		usageCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "restodesk",
				Subsystem: "entitlements",
				Name:      "usage_cache_total",
				Help:      "Usage snapshot cache lookups partitioned by outcome.",
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(m.httpRequests, m.httpDuration, m.limitChecks, m.usageCacheHits)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveLimitCheck(resource string, allowed bool) {
	verdict := "denied"
	if allowed {
		verdict = "allowed"
	}
	m.limitChecks.WithLabelValues(resource, verdict).Inc()
}

func (m *Metrics) ObserveUsageCache(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.usageCacheHits.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware records request counts and latency. The route label uses the
// chi pattern, not the raw path, to keep cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

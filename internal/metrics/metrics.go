// Package metrics holds the Prometheus collectors shared by the HTTP
// layer, the market core and the background jobs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector. A zero-value *Metrics is not usable;
// call New (or NewDiscard in tests).
type Metrics struct {
	registry *prometheus.Registry

	Operations      *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	PresenceDemoted prometheus.Counter
	ReaperRuns      *prometheus.CounterVec
}

// New creates the collectors and registers them, along with the Go and
// process collectors, on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutormarket",
			Name:      "operations_total",
			Help:      "Market operations by name and outcome kind.",
		}, []string{"op", "outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutormarket",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tutormarket",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		PresenceDemoted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tutormarket",
			Name:      "presence_demoted_total",
			Help:      "Tutors moved to offline by the idle reaper.",
		}),
		ReaperRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutormarket",
			Name:      "presence_reaper_runs_total",
			Help:      "Idle reaper sweeps by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Operations,
		m.HTTPRequests,
		m.HTTPDuration,
		m.PresenceDemoted,
		m.ReaperRuns,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Operation counts one market operation. outcome is "ok" or an error kind.
func (m *Metrics) Operation(op, outcome string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, method, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, status).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(took.Seconds())
}

// Demoted records a reaper sweep that moved n tutors offline.
func (m *Metrics) Demoted(n int) {
	if m == nil {
		return
	}
	m.PresenceDemoted.Add(float64(n))
	m.ReaperRuns.WithLabelValues("ok").Inc()
}

// ReaperFailed records a failed sweep.
func (m *Metrics) ReaperFailed() {
	if m == nil {
		return
	}
	m.ReaperRuns.WithLabelValues("error").Inc()
}

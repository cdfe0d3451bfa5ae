package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records tool-call outcomes on its own registry.
type Metrics struct {
	registry *prometheus.Registry
	calls    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		// outcome is "ok" or the error code.
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hn_tools_calls_total",
			Help: "Total number of tool calls by tool and outcome",
		}, []string{"tool", "outcome"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hn_tools_call_duration_seconds",
			Help:    "Tool call latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
	}
}

func (m *Metrics) observe(tool, outcome string, start time.Time) {
	m.calls.WithLabelValues(tool, outcome).Inc()
	m.latency.WithLabelValues(tool).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

package ratelimit

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder exports admission decisions as Prometheus metrics on a
// private registry.
type PrometheusRecorder struct {
	registry  *prometheus.Registry
	decisions *prometheus.CounterVec
}

// NewPrometheusRecorder registers the limiter metrics. When store is non-nil
// its bucket count is exported as a gauge.
func NewPrometheusRecorder(namespace string, store *Store) *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Rate limit decisions by route and outcome.",
	}, []string{"method", "route", "outcome"})
	registry.MustRegister(decisions)

	if store != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "tracked_buckets",
			Help:      "Number of buckets currently held by the limiter.",
		}, func() float64 { return float64(store.Len()) }))
	}

	return &PrometheusRecorder{registry: registry, decisions: decisions}
}

// Record implements Recorder
func (p *PrometheusRecorder) Record(_ context.Context, ev Event) error {
	outcome := "denied"
	if ev.Allowed {
		outcome = "allowed"
	}
	p.decisions.WithLabelValues(ev.Method, ev.Route, outcome).Inc()
	return nil
}

// Handler serves the registry in the Prometheus text format
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Package metrics exposes prometheus collectors for the orchestrator.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the orchestrator collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	LifecycleOps  *prometheus.CounterVec
	ProbeAttempts *prometheus.CounterVec
	SweepFailures prometheus.Counter
	ReadinessWait *prometheus.HistogramVec
	ImageBuilds   *prometheus.CounterVec
	registry      *prometheus.Registry
}

// New creates and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		LifecycleOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "range_lifecycle_operations_total",
				Help: "Lifecycle operations by group, action and outcome",
			},
			[]string{"group", "action", "outcome"},
		),
		ProbeAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "range_probe_attempts_total",
				Help: "Readiness probe attempts by target and state",
			},
			[]string{"target", "state"},
		),
		SweepFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "range_sweep_failures_total",
				Help: "Containers a teardown sweep failed to stop or remove",
			},
		),
		ReadinessWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "range_readiness_wait_seconds",
				Help:    "Time spent waiting for a dependency to become ready",
				Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"dependency", "verdict"},
		),
		ImageBuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "range_image_builds_total",
				Help: "Image builds by tag and outcome",
			},
			[]string{"tag", "outcome"},
		),
		registry: registry,
	}

	registry.MustRegister(m.LifecycleOps)
	registry.MustRegister(m.ProbeAttempts)
	registry.MustRegister(m.SweepFailures)
	registry.MustRegister(m.ReadinessWait)
	registry.MustRegister(m.ImageBuilds)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveLifecycle(group, action, outcome string) {
	if m == nil {
		return
	}
	m.LifecycleOps.WithLabelValues(group, action, outcome).Inc()
}

func (m *Metrics) ObserveProbe(target, state string) {
	if m == nil {
		return
	}
	m.ProbeAttempts.WithLabelValues(target, state).Inc()
}

func (m *Metrics) ObserveSweepFailure() {
	if m == nil {
		return
	}
	m.SweepFailures.Inc()
}

func (m *Metrics) ObserveReadinessWait(dependency, verdict string, d time.Duration) {
	if m == nil {
		return
	}
	m.ReadinessWait.WithLabelValues(dependency, verdict).Observe(d.Seconds())
}

func (m *Metrics) ObserveBuild(tag, outcome string) {
	if m == nil {
		return
	}
	m.ImageBuilds.WithLabelValues(tag, outcome).Inc()
}

// Package metrics holds the Prometheus collectors for the pipeline and the
// model gateway. Each Collector owns its registry so tests can create as many
// as they like.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "althist"

// Collector holds all Prometheus metrics for the service. A nil *Collector
// is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	Cycles        *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	StepDuration  *prometheus.HistogramVec
	StepAttempts  *prometheus.CounterVec
	ModelCalls    *prometheus.CounterVec
	ModelDuration *prometheus.HistogramVec
	LastDay       prometheus.Gauge
}

// New creates a collector with a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Day-cycles by outcome and terminal step.",
		}, []string{"outcome", "step"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a full day-cycle.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of a pipeline step including retries.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"step", "outcome"}),
		StepAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_attempts_total",
			Help:      "Attempts made by pipeline steps.",
		}, []string{"step", "outcome"}),
		ModelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Model gateway calls by role, provider and outcome.",
		}, []string{"role", "provider", "outcome"}),
		ModelDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Model gateway call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"role", "provider"}),
		LastDay: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_committed_day",
			Help:      "Day index of the most recently committed timeline event.",
		}),
	}
	c.registry.MustRegister(
		c.Cycles, c.CycleDuration, c.StepDuration, c.StepAttempts,
		c.ModelCalls, c.ModelDuration, c.LastDay,
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// ObserveCycle records a finished cycle. step is the step that ended it.
func (c *Collector) ObserveCycle(ok bool, step string, dayIndex int, d time.Duration) {
	if c == nil {
		return
	}
	c.Cycles.WithLabelValues(outcome(ok), step).Inc()
	c.CycleDuration.Observe(d.Seconds())
	if ok {
		c.LastDay.Set(float64(dayIndex))
	}
}

// ObserveStep records one step including all of its attempts.
func (c *Collector) ObserveStep(step string, ok bool, d time.Duration) {
	if c == nil {
		return
	}
	c.StepDuration.WithLabelValues(step, outcome(ok)).Observe(d.Seconds())
}

// ObserveAttempt records a single attempt of a step.
func (c *Collector) ObserveAttempt(step string, ok bool) {
	if c == nil {
		return
	}
	c.StepAttempts.WithLabelValues(step, outcome(ok)).Inc()
}

// ObserveModelCall records one gateway call.
func (c *Collector) ObserveModelCall(role, provider string, ok bool, d time.Duration) {
	if c == nil {
		return
	}
	c.ModelCalls.WithLabelValues(role, provider, outcome(ok)).Inc()
	c.ModelDuration.WithLabelValues(role, provider).Observe(d.Seconds())
}

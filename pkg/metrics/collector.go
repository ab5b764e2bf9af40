// Package metrics exposes Prometheus metrics for answer generation.
//
// Metrics:
//   - <ns>_generation_attempts_total: streaming attempts by model and outcome
//   - <ns>_generation_fallbacks_total: substitutions of a failed model by another
//   - <ns>_generations_total: finished generations by outcome
//   - <ns>_generation_duration_seconds: wall time of a whole generation
//   - <ns>_model_listing_failures_total: failed model discovery calls by reason
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ekaya-inc/ekaya-answer/pkg/config"
)

// Outcome labels.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeInterrupted = "interrupted"
	OutcomeExhausted   = "retries_exhausted"
	OutcomeNoModel     = "no_model"
)

// Collector records generation metrics on a private registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	fallbacks       prometheus.Counter
	generations     *prometheus.CounterVec
	duration        prometheus.Histogram
	listingFailures *prometheus.CounterVec
}

// NewCollector creates and registers generation metrics. If registry is nil a
// new one is created. Returns nil when metrics are disabled.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if !cfg.Enabled {
		return nil
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "ekaya_answer"
	}

	c := &Collector{
		registry: registry,

		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_attempts_total",
				Help:      "Total number of streaming attempts by model and outcome",
			},
			[]string{"model", "outcome"},
		),

		fallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_fallbacks_total",
				Help:      "Total number of times a failed model was replaced by another",
			},
		),

		generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Total number of finished generations by outcome",
			},
			[]string{"outcome"},
		),

		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Generation wall time in seconds, including fallbacks",
				// LLM streaming latencies (100ms - 5m)
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),

		listingFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_listing_failures_total",
				Help:      "Total number of failed model listing calls by reason",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(
		c.attempts,
		c.fallbacks,
		c.generations,
		c.duration,
		c.listingFailures,
	)

	return c
}

// RecordAttempt counts one streaming attempt against model.
func (c *Collector) RecordAttempt(model, outcome string) {
	if c == nil {
		return
	}
	c.attempts.WithLabelValues(model, outcome).Inc()
}

// RecordFallback counts one model substitution.
func (c *Collector) RecordFallback() {
	if c == nil {
		return
	}
	c.fallbacks.Inc()
}

// RecordGeneration counts a finished generation and observes its duration.
func (c *Collector) RecordGeneration(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.generations.WithLabelValues(outcome).Inc()
	c.duration.Observe(d.Seconds())
}

// RecordListingFailure counts a failed or skipped model listing.
//
// Reasons: "http_status", "transport", "breaker_open".
func (c *Collector) RecordListingFailure(reason string) {
	if c == nil {
		return
	}
	c.listingFailures.WithLabelValues(reason).Inc()
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
// A nil collector serves 404.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(
		c.registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		},
	)
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

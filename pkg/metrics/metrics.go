// Package metrics defines the Prometheus metric collectors used by the
// classifier service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	ClassificationsTotal  *prometheus.CounterVec
	ClassificationLatency prometheus.Histogram
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter

	TrainingRunsTotal   *prometheus.CounterVec
	TrainingDuration    prometheus.Histogram
	TrainingDocuments   prometheus.Gauge
	ModelLabels         prometheus.Gauge
	ModelTrainedAt      prometheus.Gauge
	ModelEvictionsTotal prometheus.Counter

	CircuitBreakerState *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		ClassificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classifications_total",
				Help: "Classifications served, by assigned label.",
			},
			[]string{"label"},
		),
		ClassificationLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "classification_latency_seconds",
				Help:    "Time spent normalizing and scoring one request.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "classify_cache_hits_total",
				Help: "Classification results served from cache.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "classify_cache_misses_total",
				Help: "Classification cache misses.",
			},
		),
		TrainingRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "training_runs_total",
				Help: "Training runs by outcome (trained, skipped_no_data, skipped_busy, failed).",
			},
			[]string{"status"},
		),
		TrainingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "training_duration_seconds",
				Help:    "Wall time of successful training runs.",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
		),
		TrainingDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "training_documents",
				Help: "Documents used by the most recent successful training run.",
			},
		),
		ModelLabels: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "model_labels",
				Help: "Number of labels known to the published model.",
			},
		),
		ModelTrainedAt: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "model_trained_timestamp_seconds",
				Help: "Unix time the published model was trained.",
			},
		),
		ModelEvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "model_evictions_total",
				Help: "Stale model artifacts deleted to force retraining.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ClassificationsTotal,
		m.ClassificationLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.TrainingRunsTotal,
		m.TrainingDuration,
		m.TrainingDocuments,
		m.ModelLabels,
		m.ModelTrainedAt,
		m.ModelEvictionsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

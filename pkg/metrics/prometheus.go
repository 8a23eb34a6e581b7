package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	forecasts   *prometheus.CounterVec
	fitDuration *prometheus.HistogramVec
	categories  *prometheus.HistogramVec
	failed      *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New creates a recorder on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder on reg. Tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		forecasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_forecasts_total",
				Help: "Per-category forecasts by strategy and result",
			},
			[]string{"strategy", "result"},
		),
		fitDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fincast_fit_duration_seconds",
				Help:    "Wall-clock time to fit and predict one category",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"strategy"},
		),
		categories: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fincast_batch_categories",
				Help:    "Categories per batch",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 250, 500},
			},
			[]string{"strategy"},
		),
		failed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_batch_failed_categories_total",
				Help: "Categories that produced no forecast",
			},
			[]string{"strategy"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fincast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordForecast counts one category outcome ("ok" or "failed").
func (r *Recorder) RecordForecast(strategy, outcome string) {
	r.forecasts.WithLabelValues(strategy, outcome).Inc()
}

// RecordFitDuration records the time spent on one successful category.
func (r *Recorder) RecordFitDuration(strategy string, seconds float64) {
	r.fitDuration.WithLabelValues(strategy).Observe(seconds)
}

// RecordBatch records the size and failure count of a finished batch.
func (r *Recorder) RecordBatch(strategy string, categories, failed int) {
	r.categories.WithLabelValues(strategy).Observe(float64(categories))
	r.failed.WithLabelValues(strategy).Add(float64(failed))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

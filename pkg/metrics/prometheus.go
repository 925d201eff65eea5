package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions     *prometheus.CounterVec
	syncTransitions *prometheus.CounterVec
	conflicts       *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		predictions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsheet_predictions_total",
				Help: "Total number of predictions generated",
			},
			[]string{"symbol", "signal"},
		),
		syncTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsheet_sync_transitions_total",
				Help: "Total number of sync record state transitions",
			},
			[]string{"state"},
		),
		conflicts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsheet_sync_conflicts_total",
				Help: "Total number of detected sync conflicts",
			},
			[]string{"symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsheet_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finsheet_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordPrediction records one generated prediction.
func (r *Recorder) RecordPrediction(symbol, signal string) {
	r.predictions.WithLabelValues(symbol, signal).Inc()
}

// RecordSyncTransition records one sync record state transition.
func (r *Recorder) RecordSyncTransition(state string) {
	r.syncTransitions.WithLabelValues(state).Inc()
}

// RecordConflict records one detected conflict.
func (r *Recorder) RecordConflict(symbol string) {
	r.conflicts.WithLabelValues(symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

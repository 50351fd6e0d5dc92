// Package metrics provides Prometheus metrics collection for the risk
// scoring service. It defines the scoring, decisioning and artifact
// lifecycle metrics exposed on the metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the scoring service.
type Metrics struct {
	// Scoring metrics
	Predictions      prometheus.Counter   // Total number of scoring requests served
	PredictionErrors prometheus.Counter   // Total number of failed scoring requests
	PredictionScores prometheus.Histogram // Distribution of calibrated probabilities
	ScoringLatency   prometheus.Histogram // End-to-end scoring latency in seconds

	// Decision metrics
	DecisionsAccept  prometheus.Counter   // Total ACCEPT decisions
	DecisionsReject  prometheus.Counter   // Total REJECT decisions
	DecisionsAbstain prometheus.Counter   // Total ABSTAIN decisions
	Uncertainty      prometheus.Histogram // Distribution of decision uncertainty scores

	// Artifact lifecycle metrics
	ModelAge     prometheus.Gauge   // Age of the loaded artifact in seconds
	EngineReady  prometheus.Gauge   // 1 when an engine is loaded and serving
	Reloads      prometheus.Counter // Total successful engine reloads
	ReloadErrors prometheus.Counter // Total failed engine reloads

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for
// tests, which need isolated metric collection).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of scoring requests served",
		}),
		PredictionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_errors_total",
			Help: "Total number of failed scoring requests",
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_scores",
			Help:    "Distribution of calibrated probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ScoringLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scoring_latency_seconds",
			Help:    "End-to-end scoring latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		DecisionsAccept: factory.NewCounter(prometheus.CounterOpts{
			Name: "decisions_accept_total",
			Help: "Total ACCEPT decisions",
		}),
		DecisionsReject: factory.NewCounter(prometheus.CounterOpts{
			Name: "decisions_reject_total",
			Help: "Total REJECT decisions",
		}),
		DecisionsAbstain: factory.NewCounter(prometheus.CounterOpts{
			Name: "decisions_abstain_total",
			Help: "Total ABSTAIN decisions",
		}),
		Uncertainty: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "decision_uncertainty",
			Help:    "Distribution of decision uncertainty scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Age of the loaded artifact in seconds",
		}),
		EngineReady: factory.NewGauge(prometheus.GaugeOpts{
			Name: "engine_ready",
			Help: "1 when an engine is loaded and serving",
		}),
		Reloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_reloads_total",
			Help: "Total successful engine reloads",
		}),
		ReloadErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_reload_errors_total",
			Help: "Total failed engine reloads",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

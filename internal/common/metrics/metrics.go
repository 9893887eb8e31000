// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ApplicationsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_applications_submitted_total",
			Help: "Submission attempts by result",
		},
		[]string{"result"},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_status_transitions_total",
			Help: "Review status changes by target status and actor",
		},
		[]string{"status", "actor"},
	)

	Evaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_evaluations_total",
			Help: "Evaluation attempts by outcome",
		},
		[]string{"outcome"},
	)

	ScoringModelDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_scoring_model_duration_seconds",
			Help:    "Latency of scoring model calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"provider", "result"},
	)

	BatchRunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_batch_runs_active",
			Help: "Batch evaluation runs currently executing in this process",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "portal_http_request_duration_seconds",
			Help: "HTTP request latency by route",
		},
		[]string{"method", "route", "status"},
	)
)

// Evaluation outcomes.
const (
	OutcomeEvaluated = "evaluated"
	OutcomeRejected  = "auto_rejected"
	OutcomeSkipped   = "already_evaluated"
	OutcomeFailed    = "failed"
)

package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EvaluationsTotal counts gate evaluations.
	// Labels: phase, result (passed, failed)
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quorum",
			Subsystem: "gate",
			Name:      "evaluations_total",
			Help:      "Total number of gate evaluations by phase and result",
		},
		[]string{"phase", "result"},
	)

	// FailuresTotal counts failed evaluations by the stage that stopped them.
	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quorum",
			Subsystem: "gate",
			Name:      "failures_total",
			Help:      "Failed gate evaluations by phase and stage",
		},
		[]string{"phase", "stage"},
	)

	// EvaluationDuration tracks gate wall time.
	EvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quorum",
			Subsystem: "gate",
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of gate evaluations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"phase"},
	)
)

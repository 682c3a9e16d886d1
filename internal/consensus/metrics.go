package consensus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoundsTotal counts consensus rounds.
	// Labels: mode (independent, iterative), result (approved, rejected)
	RoundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quorum",
			Subsystem: "consensus",
			Name:      "rounds_total",
			Help:      "Total number of consensus rounds by mode and result",
		},
		[]string{"mode", "result"},
	)

	// ReviewerCalls counts reviewer calls.
	// Labels: provider, outcome (ok, error)
	ReviewerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quorum",
			Subsystem: "consensus",
			Name:      "reviewer_calls_total",
			Help:      "Reviewer calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// ReviewerLatency tracks reviewer call duration.
	ReviewerLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quorum",
			Subsystem: "consensus",
			Name:      "reviewer_duration_seconds",
			Help:      "Reviewer call duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"provider"},
	)

	// ScoreHistogram records computed consensus scores.
	ScoreHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "quorum",
			Subsystem: "consensus",
			Name:      "score",
			Help:      "Distribution of consensus scores",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)
)

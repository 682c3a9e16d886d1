package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal counts phase transitions.
	// Labels: from, to
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quorum",
			Subsystem: "pipeline",
			Name:      "transitions_total",
			Help:      "Phase transitions by source and target phase",
		},
		[]string{"from", "to"},
	)

	// RetriesTotal counts phase retries and loop-backs.
	// Labels: phase, kind (retry, loopback, change_request)
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quorum",
			Subsystem: "pipeline",
			Name:      "retries_total",
			Help:      "Phase retries by phase and kind",
		},
		[]string{"phase", "kind"},
	)

	// StuckTotal counts pipelines that exhausted a budget.
	StuckTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quorum",
			Subsystem: "pipeline",
			Name:      "stuck_total",
			Help:      "Pipelines that became stuck, by phase",
		},
		[]string{"phase"},
	)

	// PhaseDuration tracks the wall time of one phase attempt.
	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quorum",
			Subsystem: "pipeline",
			Name:      "phase_duration_seconds",
			Help:      "Duration of a phase attempt in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		},
		[]string{"phase"},
	)
)

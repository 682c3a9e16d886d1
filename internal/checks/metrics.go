package checks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChecksTotal counts completed checks.
	// Labels: type, status (pass, fail, skip)
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quorum",
			Subsystem: "checks",
			Name:      "runs_total",
			Help:      "Total number of gate checks by type and status",
		},
		[]string{"type", "status"},
	)

	// CheckDuration tracks wall time per check type.
	CheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quorum",
			Subsystem: "checks",
			Name:      "duration_seconds",
			Help:      "Duration of gate checks in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		},
		[]string{"type"},
	)

	// RejectedTotal counts commands refused by the denylist.
	// Labels: rule
	RejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quorum",
			Subsystem: "checks",
			Name:      "rejected_total",
			Help:      "Commands refused by the sandbox denylist",
		},
		[]string{"rule"},
	)

	// TimeoutsTotal counts checks killed for exceeding their budget.
	TimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quorum",
			Subsystem: "checks",
			Name:      "timeouts_total",
			Help:      "Checks killed after exceeding their timeout",
		},
		[]string{"type"},
	)
)

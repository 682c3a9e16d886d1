package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Published counts delivered events by type.
	Published = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quorum",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Pipeline events published to NATS",
		},
		[]string{"type"},
	)

	// PublishErrors counts events NATS refused.
	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quorum",
			Subsystem: "events",
			Name:      "publish_errors_total",
			Help:      "Pipeline events that failed to publish",
		},
		[]string{"type"},
	)
)

package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "giving",
			Name:      "status_transitions_total",
			Help:      "Total number of contribution status transitions applied.",
		},
		[]string{"from", "to", "changed"}, // changed: "true" / "false" (idempotent repeat)
	)

	webhookEventsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "giving",
			Name:      "webhook_events_total",
			Help:      "Total number of provider webhook events processed.",
		},
		[]string{"result"}, // "applied", "duplicate", "not_found", "invalid"
	)

	retryAttemptsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "giving",
			Name:      "retry_attempts_total",
			Help:      "Total number of payment resubmission attempts.",
		},
		[]string{"outcome"}, // "accepted", "failed", "exhausted"
	)

	sweepDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "giving",
			Name:      "retry_sweep_duration_seconds",
			Help:      "Duration of one retry sweep.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	exhaustedEntriesGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "giving",
			Name:      "retry_entries_exhausted",
			Help:      "Retry entries that have used up their retry budget.",
		},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Broadcast metrics
var (
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Total number of dispatched broadcast batches",
		},
		[]string{"result"}, // completed, incomplete, rejected
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveries_total",
			Help: "Total number of per-recipient outcomes",
		},
		[]string{"outcome"}, // sent, failed, skipped
	)

	DeliveryAttemptDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "delivery_attempt_duration_seconds",
			Help:    "Duration of individual gateway send attempts",
			Buckets: prometheus.DefBuckets,
		},
	)

	GatewayRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_retries_total",
			Help: "Total number of retried gateway send attempts",
		},
	)

	RosterSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roster_size",
			Help: "Number of recipients in the current roster",
		},
	)
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIAuthFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_auth_failures_total",
			Help: "Total number of API authentication failures",
		},
	)
)

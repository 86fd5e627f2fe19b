package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aquacare_relay_active_sessions",
			Help: "Number of open sensor websocket sessions",
		},
	)

	SessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aquacare_relay_sessions_total",
			Help: "Total number of sensor sessions opened",
		},
	)

	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquacare_relay_messages_total",
			Help: "Total number of inbound frames by outcome",
		},
		[]string{"outcome"}, // outcome: accepted, rejected
	)

	ValidationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquacare_relay_validation_errors_total",
			Help: "Total number of rejected payloads by error type",
		},
		[]string{"error_type"},
	)

	// Evaluation metrics
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquacare_relay_alerts_total",
			Help: "Total number of out-of-range alerts by metric",
		},
		[]string{"metric"},
	)

	BoundsFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquacare_relay_bounds_fetch_failures_total",
			Help: "Total number of threshold lookups that failed",
		},
		[]string{"metric"},
	)

	// Collaborator metrics
	StoreWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aquacare_relay_store_write_failures_total",
			Help: "Total number of failed sensor store updates",
		},
	)

	StoreWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aquacare_relay_store_write_duration_seconds",
			Help:    "Time taken to write the latest reading",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquacare_relay_dispatch_total",
			Help: "Total number of alert notifications by backend and status",
		},
		[]string{"backend", "status"}, // status: success, failed
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquacare_relay_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks live websocket connections by role (visitor|staff).
	ActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reception_active_connections",
			Help: "Number of registered realtime connections",
		},
		[]string{"role"},
	)

	// CallTransitions counts committed call state transitions by destination status.
	CallTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reception_call_transitions_total",
			Help: "Total number of call state transitions",
		},
		[]string{"status"},
	)

	// AcceptConflicts counts accept-call attempts that lost the claim race.
	AcceptConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reception_accept_conflicts_total",
			Help: "Total number of accept-call attempts rejected because the call was already claimed",
		},
	)

	// WaitingCalls reports the current queue depth.
	WaitingCalls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reception_waiting_calls",
			Help: "Number of calls waiting for a staff member",
		},
	)

	// RelayedMessages counts signaling messages by kind and result (delivered|unreachable|rejected).
	RelayedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reception_signaling_messages_total",
			Help: "Total number of relayed signaling messages",
		},
		[]string{"kind", "result"},
	)

	// CallDuration observes talk time of completed calls.
	CallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reception_call_duration_seconds",
			Help:    "Duration of completed calls",
			Buckets: []float64{15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reception_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

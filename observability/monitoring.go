// Package observability exposes the relay's Prometheus collectors.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections counts handles currently attached to the router.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Number of live relay connections",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_users_online",
			Help: "Number of users with at least one live connection",
		},
	)

	// InboundEvents counts handled client events by name and result (ok or an error code).
	InboundEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_inbound_events_total",
			Help: "Inbound relay events by event name and result",
		},
		[]string{"event", "result"},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Outbound events handed to connection sinks",
		},
		[]string{"event"},
	)

	DroppedDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_dropped_total",
			Help: "Outbound events dropped because a connection buffer was full",
		},
		[]string{"event"},
	)

	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_store_duration_seconds",
			Help:    "Store adapter call duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Messages counts relayed messages by detected language.
	Messages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Persisted and relayed messages by detected language",
		},
		[]string{"lang"},
	)

	ProcessCPU = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_process_cpu_percent",
			Help: "CPU usage of the relay process",
		},
	)

	ProcessMemory = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_process_memory_percent",
			Help: "Share of system memory used by the relay process",
		},
	)

	SearchIndexErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_search_index_errors_total",
			Help: "Messages persisted but missing from the search index",
		},
	)

	BackplaneEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_backplane_events_total",
			Help: "Backplane envelopes by direction (published, received, skipped)",
		},
		[]string{"direction"},
	)
)

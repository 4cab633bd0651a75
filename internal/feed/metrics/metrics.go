package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchesTotal tracks resilient fetches per resource, serving backend and result
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedsync_fetches_total",
			Help: "Total number of resilient fetches",
		},
		[]string{"resource", "backend", "result"},
	)

	// FetchLatency tracks fetch latency per resource and serving backend
	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedsync_fetch_latency_seconds",
			Help:    "Resilient fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource", "backend"},
	)

	// FailoversTotal tracks circuit flips per resource group
	FailoversTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedsync_failovers_total",
			Help: "Total number of active-backend flips",
		},
		[]string{"group", "to"},
	)

	// CoalescedRefreshes tracks refresh triggers dropped by the in-flight guard
	CoalescedRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedsync_coalesced_refreshes_total",
			Help: "Refresh triggers collapsed into an already running fetch",
		},
		[]string{"resource"},
	)

	// ChannelEventsTotal tracks change-channel events delivered per resource
	ChannelEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedsync_channel_events_total",
			Help: "Total number of change-channel events delivered",
		},
		[]string{"resource"},
	)

	// ChannelReconnects tracks reconnect attempts per resource
	ChannelReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedsync_channel_reconnects_total",
			Help: "Total number of change-channel reconnect attempts",
		},
		[]string{"resource"},
	)

	// ActiveBackend exposes the serving backend per group (0 primary, 1 secondary)
	ActiveBackend = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feedsync_active_backend",
			Help: "Currently active backend per resource group (0=primary, 1=secondary)",
		},
		[]string{"group"},
	)
)

// Package metrics defines the Prometheus metrics exported by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skillswap_live_connections",
			Help: "Number of live connections held by this instance",
		},
	)

	LiveConnectionsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillswap_live_connections_dropped_total",
			Help: "Total number of live connections dropped because they could not keep up or a write failed",
		},
		[]string{"reason"},
	)

	LiveEventsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillswap_live_events_relayed_total",
			Help: "Total number of live events received from other instances",
		},
		[]string{"relay"},
	)

	NotificationsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillswap_notifications_emitted_total",
			Help: "Total number of notifications recorded",
		},
		[]string{"type"},
	)

	SwapTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillswap_swap_transitions_total",
			Help: "Total number of swap requests that entered each status",
		},
		[]string{"status"},
	)
)

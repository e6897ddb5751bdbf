package chainws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks whether the subscription socket is up.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mevflow_chainws_active_connections",
		Help: "Number of active chain WebSocket connections",
	})

	// MessagesReceivedTotal counts subscription notifications by feed.
	MessagesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mevflow_chainws_messages_received_total",
		Help: "Subscription notifications received by feed",
	}, []string{"feed"})

	// MessagesDroppedTotal counts notifications dropped on full buffers.
	MessagesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mevflow_chainws_messages_dropped_total",
		Help: "Subscription notifications dropped due to full buffers",
	}, []string{"feed"})

	// ReconnectAttemptsTotal counts reconnection attempts.
	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mevflow_chainws_reconnect_attempts_total",
		Help: "Total WebSocket reconnection attempts",
	})

	// ReconnectFailuresTotal counts failed reconnection attempts.
	ReconnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mevflow_chainws_reconnect_failures_total",
		Help: "Total failed WebSocket reconnection attempts",
	})
)

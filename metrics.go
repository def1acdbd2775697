package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_open_connections",
		Help: "Live websocket connections on this node.",
	})
	metricOnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_online_users",
		Help: "Users with at least one live connection on this node.",
	})
	metricMessagesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_relayed_total",
		Help: "Chat messages persisted and relayed.",
	})
	metricNotificationsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_notifications_dispatched_total",
		Help: "Notifications persisted and dispatched.",
	})
	metricTypingSignals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_typing_signals_total",
		Help: "Typing signals forwarded.",
	})
	metricDroppedPushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_dropped_pushes_total",
		Help: "Per-connection pushes dropped on full or closed buffers.",
	})
)

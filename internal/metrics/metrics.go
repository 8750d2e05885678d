// Package metrics declares the Prometheus collectors shared by the client
// core and the dev relay. Everything is registered on the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ConnectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "campus_ws_connection_state",
		Help: "Connection manager state: 0 disconnected, 1 connecting, 2 connected, 3 reconnecting.",
	})
	Reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campus_ws_reconnects_total",
		Help: "Reconnect timers that fired and started a new dial.",
	})
	DroppedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campus_ws_dropped_frames_total",
		Help: "Inbound frames dropped because they could not be decoded.",
	})
	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_messages_sent_total",
		Help: "Envelopes written to the socket, by kind.",
	}, []string{"kind"})
	Feedback = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_feedback_total",
		Help: "Delivery feedback applied to sent messages, by status.",
	}, []string{"status"})

	RelayOnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "campus_relay_online_users",
		Help: "Users with at least one open relay connection.",
	})
	RelayForwarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_relay_forwarded_total",
		Help: "Envelopes forwarded or queued by the relay, by kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		ConnectionState,
		Reconnects,
		DroppedFrames,
		MessagesSent,
		Feedback,
		RelayOnlineUsers,
		RelayForwarded,
	)
}

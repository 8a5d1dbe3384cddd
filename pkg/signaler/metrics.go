package signaler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frog_connections",
		Help: "Open websocket connections.",
	})
	sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frog_sessions",
		Help: "Joined participant sessions.",
	})
	rooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frog_rooms",
		Help: "Live rooms.",
	})
	messages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frog_messages_total",
		Help: "Inbound signaling messages by kind.",
	}, []string{"kind"})
)

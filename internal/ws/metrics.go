package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskgrid_realtime_clients",
		Help: "Connected realtime clients",
	})

	broadcastMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskgrid_realtime_messages_broadcast_total",
		Help: "Messages queued to room members",
	})
)

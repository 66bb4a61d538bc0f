package httpserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StreamClients tracks connected websocket clients.
	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "perpsim_stream_clients",
		Help: "Number of connected websocket event-stream clients",
	})

	// StreamDroppedTotal counts events dropped on full client queues.
	StreamDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perpsim_stream_dropped_events_total",
		Help: "Total number of events dropped due to slow websocket clients",
	})
)

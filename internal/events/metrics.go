package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EmittedTotal tracks events emitted by kind.
	EmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpsim_events_emitted_total",
			Help: "Total number of events emitted on the bus",
		},
		[]string{"kind"},
	)

	// ListenerPanicsTotal tracks recovered listener panics.
	ListenerPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perpsim_events_listener_panics_total",
		Help: "Total number of listener panics recovered during emission",
	})
)

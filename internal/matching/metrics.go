package matching

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FillsTotal tracks individual fills produced by the matcher.
	FillsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perpsim_matcher_fills_total",
		Help: "Total number of fills produced by the matcher",
	})

	// PartialsTotal tracks partially filled orders.
	PartialsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perpsim_matcher_partials_total",
		Help: "Total number of orders that exhausted book depth",
	})

	// RejectionsTotal tracks matcher rejections by reason.
	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpsim_matcher_rejections_total",
			Help: "Total number of orders rejected by the matcher",
		},
		[]string{"reason"},
	)
)

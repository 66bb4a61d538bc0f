package book

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RefreshDurationSeconds tracks book refresh latency.
	RefreshDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "perpsim_book_refresh_duration_seconds",
		Help:    "Duration of order-book refresh calls",
		Buckets: prometheus.DefBuckets,
	})

	// RefreshErrorsTotal tracks failed book refreshes.
	RefreshErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perpsim_book_refresh_errors_total",
		Help: "Total number of failed order-book refreshes",
	})

	// BookDepthLevels tracks the level count of the latest snapshot per side.
	BookDepthLevels = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "perpsim_book_depth_levels",
		Help: "Number of price levels in the latest book snapshot",
	}, []string{"symbol", "side"})
)

package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDurationSeconds tracks feed request latency.
	RequestDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "perpsim_feed_request_duration_seconds",
		Help:    "Duration of market data feed requests",
		Buckets: prometheus.DefBuckets,
	})

	// RequestErrorsTotal tracks failed feed requests.
	RequestErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perpsim_feed_request_errors_total",
		Help: "Total number of failed market data feed requests",
	})

	// FundingCacheHitsTotal tracks funding-rate cache hits.
	FundingCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perpsim_feed_funding_cache_hits_total",
		Help: "Total number of funding-rate lookups served from cache",
	})
)

package exchange

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersTotal counts placed orders by terminal status.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perpsim_exchange_orders_total",
		Help: "Total number of orders by terminal status",
	}, []string{"status"})

	// ClosesTotal counts settled position closes by origin.
	ClosesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perpsim_exchange_closes_total",
		Help: "Total number of settled position closes",
	}, []string{"origin"})

	// ExitTriggersTotal counts exit-plan triggers by boundary.
	ExitTriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perpsim_exchange_exit_triggers_total",
		Help: "Total number of exit-plan triggers",
	}, []string{"trigger"})

	// FundingPnlTotal accumulates funding transfers across all accounts.
	// A gauge because transfers go both ways.
	FundingPnlTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "perpsim_exchange_funding_pnl_total",
		Help: "Cumulative funding PnL booked across accounts",
	})

	// TickDurationSeconds tracks refresh-cycle latency.
	TickDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "perpsim_exchange_tick_duration_seconds",
		Help:    "Duration of one refresh cycle",
		Buckets: prometheus.DefBuckets,
	})

	// ActiveAccounts tracks the number of materialized accounts.
	ActiveAccounts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "perpsim_exchange_active_accounts",
		Help: "Number of accounts with a materialized ledger",
	})
)

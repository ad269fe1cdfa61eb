package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Keeper cycle metrics. Labels stay low-cardinality: strategy names come from
// configuration only.

var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keeper",
		Subsystem: "scheduler",
		Name:      "cycles_total",
		Help:      "Rebalance cycles by outcome",
	}, []string{"outcome"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "keeper",
		Subsystem: "scheduler",
		Name:      "cycle_duration_seconds",
		Help:      "Rebalance cycle duration including confirmation wait",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	LastCycleTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "keeper",
		Subsystem: "scheduler",
		Name:      "last_cycle_timestamp_seconds",
		Help:      "Unix time the last cycle finished",
	})

	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keeper",
		Subsystem: "validator",
		Name:      "decisions_total",
		Help:      "Strategy decisions by source",
	}, []string{"source"})

	AdvisoryErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keeper",
		Subsystem: "advisory",
		Name:      "errors_total",
		Help:      "Advisory failures by kind (timeout, unavailable, unknown_strategy)",
	}, []string{"kind"})

	ChainReadErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keeper",
		Subsystem: "chain",
		Name:      "read_errors_total",
		Help:      "Failed strategy APY reads",
	}, []string{"strategy"})

	StrategyAPY = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "keeper",
		Subsystem: "chain",
		Name:      "strategy_apy_percent",
		Help:      "Last observed strategy APY in percent",
	}, []string{"strategy"})

	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keeper",
		Subsystem: "executor",
		Name:      "transactions_total",
		Help:      "Harvest transactions by status (confirmed, reverted, failed)",
	}, []string{"status"})
)

// Package telemetry defines the prometheus metrics emitted by the
// detection, execution and risk components. Naming and the
// paper/live + status-by-outcome label convention follow the
// retrieved mselser95-polymarket-arb execution metrics.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	OpportunitiesDetected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbcore_opportunities_detected_total",
		Help: "Opportunities emitted by the violation detector, by relationship kind.",
	}, []string{"kind"})

	OpportunitiesAdmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbcore_opportunities_admitted_total",
		Help: "Opportunities that passed risk admission, by relationship kind.",
	}, []string{"kind"})

	OpportunitiesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbcore_opportunities_rejected_total",
		Help: "Opportunities rejected by the risk governor, by reason.",
	}, []string{"reason"})

	ExecutionDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arbcore_execution_duration_seconds",
		Help:    "Wall time from execute() call to terminal opportunity state.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	TradesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbcore_trades_total",
		Help: "Completed trade attempts, by mode and terminal outcome.",
	}, []string{"mode", "outcome"})

	ProfitRealizedCents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbcore_profit_realized_cents_total",
		Help: "Realized profit in cents, by mode.",
	}, []string{"mode"})

	ExecutionErrorsByType = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbcore_execution_errors_total",
		Help: "Execution errors by classified type.",
	}, []string{"error_type"})

	OrphanOrders = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbcore_orphan_orders_total",
		Help: "Orders that could not be confirmed cancelled within the retry window.",
	}, []string{"ticker"})

	KillSwitchEngaged = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arbcore_kill_switch_engaged",
		Help: "1 if the kill switch is currently engaged.",
	})

	OpenPositions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arbcore_open_positions",
		Help: "Current count of non-flat tracked positions.",
	})

	DailyPnLCents = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arbcore_daily_pnl_cents",
		Help: "Realized P&L net of fees for the current trading day, in cents; open positions are not marked to market.",
	})
)

// Register adds every metric above to reg. Call once at startup.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		OpportunitiesDetected,
		OpportunitiesAdmitted,
		OpportunitiesRejected,
		ExecutionDurationSeconds,
		TradesTotal,
		ProfitRealizedCents,
		ExecutionErrorsByType,
		OrphanOrders,
		KillSwitchEngaged,
		OpenPositions,
		DailyPnLCents,
	)
}

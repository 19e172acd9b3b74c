// Package metrics exposes the process's Prometheus surface, grounded on the teacher's
// metrics/metrics.go promauto GaugeVec/CounterVec/HistogramVec layout — same namespace/subsystem
// convention, renamed synapsestrike -> perpilot and trader_id -> model_id to match this domain's
// entities (spec §3's Model, not the teacher's single-account Trader).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for this process's metrics.
var Registry = prometheus.NewRegistry()

var (
	ModelEquityTotal = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "perpilot", Subsystem: "model", Name: "equity_total", Help: "Current total equity in USDT"},
		[]string{"model_id"},
	)
	ModelAvailableBalance = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "perpilot", Subsystem: "model", Name: "available_balance", Help: "Available balance in USDT"},
		[]string{"model_id"},
	)
	ModelPositionsCount = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "perpilot", Subsystem: "model", Name: "positions_count", Help: "Number of open positions"},
		[]string{"model_id"},
	)
	ModelRunning = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "perpilot", Subsystem: "model", Name: "worker_running", Help: "Whether a (model,side) worker is running (1) or stopped (0)"},
		[]string{"model_id", "side"},
	)
	ModelCycleDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "perpilot", Subsystem: "model", Name: "cycle_duration_seconds",
			Help:    "Orchestrator cycle duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model_id", "side"},
	)
	DecisionsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{Namespace: "perpilot", Subsystem: "decision", Name: "total", Help: "Total StrategyDecisions recorded, by terminal status"},
		[]string{"model_id", "status"},
	)

	PositionUnrealizedPnL = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "perpilot", Subsystem: "position", Name: "unrealized_pnl", Help: "Unrealized P&L per position in USDT"},
		[]string{"model_id", "symbol", "side"},
	)

	TradesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{Namespace: "perpilot", Subsystem: "trade", Name: "total", Help: "Total trades recorded, by result"},
		[]string{"model_id", "result"}, // result: "win", "loss", "flat"
	)
	TradeRealizedPnL = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "perpilot", Subsystem: "trade", Name: "realized_pnl_total", Help: "Cumulative realized P&L in USDT"},
		[]string{"model_id"},
	)

	AlgoOrdersOpenCount = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "perpilot", Subsystem: "algo_order", Name: "open_count", Help: "Number of resting NEW algo orders"},
		[]string{"model_id"},
	)

	LiquidationsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{Namespace: "perpilot", Subsystem: "liquidation", Name: "forced_closes_total", Help: "Total forced closes by the auto-liquidation loop"},
		[]string{"model_id", "symbol"},
	)

	AIRequestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "perpilot", Subsystem: "ai", Name: "request_duration_seconds",
			Help:    "LLM dispatch duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60, 90},
		},
		[]string{"model_id", "provider"},
	)
	AICallsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{Namespace: "perpilot", Subsystem: "ai", Name: "calls_total", Help: "Total LLM dispatch calls"},
		[]string{"model_id", "provider"},
	)
	AIErrorsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{Namespace: "perpilot", Subsystem: "ai", Name: "errors_total", Help: "Total LLM dispatch errors"},
		[]string{"model_id", "provider"},
	)
)

// RecordTrade records a closing trade's win/loss outcome and its realized P&L.
func RecordTrade(modelID string, pnl float64) {
	result := "flat"
	switch {
	case pnl > 0:
		result = "win"
	case pnl < 0:
		result = "loss"
	}
	TradesTotal.WithLabelValues(modelID, result).Inc()
	TradeRealizedPnL.WithLabelValues(modelID).Add(pnl)
}

// RecordDecisionOutcome increments the terminal-status counter for a StrategyDecision.
func RecordDecisionOutcome(modelID, status string) {
	DecisionsTotal.WithLabelValues(modelID, status).Inc()
}

// SetWorkerRunning reflects an orchestrator worker's lifecycle state.
func SetWorkerRunning(modelID, side string, running bool) {
	val := 0.0
	if running {
		val = 1.0
	}
	ModelRunning.WithLabelValues(modelID, side).Set(val)
}

// RecordCycleDuration records one orchestrator worker cycle's wall time.
func RecordCycleDuration(modelID, side string, seconds float64) {
	ModelCycleDuration.WithLabelValues(modelID, side).Observe(seconds)
}

// RecordLiquidation records a forced close by the auto-liquidation loop.
func RecordLiquidation(modelID, symbol string) {
	LiquidationsTotal.WithLabelValues(modelID, symbol).Inc()
}

// RecordAICall records an LLM dispatch call's duration and outcome.
func RecordAICall(modelID, provider string, seconds float64, hasError bool) {
	AIRequestDuration.WithLabelValues(modelID, provider).Observe(seconds)
	AICallsTotal.WithLabelValues(modelID, provider).Inc()
	if hasError {
		AIErrorsTotal.WithLabelValues(modelID, provider).Inc()
	}
}

// Init registers the standard process/go collectors alongside the domain metrics above.
func Init() {
	Registry.MustRegister(prometheus.NewGoCollector())
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}

// Package strategy is the Strategy Executor (spec §4.6): it builds the candidate or position
// set for a model/side, resolves the model's ordered strategies, compiles and invokes each
// strategy's decision program against the restricted DSL (internal/strategy/dsl), and returns a
// validated, normalized decision set for the Model Orchestrator to persist and act on.
package strategy

// AccountInfo is the account snapshot passed into strategy evaluation (grounded on the
// teacher's decision/engine.go AccountInfo).
type AccountInfo struct {
	TotalEquity      float64
	AvailableBalance float64
	PositionCount    int
}

// CandidateRecord is one buy-side candidate symbol with its latest ticker snapshot (grounded on
// decision/engine.go's CandidateStock, merged with market_tickers fields).
type CandidateRecord struct {
	Symbol             string
	LastPrice          float64
	OpenPrice          float64
	PriceChangePercent float64
	BaseVolume         float64
	QuoteVolume        float64
}

// PositionRecord is one open position passed into sell-side evaluation (grounded on
// decision/engine.go's PositionInfo).
type PositionRecord struct {
	Symbol           string
	Side             string
	EntryPrice       float64
	MarkPrice        float64
	Quantity         float64
	Leverage         int
	UnrealizedPnL    float64
	UnrealizedPnLPct float64
}

// Decision is one normalized trading decision emitted by a strategy, after DSL evaluation and
// validation (spec §4.6/§4.7).
type Decision struct {
	StrategyName string
	StrategyType string
	Symbol       string
	Signal       string
	Quantity     float64
	Leverage     int
	Price        float64
	StopPrice    *float64
	Justification string
}

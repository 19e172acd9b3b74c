// Package algoengine is the Algo-Order Engine (spec §4.7): it turns TRIGGERED StrategyDecisions
// into exchange orders, writes the resulting Trades and Portfolio mutations, and runs a
// supervisor loop that watches resting conditional (stop-loss/take-profit) orders against the
// live price fabric. Grounded on the teacher's trader/auto_trader.go executeDecisionWithRecord /
// executeOpenLongWithRecord / executeOpenShortWithRecord flow, generalized from a single-account
// Alpaca/Binance trader to per-(model,symbol) dispatch over the shared exchange.Client.
package algoengine

import (
	"context"
	"encoding/json"

	"perpilot/internal/apperr"
	"perpilot/internal/concurrency"
	"perpilot/internal/exchange"
	"perpilot/internal/logger"
	"perpilot/internal/metrics"
	"perpilot/internal/store"
)

// Engine implements orchestrator.OrderEnqueuer.
type Engine struct {
	store    *store.Store
	exchange exchange.Client
	locks    *concurrency.KeyedMutex
	log      *logger.Logger
}

// New builds an Engine. locks must be shared with internal/liquidation so the two components
// serialize against the same (model,symbol) keyspace (spec §5's per-triple mutex guarantee).
func New(st *store.Store, ex exchange.Client, locks *concurrency.KeyedMutex) *Engine {
	return &Engine{
		store:    st,
		exchange: ex,
		locks:    locks,
		log:      logger.With("algoengine"),
	}
}

// positionKey serializes modifying operations per (model, symbol) — spec §9's resolved
// open question: supersession and portfolio mutation are keyed ignoring side, since one-way
// mode never holds simultaneous LONG+SHORT on the same symbol for one model.
func positionKey(modelID, symbol string) string {
	return modelID + "|" + symbol
}

// Enqueue routes a validated decision down the immediate or conditional path (spec §4.7) and
// reflects the outcome on the owning StrategyDecision row.
func (e *Engine) Enqueue(ctx context.Context, model *store.Model, decision *store.StrategyDecision) error {
	key := positionKey(model.ID, decision.Symbol)
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	var err error
	if isConditional(decision) {
		err = e.executeConditional(ctx, model, decision)
	} else {
		err = e.executeImmediate(ctx, model, decision)
	}

	if err != nil {
		reason := apperr.ReasonOf(err)
		if rejectErr := e.store.MarkDecisionRejected(ctx, decision.ID, reason); rejectErr != nil {
			e.log.Warnf("decision %s: failed to mark rejected after error %v: %v", decision.ID, err, rejectErr)
		}
		metrics.RecordDecisionOutcome(model.ID, string(store.DecisionRejected))
		return err
	}
	if !isConditional(decision) {
		metrics.RecordDecisionOutcome(model.ID, string(store.DecisionExecuted))
	}
	return nil
}

// isConditional matches spec §4.7: "signal ∈ {stop_loss, take_profit} or decision carries
// stop_price" submits a resting conditional order instead of an immediate market order.
func isConditional(d *store.StrategyDecision) bool {
	switch d.Signal {
	case store.SignalStopLoss, store.SignalTakeProfit:
		return true
	}
	return d.StopPrice != nil
}

// recordBinanceTradeLog persists the venue's own acknowledgement of a placed order alongside the
// computed Trade row. Failures are logged, not propagated: the order already executed at the
// venue, so a logging failure must not unwind an otherwise-successful trade.
func (e *Engine) recordBinanceTradeLog(ctx context.Context, modelID, symbol string, result *exchange.OrderResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		e.log.Warnf("model %s: marshal order result for %s failed: %v", modelID, symbol, err)
		raw = []byte("{}")
	}
	if _, err := e.store.RecordBinanceTradeLog(ctx, &store.BinanceTradeLog{
		ModelID:         modelID,
		Symbol:          symbol,
		ExternalOrderID: result.ExternalOrderID,
		ClientOrderID:   result.ClientOrderID,
		Status:          result.Status,
		RawPayload:      string(raw),
	}); err != nil {
		e.log.Warnf("model %s: record binance trade log for %s failed: %v", modelID, symbol, err)
	}
}

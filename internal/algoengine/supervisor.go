package algoengine

import (
	"context"
	"time"

	"perpilot/internal/exchange"
	"perpilot/internal/metrics"
	"perpilot/internal/store"
)

// defaultPollInterval matches the cadence the teacher's drawdown monitor uses for its own
// position-watching loop (trader/auto_trader.go startDrawdownMonitor).
const defaultPollInterval = 5 * time.Second

// RunSupervisor polls NEW algo orders against the live ticker fabric until ctx is cancelled
// (spec §4.7's "background task polls NEW AlgoOrders"). Intended to run as its own goroutine,
// one per process.
func (e *Engine) RunSupervisor(ctx context.Context) {
	ticker := time.NewTicker(defaultPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.pollOnce(ctx); err != nil {
				e.log.Warnf("supervisor poll failed: %v", err)
			}
		}
	}
}

func (e *Engine) pollOnce(ctx context.Context) error {
	open, err := e.store.ListAllNewAlgoOrders(ctx)
	if err != nil {
		return err
	}

	for _, algo := range open {
		t, err := e.store.GetMarketTicker(ctx, algo.Symbol)
		if err != nil {
			continue // no fresh price yet, skip until next poll
		}
		if !triggered(algo, t.LastPrice) {
			continue
		}
		if err := e.fillAlgo(ctx, algo, t.LastPrice); err != nil {
			e.log.Warnf("algo %s: local fill failed: %v", algo.ID, err)
		}
	}
	return nil
}

// triggered implements the STOP vs TAKE_PROFIT, LONG vs SHORT semantics (spec §4.7): a stop
// protects against adverse movement, a take-profit locks in favorable movement.
func triggered(algo *store.AlgoOrder, lastPrice float64) bool {
	closingLong := algo.PositionSide == store.SideLong
	switch algo.AlgoType {
	case store.AlgoTypeStop:
		if closingLong {
			return lastPrice <= algo.TriggerPrice
		}
		return lastPrice >= algo.TriggerPrice
	case store.AlgoTypeTakeProfit:
		if closingLong {
			return lastPrice >= algo.TriggerPrice
		}
		return lastPrice <= algo.TriggerPrice
	default:
		return false
	}
}

// fillAlgo is the defensive local fill path: "in case the exchange has not yet fired" (spec
// §4.7). It places the MARKET order itself, writes the Trade, updates the Portfolio, transitions
// the AlgoOrder to FILLED, and links strategy_decision.trade_id.
func (e *Engine) fillAlgo(ctx context.Context, algo *store.AlgoOrder, lastPrice float64) error {
	key := positionKey(algo.ModelID, algo.Symbol)
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	position, err := e.store.GetPortfolio(ctx, algo.ModelID, algo.Symbol, algo.PositionSide)
	if err != nil {
		// The position may already have been closed by another path; drop this stale algo.
		reason := "position already closed"
		return e.store.MarkAlgoOrderStatus(ctx, algo.ID, store.AlgoCancelled, nil, &reason)
	}

	side := exchange.SideSell
	if algo.Side == store.TradeSideBuy {
		side = exchange.SideBuy
	}
	quantity := algo.Quantity
	if quantity > position.Quantity {
		quantity = position.Quantity
	}

	result, err := e.exchange.PlaceOrder(ctx, &exchange.OrderRequest{
		Symbol:       algo.Symbol,
		Side:         side,
		PositionSide: exchange.PositionSide(algo.PositionSide),
		Type:         exchange.OrderTypeMarket,
		Quantity:     quantity,
		ReduceOnly:   true,
	})
	if err != nil {
		return err
	}
	e.recordBinanceTradeLog(ctx, algo.ModelID, algo.Symbol, result)

	exitPrice := result.AvgFillPrice
	if exitPrice == 0 {
		exitPrice = lastPrice
	}
	pnl := realizedPnL(algo.PositionSide, position.AvgEntryPrice, exitPrice, result.ExecutedQty, result.Fee)

	signal := store.SignalStopLoss
	if algo.AlgoType == store.AlgoTypeTakeProfit {
		signal = store.SignalTakeProfit
	}
	trade, err := e.store.RecordTrade(ctx, &store.Trade{
		ModelID:  algo.ModelID,
		Symbol:   algo.Symbol,
		Side:     algo.Side,
		Signal:   signal,
		Quantity: result.ExecutedQty,
		Price:    exitPrice,
		Fee:      result.Fee,
		PnL:      &pnl,
	})
	if err != nil {
		return err
	}

	if err := e.reducePortfolio(ctx, algo.ModelID, algo.Symbol, algo.PositionSide, position, result.ExecutedQty); err != nil {
		return err
	}

	if err := e.store.MarkAlgoOrderStatus(ctx, algo.ID, store.AlgoFilled, &trade.ID, nil); err != nil {
		return err
	}
	metrics.RecordTrade(algo.ModelID, pnl)

	if algo.StrategyDecisionID != nil {
		if err := e.store.MarkDecisionExecuted(ctx, *algo.StrategyDecisionID, trade.ID); err != nil {
			e.log.Warnf("algo %s: link decision %s to trade %s failed: %v", algo.ID, *algo.StrategyDecisionID, trade.ID, err)
		}
		metrics.RecordDecisionOutcome(algo.ModelID, string(store.DecisionExecuted))
	}
	return nil
}

package algoengine

import (
	"context"

	"perpilot/internal/apperr"
	"perpilot/internal/exchange"
	"perpilot/internal/store"
)

// executeConditional handles signal ∈ {stop_loss, take_profit} or a decision carrying stop_price
// (spec §4.7): submits the resting conditional order to the exchange, persists a NEW AlgoOrder,
// and supersedes any older NEW algo for the same (model,symbol).
func (e *Engine) executeConditional(ctx context.Context, model *store.Model, decision *store.StrategyDecision) error {
	if decision.StopPrice == nil {
		return apperr.New(apperr.ValidationFailed, "conditional decision missing stop_price")
	}

	position, positionSide, err := e.findOpenPosition(ctx, model.ID, decision.Symbol)
	if err != nil {
		return err
	}

	algoType := store.AlgoTypeStop
	if decision.Signal == store.SignalTakeProfit {
		algoType = store.AlgoTypeTakeProfit
	}

	orderType := exchange.OrderTypeStopMarket
	if algoType == store.AlgoTypeTakeProfit {
		orderType = exchange.OrderTypeTakeProfit
	}

	side := exchange.SideSell
	tradeSide := store.TradeSideSell
	if positionSide == store.SideShort {
		side, tradeSide = exchange.SideBuy, store.TradeSideBuy
	}

	quantity := decision.Quantity
	if quantity <= 0 || quantity > position.Quantity {
		quantity = position.Quantity
	}

	if err := e.supersedeOpenAlgos(ctx, model.ID, decision.Symbol, tradeSide); err != nil {
		return err
	}

	result, err := e.exchange.PlaceOrder(ctx, &exchange.OrderRequest{
		Symbol:       decision.Symbol,
		Side:         side,
		PositionSide: exchange.PositionSide(positionSide),
		Type:         orderType,
		Quantity:     quantity,
		StopPrice:    *decision.StopPrice,
		ReduceOnly:   true,
	})
	if err != nil {
		return err
	}
	e.recordBinanceTradeLog(ctx, model.ID, decision.Symbol, result)

	strategyDecisionID := decision.ID
	// The decision stays TRIGGERED: it becomes EXECUTED only once the supervisor loop observes
	// this algo fill and writes the Trade (spec §4.7 state machine — EXECUTED requires a trade).
	_, err = e.store.CreateAlgoOrder(ctx, &store.AlgoOrder{
		ExternalAlgoID:     result.ExternalOrderID,
		Type:               string(orderType),
		AlgoType:           algoType,
		OrderType:          string(orderType),
		Symbol:             decision.Symbol,
		Side:               tradeSide,
		PositionSide:       positionSide,
		Quantity:           quantity,
		TriggerPrice:       *decision.StopPrice,
		ModelID:            model.ID,
		StrategyDecisionID: &strategyDecisionID,
	})
	return err
}

// supersedeOpenAlgos cancels older NEW algos for (model,symbol): "a newer higher-priority algo
// for the same (model,symbol) cancels older NEW algos" (spec §4.7, side-agnostic per DESIGN.md's
// resolution of the supersession open question).
func (e *Engine) supersedeOpenAlgos(ctx context.Context, modelID, symbol string, side store.TradeSide) error {
	open, err := e.store.ListOpenAlgoOrders(ctx, modelID, symbol, side)
	if err != nil {
		return err
	}
	opposite := store.TradeSideBuy
	if side == store.TradeSideBuy {
		opposite = store.TradeSideSell
	}
	openOpposite, err := e.store.ListOpenAlgoOrders(ctx, modelID, symbol, opposite)
	if err != nil {
		return err
	}
	open = append(open, openOpposite...)

	for _, a := range open {
		if a.ExternalAlgoID != "" {
			if err := e.exchange.CancelOrder(ctx, symbol, a.ExternalAlgoID); err != nil {
				e.log.Warnf("model %s: cancel superseded algo %s failed: %v", modelID, a.ID, err)
			}
		}
		reason := "superseded"
		if err := e.store.MarkAlgoOrderStatus(ctx, a.ID, store.AlgoCancelled, nil, &reason); err != nil {
			e.log.Warnf("model %s: mark superseded algo %s cancelled failed: %v", modelID, a.ID, err)
		}
	}
	return nil
}

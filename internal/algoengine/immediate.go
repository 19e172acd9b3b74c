package algoengine

import (
	"context"

	"perpilot/internal/apperr"
	"perpilot/internal/exchange"
	"perpilot/internal/metrics"
	"perpilot/internal/store"
)

// executeImmediate handles signal ∈ {buy_to_long, buy_to_short, close_position} with no
// stop_price (spec §4.7): submit MARKET, then write the Trade and Portfolio mutation.
func (e *Engine) executeImmediate(ctx context.Context, model *store.Model, decision *store.StrategyDecision) error {
	switch decision.Signal {
	case store.SignalBuyToLong:
		return e.openPosition(ctx, model, decision, exchange.SideBuy, store.SideLong)
	case store.SignalBuyToShort:
		return e.openPosition(ctx, model, decision, exchange.SideSell, store.SideShort)
	case store.SignalClosePosition:
		return e.closePosition(ctx, model, decision)
	default:
		return apperr.New(apperr.ValidationFailed, "signal not valid for immediate execution: "+string(decision.Signal))
	}
}

func (e *Engine) openPosition(ctx context.Context, model *store.Model, decision *store.StrategyDecision, side exchange.Side, positionSide store.Side) error {
	if existing, err := e.store.GetPortfolio(ctx, model.ID, decision.Symbol, positionSide); err == nil && existing.Quantity > 0 {
		return apperr.New(apperr.PreconditionFail, "position already open for "+decision.Symbol)
	}

	leverage := decision.Leverage
	if leverage <= 0 {
		leverage = model.Leverage
	}
	if err := e.exchange.SetLeverage(ctx, decision.Symbol, leverage); err != nil {
		e.log.Warnf("model %s: set leverage for %s failed, continuing at venue default: %v", model.ID, decision.Symbol, err)
	}

	result, err := e.exchange.PlaceOrder(ctx, &exchange.OrderRequest{
		Symbol:       decision.Symbol,
		Side:         side,
		PositionSide: exchange.PositionSide(positionSide),
		Type:         exchange.OrderTypeMarket,
		Quantity:     decision.Quantity,
	})
	if err != nil {
		return err
	}
	e.recordBinanceTradeLog(ctx, model.ID, decision.Symbol, result)

	price := result.AvgFillPrice
	if price == 0 {
		price = decision.Price
	}

	trade, err := e.store.RecordTrade(ctx, &store.Trade{
		ModelID:  model.ID,
		Symbol:   decision.Symbol,
		Side:     store.TradeSideBuy,
		Signal:   decision.Signal,
		Quantity: result.ExecutedQty,
		Price:    price,
		Fee:      result.Fee,
	})
	if err != nil {
		return err
	}

	initialMargin := price * result.ExecutedQty / float64(leverage)
	if err := e.store.UpsertPortfolio(ctx, &store.Portfolio{
		ModelID:       model.ID,
		Symbol:        decision.Symbol,
		Side:          positionSide,
		Quantity:      result.ExecutedQty,
		AvgEntryPrice: price,
		InitialMargin: initialMargin,
		Leverage:      leverage,
	}); err != nil {
		return err
	}

	return e.store.MarkDecisionExecuted(ctx, decision.ID, trade.ID)
}

func (e *Engine) closePosition(ctx context.Context, model *store.Model, decision *store.StrategyDecision) error {
	position, positionSide, err := e.findOpenPosition(ctx, model.ID, decision.Symbol)
	if err != nil {
		return err
	}

	side := exchange.SideSell
	if positionSide == store.SideShort {
		side = exchange.SideBuy
	}

	quantity := decision.Quantity
	if quantity <= 0 || quantity > position.Quantity {
		quantity = position.Quantity
	}

	result, err := e.exchange.PlaceOrder(ctx, &exchange.OrderRequest{
		Symbol:       decision.Symbol,
		Side:         side,
		PositionSide: exchange.PositionSide(positionSide),
		Type:         exchange.OrderTypeMarket,
		Quantity:     quantity,
		ReduceOnly:   true,
	})
	if err != nil {
		return err
	}
	e.recordBinanceTradeLog(ctx, model.ID, decision.Symbol, result)

	exitPrice := result.AvgFillPrice
	if exitPrice == 0 {
		exitPrice = decision.Price
	}
	pnl := realizedPnL(positionSide, position.AvgEntryPrice, exitPrice, result.ExecutedQty, result.Fee)

	tradeSide := store.TradeSideSell
	if positionSide == store.SideShort {
		tradeSide = store.TradeSideBuy
	}
	trade, err := e.store.RecordTrade(ctx, &store.Trade{
		ModelID:  model.ID,
		Symbol:   decision.Symbol,
		Side:     tradeSide,
		Signal:   decision.Signal,
		Quantity: result.ExecutedQty,
		Price:    exitPrice,
		Fee:      result.Fee,
		PnL:      &pnl,
	})
	if err != nil {
		return err
	}

	if err := e.reducePortfolio(ctx, model.ID, decision.Symbol, positionSide, position, result.ExecutedQty); err != nil {
		return err
	}

	metrics.RecordTrade(model.ID, pnl)
	return e.store.MarkDecisionExecuted(ctx, decision.ID, trade.ID)
}

// findOpenPosition locates the (at most one, under one-way mode) open position for symbol.
func (e *Engine) findOpenPosition(ctx context.Context, modelID, symbol string) (*store.Portfolio, store.Side, error) {
	if p, err := e.store.GetPortfolio(ctx, modelID, symbol, store.SideLong); err == nil && p.Quantity > 0 {
		return p, store.SideLong, nil
	}
	if p, err := e.store.GetPortfolio(ctx, modelID, symbol, store.SideShort); err == nil && p.Quantity > 0 {
		return p, store.SideShort, nil
	}
	return nil, "", apperr.New(apperr.NotFound, "no open position for "+symbol)
}

func (e *Engine) reducePortfolio(ctx context.Context, modelID, symbol string, side store.Side, position *store.Portfolio, closedQty float64) error {
	remaining := position.Quantity - closedQty
	if remaining <= 0 {
		return e.store.ClosePosition(ctx, modelID, symbol, side)
	}
	position.Quantity = remaining
	position.InitialMargin = position.InitialMargin * remaining / (remaining + closedQty)
	return e.store.UpsertPortfolio(ctx, position)
}

// realizedPnL implements spec §4.7's closing formulas.
func realizedPnL(side store.Side, entryAvg, exitPrice, qty, fee float64) float64 {
	if side == store.SideShort {
		return (entryAvg-exitPrice)*qty - fee
	}
	return (exitPrice-entryAvg)*qty - fee
}

// Package liquidation is the Auto-Liquidation Loop (spec §4.8): a periodic scan that force-closes
// any position whose unrealized loss has breached its model's configured auto_close_percent.
// Grounded on the teacher's trader/auto_trader.go startDrawdownMonitor/checkPositionDrawdown
// (ticker + stop channel monitoring loop, one tick per minute).
package liquidation

import (
	"context"
	"encoding/json"
	"time"

	"perpilot/internal/concurrency"
	"perpilot/internal/exchange"
	"perpilot/internal/logger"
	"perpilot/internal/metrics"
	"perpilot/internal/store"
)

// DefaultScanInterval matches spec §4.8's "periodic scan (default 60 s)".
const DefaultScanInterval = 60 * time.Second

const maxCloseAttempts = 3

// Loop owns the scan goroutine.
type Loop struct {
	store       *store.Store
	exchange    exchange.Client
	locks       *concurrency.KeyedMutex
	interval    time.Duration
	backoffBase time.Duration
	log         *logger.Logger
}

func New(st *store.Store, ex exchange.Client, locks *concurrency.KeyedMutex) *Loop {
	return &Loop{
		store:       st,
		exchange:    ex,
		locks:       locks,
		interval:    DefaultScanInterval,
		backoffBase: time.Second,
		log:         logger.With("liquidation"),
	}
}

// Run scans on a ticker until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.scanOnce(ctx)
		}
	}
}

func (l *Loop) scanOnce(ctx context.Context) {
	candidates, err := l.store.ListLiquidationCandidates(ctx)
	if err != nil {
		l.log.Warnf("scan failed to list candidates: %v", err)
		return
	}

	for _, c := range candidates {
		ratio := lossRatio(c.Portfolio)
		threshold := c.AutoClosePercent / 100
		if ratio < threshold {
			continue
		}
		l.log.Infof("model %s: %s loss ratio %.4f >= threshold %.4f, force-closing",
			c.Portfolio.ModelID, c.Portfolio.Symbol, ratio, threshold)
		if err := l.closeWithRetry(ctx, c.Portfolio); err != nil {
			l.log.Warnf("model %s: force-close %s failed after retries, will retry next scan: %v",
				c.Portfolio.ModelID, c.Portfolio.Symbol, err)
		}
	}
}

// lossRatio implements spec §4.8 step 1: "r = -unrealizedPnl / initialMargin (clamped >= 0)".
func lossRatio(p *store.Portfolio) float64 {
	if p.InitialMargin <= 0 {
		return 0
	}
	r := -p.UnrealizedPnL / p.InitialMargin
	if r < 0 {
		return 0
	}
	return r
}

// closeWithRetry retries up to maxCloseAttempts times with exponential backoff (spec §4.8 step 3).
func (l *Loop) closeWithRetry(ctx context.Context, p *store.Portfolio) error {
	key := p.ModelID + "|" + p.Symbol
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	var lastErr error
	delay := l.backoffBase
	for attempt := 1; attempt <= maxCloseAttempts; attempt++ {
		if lastErr = l.forceClose(ctx, p); lastErr == nil {
			return nil
		}
		if attempt == maxCloseAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}

func (l *Loop) forceClose(ctx context.Context, p *store.Portfolio) error {
	side := exchange.SideSell
	if p.Side == store.SideShort {
		side = exchange.SideBuy
	}

	result, err := l.exchange.PlaceOrder(ctx, &exchange.OrderRequest{
		Symbol:       p.Symbol,
		Side:         side,
		PositionSide: exchange.PositionSide(p.Side),
		Type:         exchange.OrderTypeMarket,
		Quantity:     p.Quantity,
		ReduceOnly:   true,
	})
	if err != nil {
		return err
	}
	l.recordBinanceTradeLog(ctx, p.ModelID, p.Symbol, result)

	exitPrice := result.AvgFillPrice
	pnl := realizedPnL(p.Side, p.AvgEntryPrice, exitPrice, result.ExecutedQty, result.Fee)

	tradeSide := store.TradeSideSell
	if p.Side == store.SideShort {
		tradeSide = store.TradeSideBuy
	}
	if _, err := l.store.RecordTrade(ctx, &store.Trade{
		ModelID:  p.ModelID,
		Symbol:   p.Symbol,
		Side:     tradeSide,
		Signal:   store.SignalClosePosition,
		Quantity: result.ExecutedQty,
		Price:    exitPrice,
		Fee:      result.Fee,
		PnL:      &pnl,
	}); err != nil {
		return err
	}

	if err := l.store.ClosePosition(ctx, p.ModelID, p.Symbol, p.Side); err != nil {
		return err
	}
	metrics.RecordTrade(p.ModelID, pnl)
	metrics.RecordLiquidation(p.ModelID, p.Symbol)
	return nil
}

// recordBinanceTradeLog persists the venue's own acknowledgement of a force-close order alongside
// the computed Trade row. Failures are logged, not propagated: the close already executed.
func (l *Loop) recordBinanceTradeLog(ctx context.Context, modelID, symbol string, result *exchange.OrderResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		l.log.Warnf("model %s: marshal order result for %s failed: %v", modelID, symbol, err)
		raw = []byte("{}")
	}
	if _, err := l.store.RecordBinanceTradeLog(ctx, &store.BinanceTradeLog{
		ModelID:         modelID,
		Symbol:          symbol,
		ExternalOrderID: result.ExternalOrderID,
		ClientOrderID:   result.ClientOrderID,
		Status:          result.Status,
		RawPayload:      string(raw),
	}); err != nil {
		l.log.Warnf("model %s: record binance trade log for %s failed: %v", modelID, symbol, err)
	}
}

func realizedPnL(side store.Side, entryAvg, exitPrice, qty, fee float64) float64 {
	if side == store.SideShort {
		return (entryAvg-exitPrice)*qty - fee
	}
	return (exitPrice-entryAvg)*qty - fee
}

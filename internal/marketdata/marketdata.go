// Package marketdata is the Market Ticker Ingestor: it consumes the Exchange Gateway's single
// all-symbol ticker stream and keeps internal/store's market_tickers table current, batching
// writes and preserving the reference price date across ticks the way the teacher's market data
// layer does (market/data.go, market/types.go).
package marketdata

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"perpilot/internal/exchange"
	"perpilot/internal/logger"
	"perpilot/internal/store"
)

const (
	batchFlushInterval = 2 * time.Second
	batchMaxSize       = 200
	reconnectMinDelay  = time.Second
	reconnectMaxDelay  = 30 * time.Second

	// quoteAsset is the only quote currency perpilot trades; the all-symbol stream carries every
	// quote asset Binance lists, so the Ingestor filters the batch down to this suffix itself.
	quoteAsset = "USDT"
)

// Ingestor subscribes to the exchange's single all-symbol ticker stream, filters it to USDT
// pairs, and persists the result.
type Ingestor struct {
	st     *store.Store
	client exchange.Client
	log    *logger.Logger

	mu    sync.Mutex
	batch []*store.MarketTicker
	stop  func()
}

// New builds an Ingestor. Call Start to begin streaming.
func New(st *store.Store, client exchange.Client) *Ingestor {
	return &Ingestor{
		st:     st,
		client: client,
		log:    logger.With("marketdata"),
	}
}

// Start opens the all-symbol ticker stream and runs until ctx is cancelled. It also starts the
// batch-flush loop that periodically upserts buffered ticks into the store. Spec requires at
// most one active subscription at a time, so Start never fans out per-symbol the way the teacher's
// original per-symbol mini-ticker loop did.
func (ig *Ingestor) Start(ctx context.Context) error {
	if err := ig.subscribeWithReconnect(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(batchFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			ig.flush(context.Background())
			ig.stopAll()
			return nil
		case <-ticker.C:
			ig.flush(ctx)
		}
	}
}

func (ig *Ingestor) subscribeWithReconnect(ctx context.Context) error {
	var attempt int
	var connect func() error
	connect = func() error {
		stop, err := ig.client.SubscribeAllTickers(ctx, ig.onBatch)
		if err != nil {
			attempt++
			delay := backoffDelay(attempt)
			ig.log.Warnf("all-ticker subscribe failed (attempt %d), retrying in %s: %v", attempt, delay, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			return connect()
		}
		attempt = 0
		ig.mu.Lock()
		ig.stop = stop
		ig.mu.Unlock()
		return nil
	}
	return connect()
}

// onBatch filters an all-symbol ticker batch down to USDT pairs before enqueueing.
func (ig *Ingestor) onBatch(tickers []exchange.Ticker) {
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, quoteAsset) {
			continue
		}
		ig.enqueue(t.Symbol, t)
	}
}

func backoffDelay(attempt int) time.Duration {
	d := reconnectMinDelay * time.Duration(1<<uint(attempt-1))
	if d > reconnectMaxDelay {
		d = reconnectMaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d/2 + jitter
}

func (ig *Ingestor) enqueue(symbol string, t exchange.Ticker) {
	ig.mu.Lock()
	defer ig.mu.Unlock()

	ig.batch = append(ig.batch, &store.MarketTicker{
		Symbol:             symbol,
		OpenPrice:          t.OpenPrice,
		LastPrice:          t.LastPrice,
		PriceChange:        &t.PriceChange,
		PriceChangePercent: &t.PriceChangePercent,
		QuoteVolume:        t.QuoteVolume,
		BaseVolume:         t.BaseVolume,
		EventTime:          t.EventTime,
	})
	if len(ig.batch) >= batchMaxSize {
		go ig.flush(context.Background())
	}
}

// flush upserts every buffered tick. update_price_date is never force-updated here: the
// reference open-price date is only (re)stamped by the Price Refresh job (PriceRefresher via
// store.SetPriceAnchor), matching the teacher's rule that intraday ticks must not reset the
// reference date.
func (ig *Ingestor) flush(ctx context.Context) {
	ig.mu.Lock()
	pending := ig.batch
	ig.batch = nil
	ig.mu.Unlock()

	for _, t := range pending {
		if err := ig.st.UpsertMarketTicker(ctx, t, false); err != nil {
			ig.log.Errorf("upsert ticker %s failed: %v", t.Symbol, err)
		}
	}
}

func (ig *Ingestor) stopAll() {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	if ig.stop != nil {
		ig.stop()
		ig.stop = nil
	}
}

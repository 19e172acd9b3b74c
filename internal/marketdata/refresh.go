package marketdata

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"perpilot/internal/exchange"
	"perpilot/internal/logger"
	"perpilot/internal/store"
)

// refreshStaleAfter matches spec §4.2's "update_price_date is null or older than 1 hour" rule.
const refreshStaleAfter = time.Hour

// PriceRefresher is the Price Refresh scheduled job: it finds symbols whose open_price anchor
// is missing or stale, fetches a REST reference price for each, and writes it back as the new
// anchor. It runs independently of, and does not race, the streaming ticker upsert path, since
// store.SetPriceAnchor only ever touches the open_price/update_price_date columns.
type PriceRefresher struct {
	st      *store.Store
	client  exchange.Client
	log     *logger.Logger
	limiter *rate.Limiter
}

// NewPriceRefresher builds a refresher throttled to maxPerMinute REST calls (PRICE_REFRESH_MAX_PER_MINUTE).
func NewPriceRefresher(st *store.Store, client exchange.Client, maxPerMinute int) *PriceRefresher {
	if maxPerMinute <= 0 {
		maxPerMinute = 1000
	}
	return &PriceRefresher{
		st:      st,
		client:  client,
		log:     logger.With("marketdata.refresh"),
		limiter: rate.NewLimiter(rate.Limit(float64(maxPerMinute)/60.0), maxPerMinute),
	}
}

// Run is a scheduler.TaskFunc: one pass over every refresh-eligible symbol.
func (r *PriceRefresher) Run(ctx context.Context) {
	staleBefore := nowUTC8().Add(-refreshStaleAfter)
	symbols, err := r.st.ListSymbolsNeedingPriceRefresh(ctx, staleBefore)
	if err != nil {
		r.log.Warnf("list refresh candidates failed: %v", err)
		return
	}

	for _, sym := range symbols {
		if err := r.limiter.Wait(ctx); err != nil {
			return
		}
		price, err := r.client.GetPrice(ctx, sym)
		if err != nil {
			r.log.Warnf("refresh price for %s failed: %v", sym, err)
			continue
		}
		if err := r.st.SetPriceAnchor(ctx, sym, price, nowUTC8()); err != nil {
			r.log.Warnf("set price anchor for %s failed: %v", sym, err)
		}
	}
}

// TickerCleanup is the Kline Cleanup scheduled job: it deletes market_tickers rows whose
// ingestion_time has aged out of the configured retention window.
type TickerCleanup struct {
	st            *store.Store
	retentionDays int
	log           *logger.Logger
}

// NewTickerCleanup builds a cleanup job retaining retentionDays of ticker rows (KLINE_CLEANUP_RETENTION_DAYS).
func NewTickerCleanup(st *store.Store, retentionDays int) *TickerCleanup {
	if retentionDays <= 0 {
		retentionDays = 14
	}
	return &TickerCleanup{st: st, retentionDays: retentionDays, log: logger.With("marketdata.cleanup")}
}

// Run is a scheduler.TaskFunc: one sweep against the retention cutoff.
func (c *TickerCleanup) Run(ctx context.Context) {
	cutoff := nowUTC8().Add(-time.Duration(c.retentionDays) * 24 * time.Hour)
	n, err := c.st.DeleteStaleMarketTickers(ctx, cutoff)
	if err != nil {
		c.log.Warnf("cleanup failed: %v", err)
		return
	}
	if n > 0 {
		c.log.Infof("cleanup removed %d stale ticker rows older than %s", n, cutoff)
	}
}

// nowUTC8 mirrors internal/store's own trading-day reference clock: a fixed eight-hour offset
// with no DST handling.
func nowUTC8() time.Time {
	return time.Now().UTC().Add(8 * time.Hour)
}

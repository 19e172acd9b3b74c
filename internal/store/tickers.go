package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"perpilot/internal/apperr"
)

// UpsertMarketTicker writes the latest 24h ticker snapshot for a symbol. update_price_date is
// preserved across updates unless forceDateUpdate is set, matching the teacher's "don't reset
// the reference price's date on every tick" ingestion rule.
func (s *Store) UpsertMarketTicker(ctx context.Context, t *MarketTicker, forceDateUpdate bool) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	t.IngestionTime = nowUTC8()
	priceChange, priceChangePercent := changeFromAnchor(t.OpenPrice, t.LastPrice)

	if forceDateUpdate {
		// A forced write takes open_price and update_price_date from the caller, so the anchor
		// moves too. (The Price Refresh job re-anchors through SetPriceAnchor instead.)
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO market_tickers (symbol, open_price, last_price, price_change,
				price_change_percent, quote_volume, base_volume, event_time, ingestion_time,
				update_price_date, side)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(symbol) DO UPDATE SET
				open_price = excluded.open_price,
				last_price = excluded.last_price,
				price_change = excluded.price_change,
				price_change_percent = excluded.price_change_percent,
				quote_volume = excluded.quote_volume,
				base_volume = excluded.base_volume,
				event_time = excluded.event_time,
				ingestion_time = excluded.ingestion_time,
				update_price_date = excluded.update_price_date,
				side = excluded.side`,
			t.Symbol, t.OpenPrice, t.LastPrice, priceChange, priceChangePercent,
			t.QuoteVolume, t.BaseVolume, t.EventTime, t.IngestionTime, t.UpdatePriceDate, t.Side)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "upsert market ticker (force date)", err)
		}
		return nil
	}

	// Intraday ticks never move the open_price anchor or its date. price_change and
	// price_change_percent are recomputed against whichever anchor is already on file, not
	// whatever the caller supplied, so a conflicting upstream 24h window never leaks in.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_tickers (symbol, open_price, last_price, price_change,
			price_change_percent, quote_volume, base_volume, event_time, ingestion_time,
			update_price_date, side)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			last_price = excluded.last_price,
			price_change = CASE WHEN market_tickers.open_price > 0
				THEN excluded.last_price - market_tickers.open_price ELSE NULL END,
			price_change_percent = CASE WHEN market_tickers.open_price > 0
				THEN (excluded.last_price - market_tickers.open_price) / market_tickers.open_price * 100 ELSE NULL END,
			quote_volume = excluded.quote_volume,
			base_volume = excluded.base_volume,
			event_time = excluded.event_time,
			ingestion_time = excluded.ingestion_time,
			side = excluded.side`,
		t.Symbol, t.OpenPrice, t.LastPrice, priceChange, priceChangePercent,
		t.QuoteVolume, t.BaseVolume, t.EventTime, t.IngestionTime, t.UpdatePriceDate, t.Side)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "upsert market ticker", err)
	}
	return nil
}

// changeFromAnchor implements spec's "(last - open_price) / open_price" recompute rule, expressed
// as a percentage. Its values are written by a forced upsert, and by the brand-new-symbol insert
// branch of a non-forced one; existing rows on a non-forced upsert recompute in SQL against the
// anchor already on file.
func changeFromAnchor(open, last float64) (*float64, *float64) {
	if open <= 0 {
		return nil, nil
	}
	change := last - open
	pct := change / open * 100
	return &change, &pct
}

// SetPriceAnchor is the Price Refresh job's sole write path: it (re)stamps open_price and
// update_price_date for symbol without touching the columns the ticker stream owns. A symbol
// with no prior row is seeded at last_price == open_price, so price_change_percent starts flat.
func (s *Store) SetPriceAnchor(ctx context.Context, symbol string, price float64, asOf time.Time) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_tickers (symbol, open_price, last_price, price_change,
			price_change_percent, quote_volume, base_volume, event_time, ingestion_time,
			update_price_date, side)
		VALUES (?, ?, ?, NULL, NULL, 0, 0, ?, ?, ?, '')
		ON CONFLICT(symbol) DO UPDATE SET
			open_price = excluded.open_price,
			update_price_date = excluded.update_price_date,
			price_change = CASE WHEN excluded.open_price > 0
				THEN market_tickers.last_price - excluded.open_price ELSE NULL END,
			price_change_percent = CASE WHEN excluded.open_price > 0
				THEN (market_tickers.last_price - excluded.open_price) / excluded.open_price * 100 ELSE NULL END`,
		symbol, price, price, asOf, asOf, asOf)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "set price anchor", err)
	}
	return nil
}

// ListSymbolsNeedingPriceRefresh returns symbols whose update_price_date is null or older than
// staleBefore (spec §4.2's refresh-eligibility rule), ordered for deterministic batching.
func (s *Store) ListSymbolsNeedingPriceRefresh(ctx context.Context, staleBefore time.Time) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol FROM market_tickers
		WHERE update_price_date IS NULL OR update_price_date < ?
		ORDER BY symbol`, staleBefore)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list symbols needing price refresh", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan refresh candidate row", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// DeleteStaleMarketTickers removes rows whose ingestion_time predates cutoff, implementing the
// Kline Cleanup job's retention sweep. Returns the number of rows removed.
func (s *Store) DeleteStaleMarketTickers(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM market_tickers WHERE ingestion_time < ?`, cutoff)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "delete stale market tickers", err)
	}
	return res.RowsAffected()
}

// GetMarketTicker fetches the latest ticker snapshot for a symbol.
func (s *Store) GetMarketTicker(ctx context.Context, symbol string) (*MarketTicker, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, open_price, last_price, price_change, price_change_percent,
			quote_volume, base_volume, event_time, ingestion_time, update_price_date, side
		FROM market_tickers WHERE symbol = ?`, symbol)
	t := &MarketTicker{}
	if err := row.Scan(&t.Symbol, &t.OpenPrice, &t.LastPrice, &t.PriceChange, &t.PriceChangePercent,
		&t.QuoteVolume, &t.BaseVolume, &t.EventTime, &t.IngestionTime, &t.UpdatePriceDate, &t.Side); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("market_ticker", symbol)
		}
		return nil, apperr.Wrap(apperr.Internal, "scan market ticker", err)
	}
	return t, nil
}

// ListMarketTickers returns every tracked ticker, used by the Strategy Executor to build
// candidate lists and by the facade's read endpoints.
func (s *Store) ListMarketTickers(ctx context.Context) ([]*MarketTicker, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, open_price, last_price, price_change, price_change_percent,
			quote_volume, base_volume, event_time, ingestion_time, update_price_date, side
		FROM market_tickers ORDER BY symbol`)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list market tickers", err)
	}
	defer rows.Close()

	var out []*MarketTicker
	for rows.Next() {
		t := &MarketTicker{}
		if err := rows.Scan(&t.Symbol, &t.OpenPrice, &t.LastPrice, &t.PriceChange, &t.PriceChangePercent,
			&t.QuoteVolume, &t.BaseVolume, &t.EventTime, &t.IngestionTime, &t.UpdatePriceDate, &t.Side); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan market ticker row", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTopGainers returns the top-N tickers by price_change_percent, optionally filtered by a
// minimum base volume (minBaseVolume == nil means no filter), for the leaderboard candidate
// source (spec §4.6).
func (s *Store) ListTopGainers(ctx context.Context, topN int, minBaseVolume *float64) ([]*MarketTicker, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT symbol, open_price, last_price, price_change, price_change_percent,
			quote_volume, base_volume, event_time, ingestion_time, update_price_date, side
		FROM market_tickers
		WHERE price_change_percent IS NOT NULL`
	args := []any{}
	if minBaseVolume != nil {
		query += ` AND base_volume >= ?`
		args = append(args, *minBaseVolume)
	}
	query += ` ORDER BY price_change_percent DESC LIMIT ?`
	args = append(args, topN)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list top gainers", err)
	}
	defer rows.Close()

	var out []*MarketTicker
	for rows.Next() {
		t := &MarketTicker{}
		if err := rows.Scan(&t.Symbol, &t.OpenPrice, &t.LastPrice, &t.PriceChange, &t.PriceChangePercent,
			&t.QuoteVolume, &t.BaseVolume, &t.EventTime, &t.IngestionTime, &t.UpdatePriceDate, &t.Side); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan top gainer row", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

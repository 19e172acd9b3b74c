package store

import (
	"context"
	"database/sql"
	"errors"

	"perpilot/internal/apperr"
)

// UpsertPortfolio inserts or updates the open position for (model, symbol, side).
func (s *Store) UpsertPortfolio(ctx context.Context, p *Portfolio) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	p.UpdatedAt = nowUTC8()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO portfolios (model_id, symbol, side, quantity, avg_entry_price,
			initial_margin, leverage, unrealized_pnl, entry_time, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(model_id, symbol, side) DO UPDATE SET
			quantity = excluded.quantity,
			avg_entry_price = excluded.avg_entry_price,
			initial_margin = excluded.initial_margin,
			leverage = excluded.leverage,
			unrealized_pnl = excluded.unrealized_pnl,
			updated_at = excluded.updated_at`,
		p.ModelID, p.Symbol, string(p.Side), p.Quantity, p.AvgEntryPrice,
		p.InitialMargin, p.Leverage, p.UnrealizedPnL, p.EntryTime, p.UpdatedAt)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "upsert portfolio", err)
	}
	return nil
}

// GetPortfolio fetches the open position for (model, symbol, side), if any.
func (s *Store) GetPortfolio(ctx context.Context, modelID, symbol string, side Side) (*Portfolio, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT model_id, symbol, side, quantity, avg_entry_price, initial_margin, leverage,
			unrealized_pnl, entry_time, updated_at
		FROM portfolios WHERE model_id = ? AND symbol = ? AND side = ?`, modelID, symbol, string(side))
	p := &Portfolio{}
	var sd string
	if err := row.Scan(&p.ModelID, &p.Symbol, &sd, &p.Quantity, &p.AvgEntryPrice, &p.InitialMargin,
		&p.Leverage, &p.UnrealizedPnL, &p.EntryTime, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("portfolio", modelID+"/"+symbol+"/"+string(side))
		}
		return nil, apperr.Wrap(apperr.Internal, "scan portfolio", err)
	}
	p.Side = Side(sd)
	return p, nil
}

// ListOpenPositions returns every open position for a model.
func (s *Store) ListOpenPositions(ctx context.Context, modelID string) ([]*Portfolio, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT model_id, symbol, side, quantity, avg_entry_price, initial_margin, leverage,
			unrealized_pnl, entry_time, updated_at
		FROM portfolios WHERE model_id = ? AND quantity > 0`, modelID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list open positions", err)
	}
	defer rows.Close()

	var out []*Portfolio
	for rows.Next() {
		p := &Portfolio{}
		var sd string
		if err := rows.Scan(&p.ModelID, &p.Symbol, &sd, &p.Quantity, &p.AvgEntryPrice, &p.InitialMargin,
			&p.Leverage, &p.UnrealizedPnL, &p.EntryTime, &p.UpdatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan position row", err)
		}
		p.Side = Side(sd)
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountOpenPositions counts open positions for a model across both sides, the basis for
// max_positions enforcement under one-way mode (spec open question resolution, see DESIGN.md).
func (s *Store) CountOpenPositions(ctx context.Context, modelID string) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM portfolios WHERE model_id = ? AND quantity > 0`, modelID).Scan(&n)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "count open positions", err)
	}
	return n, nil
}

// ClosePosition removes the row once quantity reaches zero.
func (s *Store) ClosePosition(ctx context.Context, modelID, symbol string, side Side) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM portfolios WHERE model_id = ? AND symbol = ? AND side = ?`,
		modelID, symbol, string(side))
	if err != nil {
		return apperr.Wrap(apperr.Internal, "close position", err)
	}
	return nil
}

package store

import (
	"context"

	"github.com/google/uuid"

	"perpilot/internal/apperr"
)

// RecordTrade inserts a realized execution.
func (s *Store) RecordTrade(ctx context.Context, t *Trade) (*Trade, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = nowUTC8()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, model_id, symbol, side, signal, quantity, price, fee, pnl, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ModelID, t.Symbol, string(t.Side), string(t.Signal), t.Quantity, t.Price,
		t.Fee, t.PnL, t.Timestamp)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "insert trade", err)
	}
	return t, nil
}

// ListTrades returns a model's trades, most recent first, capped at limit (0 = no cap).
func (s *Store) ListTrades(ctx context.Context, modelID string, limit int) ([]*Trade, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, model_id, symbol, side, signal, quantity, price, fee, pnl, timestamp
		FROM trades WHERE model_id = ? ORDER BY timestamp DESC`
	args := []any{modelID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list trades", err)
	}
	defer rows.Close()

	var out []*Trade
	for rows.Next() {
		t := &Trade{}
		var side, sig string
		if err := rows.Scan(&t.ID, &t.ModelID, &t.Symbol, &side, &sig, &t.Quantity, &t.Price,
			&t.Fee, &t.PnL, &t.Timestamp); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan trade row", err)
		}
		t.Side, t.Signal = TradeSide(side), Signal(sig)
		out = append(out, t)
	}
	return out, rows.Err()
}

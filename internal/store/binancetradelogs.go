package store

import (
	"context"

	"github.com/google/uuid"

	"perpilot/internal/apperr"
)

// RecordBinanceTradeLog appends a raw order-acknowledgement record. Like Trade and
// Conversation, these are append-only.
func (s *Store) RecordBinanceTradeLog(ctx context.Context, l *BinanceTradeLog) (*BinanceTradeLog, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = nowUTC8()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO binance_trade_logs
			(id, model_id, symbol, external_order_id, client_order_id, status, raw_payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.ModelID, l.Symbol, l.ExternalOrderID, l.ClientOrderID, l.Status, l.RawPayload, l.CreatedAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "insert binance trade log", err)
	}
	return l, nil
}

// ListBinanceTradeLogs returns a model's raw order-acknowledgement log, most recent first.
func (s *Store) ListBinanceTradeLogs(ctx context.Context, modelID string, limit int) ([]*BinanceTradeLog, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, model_id, symbol, external_order_id, client_order_id, status, raw_payload, created_at
		FROM binance_trade_logs WHERE model_id = ? ORDER BY created_at DESC`
	args := []any{modelID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list binance trade logs", err)
	}
	defer rows.Close()

	var out []*BinanceTradeLog
	for rows.Next() {
		l := &BinanceTradeLog{}
		if err := rows.Scan(&l.ID, &l.ModelID, &l.Symbol, &l.ExternalOrderID, &l.ClientOrderID,
			&l.Status, &l.RawPayload, &l.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan binance trade log row", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

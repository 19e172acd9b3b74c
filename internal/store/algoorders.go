package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"perpilot/internal/apperr"
)

// CreateAlgoOrder inserts a new resting conditional order in NEW status.
func (s *Store) CreateAlgoOrder(ctx context.Context, a *AlgoOrder) (*AlgoOrder, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.ClientAlgoID == "" {
		a.ClientAlgoID = uuid.NewString()
	}
	now := nowUTC8()
	a.CreatedAt, a.UpdatedAt = now, now
	if a.Status == "" {
		a.Status = AlgoNew
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO algo_orders (id, external_algo_id, client_algo_id, type, algo_type,
			order_type, symbol, side, position_side, quantity, trigger_price, limit_price,
			status, model_id, strategy_decision_id, trade_id, error_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ExternalAlgoID, a.ClientAlgoID, a.Type, string(a.AlgoType), a.OrderType,
		a.Symbol, string(a.Side), string(a.PositionSide), a.Quantity, a.TriggerPrice,
		a.LimitPrice, string(a.Status), a.ModelID, a.StrategyDecisionID, a.TradeID,
		a.ErrorReason, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "insert algo order", err)
	}
	return a, nil
}

func scanAlgoOrder(row interface{ Scan(...any) error }) (*AlgoOrder, error) {
	a := &AlgoOrder{}
	var algoType, side, posSide, status string
	if err := row.Scan(&a.ID, &a.ExternalAlgoID, &a.ClientAlgoID, &a.Type, &algoType,
		&a.OrderType, &a.Symbol, &side, &posSide, &a.Quantity, &a.TriggerPrice, &a.LimitPrice,
		&status, &a.ModelID, &a.StrategyDecisionID, &a.TradeID, &a.ErrorReason,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.AlgoType, a.Side, a.PositionSide, a.Status = AlgoType(algoType), TradeSide(side), Side(posSide), AlgoOrderStatus(status)
	return a, nil
}

const algoOrderColumns = `
	id, external_algo_id, client_algo_id, type, algo_type, order_type, symbol, side,
	position_side, quantity, trigger_price, limit_price, status, model_id,
	strategy_decision_id, trade_id, error_reason, created_at, updated_at`

// GetAlgoOrder fetches an algo order by internal ID.
func (s *Store) GetAlgoOrder(ctx context.Context, id string) (*AlgoOrder, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+algoOrderColumns+` FROM algo_orders WHERE id = ?`, id)
	a, err := scanAlgoOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("algo_order", id)
		}
		return nil, apperr.Wrap(apperr.Internal, "scan algo order", err)
	}
	return a, nil
}

// ListOpenAlgoOrders returns NEW algo orders for (model, symbol, side) — the set a newly
// placed conditional order supersedes (spec open question: newer NEW supersedes older NEW).
func (s *Store) ListOpenAlgoOrders(ctx context.Context, modelID, symbol string, side TradeSide) ([]*AlgoOrder, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+algoOrderColumns+` FROM algo_orders
		WHERE model_id = ? AND symbol = ? AND side = ? AND status = ?
		ORDER BY created_at`, modelID, symbol, string(side), string(AlgoNew))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list open algo orders", err)
	}
	defer rows.Close()

	var out []*AlgoOrder
	for rows.Next() {
		a, err := scanAlgoOrder(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan algo order row", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAllNewAlgoOrders returns every NEW algo order across all models, the working set for the
// Algo-Order Engine's supervisor loop (spec §4.7).
func (s *Store) ListAllNewAlgoOrders(ctx context.Context) ([]*AlgoOrder, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+algoOrderColumns+` FROM algo_orders WHERE status = ? ORDER BY created_at`,
		string(AlgoNew))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list new algo orders", err)
	}
	defer rows.Close()

	var out []*AlgoOrder
	for rows.Next() {
		a, err := scanAlgoOrder(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan algo order row", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkAlgoOrderStatus transitions an algo order's status (NEW -> CANCELLED|FILLED), optionally
// recording the trade that filled it or the reason it was cancelled.
func (s *Store) MarkAlgoOrderStatus(ctx context.Context, id string, status AlgoOrderStatus, tradeID, errorReason *string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE algo_orders SET status = ?, trade_id = COALESCE(?, trade_id),
			error_reason = COALESCE(?, error_reason), updated_at = ?
		WHERE id = ?`, string(status), tradeID, errorReason, nowUTC8(), id)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "mark algo order status", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return notFound("algo_order", id)
	}
	return nil
}

// SetExternalAlgoID records the exchange-assigned algo ID once the order is accepted upstream.
func (s *Store) SetExternalAlgoID(ctx context.Context, id, externalID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		UPDATE algo_orders SET external_algo_id = ?, updated_at = ? WHERE id = ?`,
		externalID, nowUTC8(), id)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "set external algo id", err)
	}
	return nil
}

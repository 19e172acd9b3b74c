package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"perpilot/internal/apperr"
)

// RecordDecision inserts a newly emitted decision in TRIGGERED status.
func (s *Store) RecordDecision(ctx context.Context, d *StrategyDecision) (*StrategyDecision, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = nowUTC8()
	}
	if d.Status == "" {
		d.Status = DecisionTriggered
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO strategy_decisions (id, model_id, strategy_name, strategy_type, signal,
			symbol, quantity, leverage, price, stop_price, justification, status, created_at,
			trade_id, error_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ModelID, d.StrategyName, string(d.StrategyType), string(d.Signal), d.Symbol,
		d.Quantity, d.Leverage, d.Price, d.StopPrice, d.Justification, string(d.Status),
		d.CreatedAt, d.TradeID, d.ErrorReason)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "insert decision", err)
	}
	return d, nil
}

func scanDecision(row interface{ Scan(...any) error }) (*StrategyDecision, error) {
	d := &StrategyDecision{}
	var st, sig, status string
	if err := row.Scan(&d.ID, &d.ModelID, &d.StrategyName, &st, &sig, &d.Symbol, &d.Quantity,
		&d.Leverage, &d.Price, &d.StopPrice, &d.Justification, &status, &d.CreatedAt,
		&d.TradeID, &d.ErrorReason); err != nil {
		return nil, err
	}
	d.StrategyType, d.Signal, d.Status = StrategyType(st), Signal(sig), DecisionStatus(status)
	return d, nil
}

const decisionColumns = `
	id, model_id, strategy_name, strategy_type, signal, symbol, quantity, leverage, price,
	stop_price, justification, status, created_at, trade_id, error_reason`

// GetDecision fetches a decision by ID.
func (s *Store) GetDecision(ctx context.Context, id string) (*StrategyDecision, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+decisionColumns+` FROM strategy_decisions WHERE id = ?`, id)
	d, err := scanDecision(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("strategy_decision", id)
		}
		return nil, apperr.Wrap(apperr.Internal, "scan decision", err)
	}
	return d, nil
}

// ListDecisions returns a model's decisions, most recent first.
func (s *Store) ListDecisions(ctx context.Context, modelID string, limit int) ([]*StrategyDecision, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + decisionColumns + ` FROM strategy_decisions WHERE model_id = ? ORDER BY created_at DESC`
	args := []any{modelID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list decisions", err)
	}
	defer rows.Close()

	var out []*StrategyDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan decision row", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// MarkDecisionExecuted transitions a decision TRIGGERED -> EXECUTED and links the resulting trade.
func (s *Store) MarkDecisionExecuted(ctx context.Context, id, tradeID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE strategy_decisions SET status = ?, trade_id = ?
		WHERE id = ? AND status = ?`,
		string(DecisionExecuted), tradeID, id, string(DecisionTriggered))
	if err != nil {
		return apperr.Wrap(apperr.Internal, "mark decision executed", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.New(apperr.PreconditionFail, "decision not in TRIGGERED status")
	}
	return nil
}

// MarkDecisionRejected transitions a decision TRIGGERED -> REJECTED with a reason.
func (s *Store) MarkDecisionRejected(ctx context.Context, id, reason string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE strategy_decisions SET status = ?, error_reason = ?
		WHERE id = ? AND status = ?`,
		string(DecisionRejected), reason, id, string(DecisionTriggered))
	if err != nil {
		return apperr.Wrap(apperr.Internal, "mark decision rejected", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.New(apperr.PreconditionFail, "decision not in TRIGGERED status")
	}
	return nil
}

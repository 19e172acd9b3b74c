package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"perpilot/internal/apperr"
)

// CreateStrategy inserts a new named decision program.
func (s *Store) CreateStrategy(ctx context.Context, st *Strategy) (*Strategy, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	st.CreatedAt = nowUTC8()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO strategies (id, name, type, program_text, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		st.ID, st.Name, string(st.Type), st.ProgramText, st.Metadata, st.CreatedAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "insert strategy", err)
	}
	return st, nil
}

func scanStrategy(row interface{ Scan(...any) error }) (*Strategy, error) {
	st := &Strategy{}
	var t string
	if err := row.Scan(&st.ID, &st.Name, &t, &st.ProgramText, &st.Metadata, &st.CreatedAt); err != nil {
		return nil, err
	}
	st.Type = StrategyType(t)
	return st, nil
}

// GetStrategy fetches a strategy by ID.
func (s *Store) GetStrategy(ctx context.Context, id string) (*Strategy, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, program_text, metadata, created_at FROM strategies WHERE id = ?`, id)
	st, err := scanStrategy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("strategy", id)
		}
		return nil, apperr.Wrap(apperr.Internal, "scan strategy", err)
	}
	return st, nil
}

// ListStrategies returns every strategy, optionally filtered by type.
func (s *Store) ListStrategies(ctx context.Context, typ StrategyType) ([]*Strategy, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT id, name, type, program_text, metadata, created_at FROM strategies`
	args := []any{}
	if typ != "" {
		query += ` WHERE type = ?`
		args = append(args, string(typ))
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list strategies", err)
	}
	defer rows.Close()

	var out []*Strategy
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan strategy row", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// UpdateStrategy overwrites a strategy's program text and metadata.
func (s *Store) UpdateStrategy(ctx context.Context, st *Strategy) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE strategies SET name = ?, program_text = ?, metadata = ? WHERE id = ?`,
		st.Name, st.ProgramText, st.Metadata, st.ID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "update strategy", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return notFound("strategy", st.ID)
	}
	return nil
}

// DeleteStrategy removes a strategy. Callers are responsible for detaching model_strategies
// rows first, or relying on ListModelStrategies to notice the dangling reference.
func (s *Store) DeleteStrategy(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM strategies WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "delete strategy", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return notFound("strategy", id)
	}
	return nil
}

// AttachModelStrategy links a strategy to a model at a given priority for buy or sell.
func (s *Store) AttachModelStrategy(ctx context.Context, ms *ModelStrategy) (*ModelStrategy, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if ms.ID == "" {
		ms.ID = uuid.NewString()
	}
	ms.CreatedAt = nowUTC8()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_strategies (id, model_id, strategy_id, type, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(model_id, strategy_id, type) DO UPDATE SET priority = excluded.priority`,
		ms.ID, ms.ModelID, ms.StrategyID, string(ms.Type), ms.Priority, ms.CreatedAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "attach model strategy", err)
	}
	return ms, nil
}

// ListModelStrategies returns the strategies bound to a model for a given type, ordered by
// priority descending then created_at ascending (spec §3), as consumed by the Strategy Executor.
func (s *Store) ListModelStrategies(ctx context.Context, modelID string, typ StrategyType) ([]*ModelStrategy, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model_id, strategy_id, type, priority, created_at
		FROM model_strategies WHERE model_id = ? AND type = ? ORDER BY priority DESC, created_at ASC`,
		modelID, string(typ))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list model strategies", err)
	}
	defer rows.Close()

	var out []*ModelStrategy
	for rows.Next() {
		ms := &ModelStrategy{}
		var t string
		if err := rows.Scan(&ms.ID, &ms.ModelID, &ms.StrategyID, &t, &ms.Priority, &ms.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan model strategy row", err)
		}
		ms.Type = StrategyType(t)
		out = append(out, ms)
	}
	return out, rows.Err()
}

// DetachModelStrategy unlinks a strategy from a model.
func (s *Store) DetachModelStrategy(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM model_strategies WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "detach model strategy", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return notFound("model_strategy", id)
	}
	return nil
}

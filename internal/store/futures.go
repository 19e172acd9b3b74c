package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"perpilot/internal/apperr"
)

// CreateFuture registers a tracked futures symbol.
func (s *Store) CreateFuture(ctx context.Context, f *Future) (*Future, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO futures (id, symbol, display_name, sort_order) VALUES (?, ?, ?, ?)`,
		f.ID, f.Symbol, f.DisplayName, f.SortOrder)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "insert future", err)
	}
	return f, nil
}

// ListFutures returns all tracked symbols ordered for display.
func (s *Store) ListFutures(ctx context.Context) ([]*Future, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, display_name, sort_order FROM futures ORDER BY sort_order, symbol`)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list futures", err)
	}
	defer rows.Close()

	var out []*Future
	for rows.Next() {
		f := &Future{}
		if err := rows.Scan(&f.ID, &f.Symbol, &f.DisplayName, &f.SortOrder); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan future row", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetFutureBySymbol fetches a tracked future by its exchange symbol.
func (s *Store) GetFutureBySymbol(ctx context.Context, symbol string) (*Future, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, display_name, sort_order FROM futures WHERE symbol = ?`, symbol)
	f := &Future{}
	if err := row.Scan(&f.ID, &f.Symbol, &f.DisplayName, &f.SortOrder); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("future", symbol)
		}
		return nil, apperr.Wrap(apperr.Internal, "scan future", err)
	}
	return f, nil
}

// DeleteFuture removes a tracked symbol.
func (s *Store) DeleteFuture(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM futures WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "delete future", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return notFound("future", id)
	}
	return nil
}

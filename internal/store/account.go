package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"perpilot/internal/apperr"
)

// UpsertAccountValue replaces the latest snapshot for (model, account alias).
func (s *Store) UpsertAccountValue(ctx context.Context, a *AccountValue) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if a.Timestamp.IsZero() {
		a.Timestamp = nowUTC8()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_values (model_id, account_alias, balance, available_balance,
			cross_wallet_balance, cross_pnl, cross_un_pnl, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(model_id, account_alias) DO UPDATE SET
			balance = excluded.balance,
			available_balance = excluded.available_balance,
			cross_wallet_balance = excluded.cross_wallet_balance,
			cross_pnl = excluded.cross_pnl,
			cross_un_pnl = excluded.cross_un_pnl,
			timestamp = excluded.timestamp`,
		a.ModelID, a.AccountAlias, a.Balance, a.AvailableBalance, a.CrossWalletBalance,
		a.CrossPnL, a.CrossUnPnL, a.Timestamp)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "upsert account value", err)
	}
	return nil
}

// GetAccountValue fetches the latest snapshot for (model, account alias).
func (s *Store) GetAccountValue(ctx context.Context, modelID, accountAlias string) (*AccountValue, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT model_id, account_alias, balance, available_balance, cross_wallet_balance,
			cross_pnl, cross_un_pnl, timestamp
		FROM account_values WHERE model_id = ? AND account_alias = ?`, modelID, accountAlias)
	a := &AccountValue{}
	if err := row.Scan(&a.ModelID, &a.AccountAlias, &a.Balance, &a.AvailableBalance,
		&a.CrossWalletBalance, &a.CrossPnL, &a.CrossUnPnL, &a.Timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "account value not found")
		}
		return nil, apperr.Wrap(apperr.Internal, "scan account value", err)
	}
	return a, nil
}

// RecordAccountValueHistory appends an immutable account snapshot, optionally linked to the
// trade that triggered it.
func (s *Store) RecordAccountValueHistory(ctx context.Context, h *AccountValueHistory) (*AccountValueHistory, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = nowUTC8()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_value_history (id, model_id, account_alias, balance,
			available_balance, cross_wallet_balance, cross_un_pnl, trade_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.ModelID, h.AccountAlias, h.Balance, h.AvailableBalance, h.CrossWalletBalance,
		h.CrossUnPnL, h.TradeID, h.Timestamp)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "insert account value history", err)
	}
	return h, nil
}

// UpsertAccountValuesDaily writes the one row for (model, today's UTC+8 trading day),
// overwriting any prior snapshot taken earlier the same day.
func (s *Store) UpsertAccountValuesDaily(ctx context.Context, modelID string, balance, available float64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	day := tradingDayUTC8(nowUTC8())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_values_daily (id, model_id, balance, available_balance, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(model_id, created_at) DO UPDATE SET
			balance = excluded.balance, available_balance = excluded.available_balance`,
		uuid.NewString(), modelID, balance, available, day)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "upsert daily account value", err)
	}
	return nil
}

// ListAccountValuesDaily returns a model's daily account snapshots, oldest first, the series
// backing equity-curve reporting.
func (s *Store) ListAccountValuesDaily(ctx context.Context, modelID string) ([]*AccountValuesDaily, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model_id, balance, available_balance, created_at
		FROM account_values_daily WHERE model_id = ? ORDER BY created_at ASC`, modelID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list daily account values", err)
	}
	defer rows.Close()

	var out []*AccountValuesDaily
	for rows.Next() {
		d := &AccountValuesDaily{}
		if err := rows.Scan(&d.ID, &d.ModelID, &d.Balance, &d.AvailableBalance, &d.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan daily account value row", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"perpilot/internal/apperr"
)

// CreateModel inserts a new trading model.
func (s *Store) CreateModel(ctx context.Context, m *Model) (*Model, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := nowUTC8()
	m.CreatedAt, m.UpdatedAt = now, now

	if m.SymbolSource == "" {
		m.SymbolSource = SymbolSourceLeaderboard
	}
	if m.CandidateTopN == 0 {
		m.CandidateTopN = 10
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO models (
			id, display_name, provider_id, provider_model_name, initial_capital, leverage,
			max_positions, api_credentials, auto_buy_enabled, auto_sell_enabled,
			auto_close_percent, base_volume_filter, batch_size, batch_interval_sec,
			batch_group_size, prompt_template, symbol_source, candidate_top_n, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.DisplayName, m.ProviderID, m.ProviderModelName, m.InitialCapital, m.Leverage,
		m.MaxPositions, m.APICredentials, m.AutoBuyEnabled, m.AutoSellEnabled,
		m.AutoClosePercent, m.BaseVolumeFilter, m.BatchSize, m.BatchIntervalSec,
		m.BatchGroupSize, m.PromptTemplate, m.SymbolSource, m.CandidateTopN, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "insert model", err)
	}
	return m, nil
}

func scanModel(row interface{ Scan(...any) error }) (*Model, error) {
	m := &Model{}
	if err := row.Scan(
		&m.ID, &m.DisplayName, &m.ProviderID, &m.ProviderModelName, &m.InitialCapital, &m.Leverage,
		&m.MaxPositions, &m.APICredentials, &m.AutoBuyEnabled, &m.AutoSellEnabled,
		&m.AutoClosePercent, &m.BaseVolumeFilter, &m.BatchSize, &m.BatchIntervalSec,
		&m.BatchGroupSize, &m.PromptTemplate, &m.SymbolSource, &m.CandidateTopN, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return m, nil
}

const modelColumns = `
	id, display_name, provider_id, provider_model_name, initial_capital, leverage,
	max_positions, api_credentials, auto_buy_enabled, auto_sell_enabled,
	auto_close_percent, base_volume_filter, batch_size, batch_interval_sec,
	batch_group_size, prompt_template, symbol_source, candidate_top_n, created_at, updated_at`

// GetModel fetches a model by ID.
func (s *Store) GetModel(ctx context.Context, id string) (*Model, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM models WHERE id = ?`, id)
	m, err := scanModel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("model", id)
		}
		return nil, apperr.Wrap(apperr.Internal, "scan model", err)
	}
	return m, nil
}

// ListModels returns every configured model.
func (s *Store) ListModels(ctx context.Context) ([]*Model, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT `+modelColumns+` FROM models ORDER BY created_at`)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list models", err)
	}
	defer rows.Close()

	var out []*Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan model row", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListEnabledModels returns models with auto_buy_enabled or auto_sell_enabled set, the
// working set the Model Orchestrator schedules workers for.
func (s *Store) ListEnabledModels(ctx context.Context) ([]*Model, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+modelColumns+` FROM models WHERE auto_buy_enabled = 1 OR auto_sell_enabled = 1
		ORDER BY created_at`)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list enabled models", err)
	}
	defer rows.Close()

	var out []*Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan enabled model row", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateModel overwrites the mutable fields of a model in place.
func (s *Store) UpdateModel(ctx context.Context, m *Model) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	m.UpdatedAt = nowUTC8()
	res, err := s.db.ExecContext(ctx, `
		UPDATE models SET
			display_name = ?, provider_id = ?, provider_model_name = ?, initial_capital = ?,
			leverage = ?, max_positions = ?, api_credentials = ?, auto_buy_enabled = ?,
			auto_sell_enabled = ?, auto_close_percent = ?, base_volume_filter = ?,
			batch_size = ?, batch_interval_sec = ?, batch_group_size = ?, prompt_template = ?,
			symbol_source = ?, candidate_top_n = ?, updated_at = ?
		WHERE id = ?`,
		m.DisplayName, m.ProviderID, m.ProviderModelName, m.InitialCapital, m.Leverage,
		m.MaxPositions, m.APICredentials, m.AutoBuyEnabled, m.AutoSellEnabled,
		m.AutoClosePercent, m.BaseVolumeFilter, m.BatchSize, m.BatchIntervalSec,
		m.BatchGroupSize, m.PromptTemplate, m.SymbolSource, m.CandidateTopN, m.UpdatedAt, m.ID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "update model", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return notFound("model", m.ID)
	}
	return nil
}

// SetModelEnabled flips the auto_buy_enabled/auto_sell_enabled actuation switches.
func (s *Store) SetModelEnabled(ctx context.Context, id string, autoBuy, autoSell bool) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE models SET auto_buy_enabled = ?, auto_sell_enabled = ?, updated_at = ?
		WHERE id = ?`, autoBuy, autoSell, nowUTC8(), id)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "set model enabled", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return notFound("model", id)
	}
	return nil
}

// DeleteModel removes a model and cascades to every row that references it, as a single
// transaction (spec §3's cascading delete requirement).
func (s *Store) DeleteModel(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "begin delete model tx", err)
	}

	// Order follows spec §4.9's cascade list verbatim: algo orders, strategy decisions, trades,
	// binance trade logs, conversations, account value history, account values, portfolios,
	// model prompts, model strategies, then the model. account_values_daily isn't named there
	// but is equally model-owned, so it's swept alongside model_strategies.
	cascadeTables := []string{
		"algo_orders", "strategy_decisions", "trades", "binance_trade_logs", "conversations",
		"account_value_history", "account_values", "portfolios", "model_prompts",
		"account_values_daily", "model_strategies",
	}
	for _, table := range cascadeTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE model_id = ?`, id); err != nil {
			return rollback(tx, s.log, apperr.Wrap(apperr.Internal, "cascade delete "+table, err))
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM models WHERE id = ?`, id)
	if err != nil {
		return rollback(tx, s.log, apperr.Wrap(apperr.Internal, "delete model", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return rollback(tx, s.log, apperr.Wrap(apperr.Internal, "rows affected", err))
	}
	if n == 0 {
		return rollback(tx, s.log, notFound("model", id))
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.Internal, "commit delete model tx", err)
	}
	return nil
}

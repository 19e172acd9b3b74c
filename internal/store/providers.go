package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"perpilot/internal/apperr"
)

// CreateProvider inserts a new provider, generating an ID if one is not supplied.
func (s *Store) CreateProvider(ctx context.Context, p *Provider) (*Provider, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = nowUTC8()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO providers (id, display_name, provider_type, base_url, api_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.DisplayName, string(p.ProviderType), p.BaseURL, p.APIKey, p.CreatedAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "insert provider", err)
	}
	return p, nil
}

// GetProvider fetches a provider by ID.
func (s *Store) GetProvider(ctx context.Context, id string) (*Provider, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, provider_type, base_url, api_key, created_at
		FROM providers WHERE id = ?`, id)
	p := &Provider{}
	var pt string
	if err := row.Scan(&p.ID, &p.DisplayName, &pt, &p.BaseURL, &p.APIKey, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("provider", id)
		}
		return nil, apperr.Wrap(apperr.Internal, "scan provider", err)
	}
	p.ProviderType = ProviderType(pt)
	return p, nil
}

// ListProviders returns all configured providers.
func (s *Store) ListProviders(ctx context.Context) ([]*Provider, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, provider_type, base_url, api_key, created_at
		FROM providers ORDER BY created_at`)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list providers", err)
	}
	defer rows.Close()

	var out []*Provider
	for rows.Next() {
		p := &Provider{}
		var pt string
		if err := rows.Scan(&p.ID, &p.DisplayName, &pt, &p.BaseURL, &p.APIKey, &p.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan provider row", err)
		}
		p.ProviderType = ProviderType(pt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProvider removes a provider. Callers must ensure no model still references it.
func (s *Store) DeleteProvider(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM providers WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "delete provider", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return notFound("provider", id)
	}
	return nil
}

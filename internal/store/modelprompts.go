package store

import (
	"context"

	"github.com/google/uuid"

	"perpilot/internal/apperr"
)

// RecordModelPrompt appends a rendered-prompt audit record. ModelPrompts are immutable once
// written, matching Conversation's append-only shape.
func (s *Store) RecordModelPrompt(ctx context.Context, p *ModelPrompt) (*ModelPrompt, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = nowUTC8()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_prompts (id, model_id, type, prompt_text, response_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.ModelID, p.Type, p.PromptText, p.ResponseText, p.CreatedAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "insert model prompt", err)
	}
	return p, nil
}

// ListModelPrompts returns a model's prompt history, most recent first.
func (s *Store) ListModelPrompts(ctx context.Context, modelID string, limit int) ([]*ModelPrompt, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, model_id, type, prompt_text, response_text, created_at
		FROM model_prompts WHERE model_id = ? ORDER BY created_at DESC`
	args := []any{modelID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list model prompts", err)
	}
	defer rows.Close()

	var out []*ModelPrompt
	for rows.Next() {
		p := &ModelPrompt{}
		if err := rows.Scan(&p.ID, &p.ModelID, &p.Type, &p.PromptText, &p.ResponseText, &p.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan model prompt row", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

package store

import (
	"context"

	"github.com/google/uuid"

	"perpilot/internal/apperr"
)

// RecordConversation appends an LLM call record. Conversations are immutable once written.
func (s *Store) RecordConversation(ctx context.Context, c *Conversation) (*Conversation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = nowUTC8()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, model_id, timestamp, user_prompt, ai_response, cot_trace)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.ModelID, c.Timestamp, c.UserPrompt, c.AIResponse, c.CoTTrace)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "insert conversation", err)
	}
	return c, nil
}

// ListConversations returns a model's conversation log, most recent first.
func (s *Store) ListConversations(ctx context.Context, modelID string, limit int) ([]*Conversation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, model_id, timestamp, user_prompt, ai_response, cot_trace
		FROM conversations WHERE model_id = ? ORDER BY timestamp DESC`
	args := []any{modelID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list conversations", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		c := &Conversation{}
		if err := rows.Scan(&c.ID, &c.ModelID, &c.Timestamp, &c.UserPrompt, &c.AIResponse, &c.CoTTrace); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan conversation row", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Copyright (c) 2026 Skywalkers Paragliding
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mrtandempilot/skywalkers-hub/internal/models"
)

// ConversationStore provides append-only storage for chat threads.
type ConversationStore struct {
	pool *pgxpool.Pool
}

// NewConversationStore creates a conversation store backed by the given pool.
func NewConversationStore(ctx context.Context, pool *pgxpool.Pool) (*ConversationStore, error) {
	s := &ConversationStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure conversation schema: %w", err)
	}
	slog.Info("conversation store initialised")
	return s, nil
}

func (s *ConversationStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS conversation_messages (
			id             BIGSERIAL PRIMARY KEY,
			session_id     TEXT NOT NULL,
			role           TEXT NOT NULL,
			text           TEXT NOT NULL,
			media_url      TEXT DEFAULT '',
			media_type     TEXT DEFAULT '',
			customer_email TEXT DEFAULT '',
			customer_name  TEXT DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_conv_session ON conversation_messages(session_id, created_at);
	`)
	return err
}

// Append adds a message to a session thread. Rows are never updated or
// deleted; sessions are an aggregation over session_id.
func (s *ConversationStore) Append(ctx context.Context, m *models.ConversationMessage) (*models.ConversationMessage, error) {
	if m.Role != "user" && m.Role != "bot" {
		return nil, fmt.Errorf("invalid conversation role %q", m.Role)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO conversation_messages
			(session_id, role, text, media_url, media_type, customer_email, customer_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, m.SessionID, m.Role, m.Text, m.MediaURL, m.MediaType, m.CustomerEmail, m.CustomerName)

	stored := *m
	if err := row.Scan(&stored.ID, &stored.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert conversation message: %w", err)
	}
	return &stored, nil
}

// ListBySession returns all messages of one thread in send order.
func (s *ConversationStore) ListBySession(ctx context.Context, sessionID string) ([]models.ConversationMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, role, text, media_url, media_type,
		       customer_email, customer_name, created_at
		FROM conversation_messages
		WHERE session_id = $1
		ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.ConversationMessage
	for rows.Next() {
		var m models.ConversationMessage
		if err := rows.Scan(
			&m.ID, &m.SessionID, &m.Role, &m.Text, &m.MediaURL, &m.MediaType,
			&m.CustomerEmail, &m.CustomerName, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ListSessions returns recent session summaries, most recently active first.
func (s *ConversationStore) ListSessions(ctx context.Context, limit int) ([]models.ConversationSession, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id,
		       (ARRAY_AGG(text ORDER BY created_at DESC, id DESC))[1] AS last_message,
		       COUNT(*) AS message_count,
		       COALESCE(MAX(NULLIF(customer_name, '')), '') AS visitor_name,
		       COALESCE(MAX(NULLIF(customer_email, '')), '') AS visitor_email,
		       MAX(created_at) AS updated_at
		FROM conversation_messages
		GROUP BY session_id
		ORDER BY MAX(created_at) DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.ConversationSession
	for rows.Next() {
		var sess models.ConversationSession
		var updatedAt time.Time
		if err := rows.Scan(
			&sess.SessionID, &sess.LastMessage, &sess.MessageCount,
			&sess.VisitorName, &sess.VisitorEmail, &updatedAt,
		); err != nil {
			return nil, err
		}
		sess.UpdatedAt = updatedAt
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

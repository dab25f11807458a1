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

// Package store provides the Postgres-backed persistence gateway for
// messages, rules, conversations, and the CRM records.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mrtandempilot/skywalkers-hub/internal/models"
)

// EmailStore provides idempotent storage for canonical inbound emails.
type EmailStore struct {
	pool *pgxpool.Pool
}

// NewEmailStore creates an email store backed by the given Postgres pool.
// It ensures the incoming_emails table exists on creation.
func NewEmailStore(ctx context.Context, pool *pgxpool.Pool) (*EmailStore, error) {
	s := &EmailStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure incoming_emails schema: %w", err)
	}
	slog.Info("email store initialised")
	return s, nil
}

func (s *EmailStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS incoming_emails (
			id            BIGSERIAL PRIMARY KEY,
			message_id    TEXT NOT NULL UNIQUE,
			from_email    TEXT NOT NULL,
			from_name     TEXT DEFAULT '',
			to_email      TEXT NOT NULL,
			subject       TEXT NOT NULL,
			plain_text    TEXT DEFAULT '',
			html_content  TEXT DEFAULT '',
			attachments   JSONB NOT NULL DEFAULT '[]',
			provider      TEXT NOT NULL,
			priority      TEXT NOT NULL DEFAULT 'normal',
			received_at   TIMESTAMPTZ NOT NULL,
			is_read       BOOLEAN NOT NULL DEFAULT FALSE,
			is_archived   BOOLEAN NOT NULL DEFAULT FALSE,
			is_spam       BOOLEAN NOT NULL DEFAULT FALSE,
			auto_replied  BOOLEAN NOT NULL DEFAULT FALSE,
			forwarded_to  TEXT[],
			forwarded_at  TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_emails_received ON incoming_emails(received_at DESC);
		CREATE INDEX IF NOT EXISTS idx_emails_archived ON incoming_emails(is_archived);
	`)
	return err
}

// StoreIncoming persists a canonical email record keyed by provider message id.
// If a row for the message id already exists, the existing row is returned with
// alreadyProcessed=true and nothing is inserted.
//
// The lookup and insert are not wrapped in a transaction; concurrent duplicate
// deliveries race, but the UNIQUE constraint on message_id makes the loser fail
// rather than double-insert.
func (s *EmailStore) StoreIncoming(ctx context.Context, rec *models.IncomingEmail) (*models.IncomingEmail, bool, error) {
	existing, err := s.GetByMessageID(ctx, rec.MessageID)
	if err != nil {
		return nil, false, fmt.Errorf("dedupe lookup: %w", err)
	}
	if existing != nil {
		return existing, true, nil
	}

	attachments, err := json.Marshal(rec.Attachments)
	if err != nil {
		return nil, false, fmt.Errorf("marshal attachments: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO incoming_emails
			(message_id, from_email, from_name, to_email, subject,
			 plain_text, html_content, attachments, provider, priority, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, rec.MessageID, rec.FromEmail, rec.FromName, rec.ToEmail, rec.Subject,
		rec.PlainText, rec.HTMLContent, attachments, rec.Provider, rec.Priority, rec.ReceivedAt)

	stored := *rec
	if err := row.Scan(&stored.ID); err != nil {
		return nil, false, fmt.Errorf("insert incoming email: %w", err)
	}
	return &stored, false, nil
}

const emailColumns = `
	id, message_id, from_email, from_name, to_email, subject,
	plain_text, html_content, attachments, provider, priority, received_at,
	is_read, is_archived, is_spam, auto_replied, forwarded_to, forwarded_at`

// GetByMessageID retrieves an email by its provider message id, or nil.
func (s *EmailStore) GetByMessageID(ctx context.Context, messageID string) (*models.IncomingEmail, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+emailColumns+` FROM incoming_emails WHERE message_id = $1`, messageID)
	return scanEmail(row)
}

// GetByID retrieves an email by its row id, or nil.
func (s *EmailStore) GetByID(ctx context.Context, id int64) (*models.IncomingEmail, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+emailColumns+` FROM incoming_emails WHERE id = $1`, id)
	return scanEmail(row)
}

// ListRecent returns the most recently received emails, newest first.
func (s *EmailStore) ListRecent(ctx context.Context, limit int) ([]models.IncomingEmail, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+emailColumns+` FROM incoming_emails ORDER BY received_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEmails(rows)
}

// SetFlag toggles one of the operator-mutable flags on an email.
// Valid flags: is_read, is_archived, is_spam, auto_replied.
func (s *EmailStore) SetFlag(ctx context.Context, id int64, flag string, value bool) error {
	switch flag {
	case "is_read", "is_archived", "is_spam", "auto_replied":
	default:
		return fmt.Errorf("unknown email flag %q", flag)
	}
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE incoming_emails SET %s = $1 WHERE id = $2`, flag), value, id)
	return err
}

// RecordForward persists the forwarding outcome: the destination list,
// the forwarded timestamp, and optionally the archive flag.
func (s *EmailStore) RecordForward(ctx context.Context, id int64, recipients []string, archive bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE incoming_emails
		SET forwarded_to = $1, forwarded_at = $2,
		    is_archived = (is_archived OR $3)
		WHERE id = $4
	`, recipients, time.Now().UTC(), archive, id)
	return err
}

// MarkAutoReplied flags an email as having received its one auto-reply.
func (s *EmailStore) MarkAutoReplied(ctx context.Context, id int64) error {
	return s.SetFlag(ctx, id, "auto_replied", true)
}

// scanEmail scans a single row into an IncomingEmail.
func scanEmail(row pgx.Row) (*models.IncomingEmail, error) {
	var e models.IncomingEmail
	var attachments []byte
	err := row.Scan(
		&e.ID, &e.MessageID, &e.FromEmail, &e.FromName, &e.ToEmail, &e.Subject,
		&e.PlainText, &e.HTMLContent, &attachments, &e.Provider, &e.Priority, &e.ReceivedAt,
		&e.IsRead, &e.IsArchived, &e.IsSpam, &e.AutoReplied, &e.ForwardedTo, &e.ForwardedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(attachments, &e.Attachments); err != nil {
		return nil, fmt.Errorf("unmarshal attachments: %w", err)
	}
	return &e, nil
}

// collectEmails scans multiple rows into a slice.
func collectEmails(rows pgx.Rows) ([]models.IncomingEmail, error) {
	var emails []models.IncomingEmail
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, *e)
	}
	return emails, rows.Err()
}

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
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mrtandempilot/skywalkers-hub/internal/models"
)

// RuleStore provides CRUD operations for forwarding rules.
type RuleStore struct {
	pool *pgxpool.Pool
}

// NewRuleStore creates a rule store backed by the given Postgres pool.
// It ensures the forwarding_rules table exists on creation.
func NewRuleStore(ctx context.Context, pool *pgxpool.Pool) (*RuleStore, error) {
	s := &RuleStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure forwarding_rules schema: %w", err)
	}
	slog.Info("rule store initialised")
	return s, nil
}

func (s *RuleStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS forwarding_rules (
			id                  BIGSERIAL PRIMARY KEY,
			name                TEXT NOT NULL,
			description         TEXT DEFAULT '',
			from_domains        TEXT[] NOT NULL DEFAULT '{}',
			to_emails           TEXT[] NOT NULL DEFAULT '{}',
			subject_pattern     TEXT DEFAULT '',
			min_priority        TEXT DEFAULT '',
			auto_archive        BOOLEAN NOT NULL DEFAULT FALSE,
			auto_reply_enabled  BOOLEAN NOT NULL DEFAULT FALSE,
			auto_reply_template TEXT DEFAULT '',
			is_active           BOOLEAN NOT NULL DEFAULT TRUE,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_rules_active ON forwarding_rules(is_active);
	`)
	return err
}

// validateRule enforces the rule invariants before a write.
func validateRule(r *models.ForwardingRule) error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.AutoReplyEnabled && strings.TrimSpace(r.AutoReplyTemplate) == "" {
		return fmt.Errorf("auto-reply rules require a template")
	}
	return nil
}

// Create inserts a new rule and returns it with its assigned id.
func (s *RuleStore) Create(ctx context.Context, r *models.ForwardingRule) (*models.ForwardingRule, error) {
	if err := validateRule(r); err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO forwarding_rules
			(name, description, from_domains, to_emails, subject_pattern,
			 min_priority, auto_archive, auto_reply_enabled, auto_reply_template, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`, r.Name, r.Description, normalizeDomains(r.FromDomains), r.ToEmails,
		r.Conditions.SubjectPattern, string(r.Conditions.MinPriority),
		r.AutoArchive, r.AutoReplyEnabled, r.AutoReplyTemplate, r.IsActive)

	created := *r
	if err := row.Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert rule: %w", err)
	}
	return &created, nil
}

// Update replaces an existing rule's fields.
func (s *RuleStore) Update(ctx context.Context, r *models.ForwardingRule) error {
	if err := validateRule(r); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE forwarding_rules
		SET name = $1, description = $2, from_domains = $3, to_emails = $4,
		    subject_pattern = $5, min_priority = $6, auto_archive = $7,
		    auto_reply_enabled = $8, auto_reply_template = $9, is_active = $10,
		    updated_at = NOW()
		WHERE id = $11
	`, r.Name, r.Description, normalizeDomains(r.FromDomains), r.ToEmails,
		r.Conditions.SubjectPattern, string(r.Conditions.MinPriority),
		r.AutoArchive, r.AutoReplyEnabled, r.AutoReplyTemplate, r.IsActive, r.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule %d not found", r.ID)
	}
	return nil
}

// Delete removes a rule.
func (s *RuleStore) Delete(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM forwarding_rules WHERE id = $1`, id)
	return err
}

const ruleColumns = `
	id, name, description, from_domains, to_emails, subject_pattern,
	min_priority, auto_archive, auto_reply_enabled, auto_reply_template,
	is_active, created_at, updated_at`

// Get retrieves a single rule by id, or nil.
func (s *RuleStore) Get(ctx context.Context, id int64) (*models.ForwardingRule, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM forwarding_rules WHERE id = $1`, id)
	return scanRule(row)
}

// List returns all rules in storage order.
func (s *RuleStore) List(ctx context.Context) ([]models.ForwardingRule, error) {
	return s.listWhere(ctx, ``)
}

// ListActive returns the active rules in storage order. The dispatcher
// evaluates them in exactly this order.
func (s *RuleStore) ListActive(ctx context.Context) ([]models.ForwardingRule, error) {
	return s.listWhere(ctx, `WHERE is_active`)
}

// ListAutoReply returns the active rules eligible to send an auto-reply.
func (s *RuleStore) ListAutoReply(ctx context.Context) ([]models.ForwardingRule, error) {
	return s.listWhere(ctx, `WHERE is_active AND auto_reply_enabled AND auto_reply_template <> ''`)
}

func (s *RuleStore) listWhere(ctx context.Context, where string) ([]models.ForwardingRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM forwarding_rules `+where+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.ForwardingRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// scanRule scans a single row into a ForwardingRule.
func scanRule(row pgx.Row) (*models.ForwardingRule, error) {
	var r models.ForwardingRule
	var minPriority string
	err := row.Scan(
		&r.ID, &r.Name, &r.Description, &r.FromDomains, &r.ToEmails,
		&r.Conditions.SubjectPattern, &minPriority, &r.AutoArchive,
		&r.AutoReplyEnabled, &r.AutoReplyTemplate, &r.IsActive,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Conditions.MinPriority = models.Priority(minPriority)
	return &r, nil
}

// normalizeDomains lower-cases and trims the source-domain list so the
// dispatcher's case-insensitive match is a plain comparison.
func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

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

// Package notify publishes dashboard notification events to Redis. The
// back-office UI drains the list on its refresh poll and raises toast /
// desktop notifications from the entries.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Event kinds the dashboard understands.
const (
	EventEmailReceived    = "email.received"
	EventEmailForwarded   = "email.forwarded"
	EventWhatsAppReceived = "whatsapp.received"
)

// Event is one dashboard notification entry.
type Event struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	RefID     string    `json:"ref_id,omitempty"` // message id or session id
	CreatedAt time.Time `json:"created_at"`
}

// Publisher pushes notification events onto a capped Redis list.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// maxQueueLen bounds the notification backlog; the dashboard only ever
// shows the newest entries.
const maxQueueLen = 500

// NewPublisher creates a publisher targeting the given Redis list.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// Publish appends an event to the notification list and trims the backlog.
func (p *Publisher) Publish(ctx context.Context, kind, title, body, refID string) error {
	event := Event{
		ID:        uuid.New().String(),
		Kind:      kind,
		Title:     title,
		Body:      body,
		RefID:     refID,
		CreatedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification event: %w", err)
	}

	pipe := p.rdb.Pipeline()
	pipe.LPush(ctx, p.queueName, payload)
	pipe.LTrim(ctx, p.queueName, 0, maxQueueLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published dashboard notification",
		"event_id", event.ID,
		"kind", kind,
		"queue", p.queueName,
	)
	return nil
}

// Recent returns the newest notification events, most recent first.
func (p *Publisher) Recent(ctx context.Context, limit int) ([]Event, error) {
	entries, err := p.rdb.LRange(ctx, p.queueName, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis LRANGE: %w", err)
	}

	events := make([]Event, 0, len(entries))
	for _, raw := range entries {
		var e Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			slog.Warn("skipping malformed notification entry", "error", err)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}

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

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mrtandempilot/skywalkers-hub/internal/adapter"
	"github.com/mrtandempilot/skywalkers-hub/internal/notify"
)

// handleIncomingEmail accepts an email webhook delivery, normalizes it,
// stores it idempotently, and runs the rule dispatcher.
func (s *Server) handleIncomingEmail(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	rec, err := adapter.NormalizeEmail(body)
	switch {
	case errors.Is(err, adapter.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, "Unsupported email webhook format")
		return
	case errors.Is(err, adapter.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "Missing required email fields")
		return
	case err != nil:
		slog.Error("email normalization failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	ctx := r.Context()

	// Fast-path retry suppression. Advisory: on Redis failure we fall
	// through to the database check. A filter hit alone is not proof of
	// storage — the id is marked seen before the insert, so a failed
	// store followed by a provider retry would hit the filter with no
	// row behind it. Only ack once the database confirms the row.
	if s.dedup != nil {
		if fresh, err := s.dedup.IsNew(ctx, rec.MessageID); err != nil {
			slog.Warn("dedup check failed, proceeding", "error", err)
		} else if !fresh {
			existing, err := s.emails.GetByMessageID(ctx, rec.MessageID)
			if err != nil {
				slog.Warn("dedup confirmation lookup failed, proceeding", "error", err)
			} else if existing != nil {
				slog.Info("duplicate webhook delivery suppressed", "message_id", rec.MessageID)
				writeJSON(w, http.StatusOK, map[string]any{"message": "Email already processed"})
				return
			}
		}
	}

	stored, already, err := s.emails.StoreIncoming(ctx, rec)
	if err != nil {
		slog.Error("store incoming email failed", "message_id", rec.MessageID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "Failed to store email",
			"details": err.Error(),
		})
		return
	}
	if already {
		writeJSON(w, http.StatusOK, map[string]any{"message": "Email already processed"})
		return
	}

	if s.notifier != nil {
		if err := s.notifier.Publish(ctx, notify.EventEmailReceived,
			"New email from "+stored.FromEmail, stored.Subject, stored.MessageID); err != nil {
			slog.Warn("notification publish failed", "error", err)
		}
	}

	// Rule failures never surface here; the dispatcher logs internally.
	s.dispatcher.Dispatch(ctx, stored)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"emailId": stored.ID,
		"message": "Email stored",
	})
}

// handleListEmails returns the 10 most recent stored emails.
func (s *Server) handleListEmails(w http.ResponseWriter, r *http.Request) {
	emails, err := s.emails.ListRecent(r.Context(), 10)
	if err != nil {
		slog.Error("list emails failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list emails")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"emails": emails})
}

// flagRequest is the dashboard's flag-mutation payload.
type flagRequest struct {
	Flag  string `json:"flag"`
	Value bool   `json:"value"`
}

// handleEmailFlags toggles an operator-mutable flag on a stored email.
func (s *Server) handleEmailFlags(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid email id")
		return
	}

	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.emails.SetFlag(r.Context(), id, req.Flag, req.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleListNotifications returns recent dashboard notification events.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	if s.notifier == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []any{}})
		return
	}
	events, err := s.notifier.Recent(r.Context(), 50)
	if err != nil {
		slog.Error("list notifications failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

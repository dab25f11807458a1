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
	"log/slog"
	"net/http"

	"github.com/mrtandempilot/skywalkers-hub/internal/auth"
	"github.com/mrtandempilot/skywalkers-hub/internal/models"
)

// requireAdmin runs the admin policy and writes the matching error
// response. Returns false when the request was rejected.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	err := s.admin.Authorize(r)
	switch {
	case err == nil:
		return true
	case errors.Is(err, auth.ErrNoToken), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrNotAdmin):
		writeError(w, http.StatusForbidden, "admin access required")
	default:
		slog.Error("authorization check failed", "error", err)
		writeError(w, http.StatusInternalServerError, "authorization check failed")
	}
	return false
}

// handleCreatePilot adds a pilot record. Admin only.
func (s *Server) handleCreatePilot(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	var p models.Pilot
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if p.Name == "" || p.Email == "" {
		writeError(w, http.StatusBadRequest, "pilot name and email are required")
		return
	}

	created, err := s.crm.CreatePilot(r.Context(), &p)
	if err != nil {
		slog.Error("create pilot failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create pilot")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleUpdatePilot replaces a pilot's fields. Admin only.
func (s *Server) handleUpdatePilot(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	var p models.Pilot
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if p.ID == 0 {
		writeError(w, http.StatusBadRequest, "pilot id is required")
		return
	}

	if err := s.crm.UpdatePilot(r.Context(), &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleListPilots returns the pilot roster. Public: the website team
// page reads this.
func (s *Server) handleListPilots(w http.ResponseWriter, r *http.Request) {
	pilots, err := s.crm.ListPilots(r.Context())
	if err != nil {
		slog.Error("list pilots failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list pilots")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pilots": pilots})
}

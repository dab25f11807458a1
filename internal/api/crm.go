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
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mrtandempilot/skywalkers-hub/internal/models"
)

// --- Conversations ---

// handleListSessions returns recent conversation threads.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.conversations.ListSessions(r.Context(), 50)
	if err != nil {
		slog.Error("list sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list conversations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleGetSession returns the full message thread of one session.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	messages, err := s.conversations.ListBySession(r.Context(), sessionID)
	if err != nil {
		slog.Error("list session messages failed", "session", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// --- Bookings ---

// handleCreateBooking stores a booking, upserts the customer record, and
// mirrors the flight into the operator calendar when configured.
func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var b models.Booking
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if b.CustomerName == "" || b.CustomerEmail == "" || b.FlightDate.IsZero() {
		writeError(w, http.StatusBadRequest, "customer name, email and flight date are required")
		return
	}

	ctx := r.Context()
	created, err := s.crm.CreateBooking(ctx, &b)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.crm.UpsertCustomer(ctx, &models.Customer{
		Name:  created.CustomerName,
		Email: created.CustomerEmail,
		Phone: created.CustomerPhone,
	}); err != nil {
		slog.Warn("customer upsert failed", "email", created.CustomerEmail, "error", err)
	}

	// Calendar sync is best-effort; the booking exists either way.
	if s.calendar != nil {
		if eventID, err := s.calendar.CreateBookingEvent(ctx, created); err != nil {
			slog.Warn("calendar sync failed", "booking", created.ID, "error", err)
		} else if eventID != "" {
			if err := s.crm.SetBookingCalendarEvent(ctx, created.ID, eventID); err != nil {
				slog.Warn("record calendar event failed", "booking", created.ID, "error", err)
			} else {
				created.CalendarEvent = eventID
			}
		}
	}

	writeJSON(w, http.StatusCreated, created)
}

// handleBookingStatus moves a booking between states.
func (s *Server) handleBookingStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.crm.UpdateBookingStatus(r.Context(), id, req.Status); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleListBookings returns upcoming bookings.
func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.crm.ListBookings(r.Context(), 100)
	if err != nil {
		slog.Error("list bookings failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list bookings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

// --- Customers ---

func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := s.crm.ListCustomers(r.Context())
	if err != nil {
		slog.Error("list customers failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list customers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

// --- Invoices ---

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	var inv models.Invoice
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if inv.Number == "" {
		writeError(w, http.StatusBadRequest, "invoice number is required")
		return
	}

	created, err := s.crm.CreateInvoice(r.Context(), &inv)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleInvoicePaid(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}

	if err := s.crm.MarkInvoicePaid(r.Context(), id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	invoices, err := s.crm.ListInvoices(r.Context(), 100)
	if err != nil {
		slog.Error("list invoices failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list invoices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

// --- Expenses ---

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	var e models.Expense
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if e.Category == "" {
		writeError(w, http.StatusBadRequest, "expense category is required")
		return
	}

	created, err := s.crm.CreateExpense(r.Context(), &e)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	expenses, err := s.crm.ListExpenses(r.Context(), 100)
	if err != nil {
		slog.Error("list expenses failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list expenses")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
}

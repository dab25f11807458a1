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

// Package api exposes the webhook and back-office REST endpoints.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mrtandempilot/skywalkers-hub/internal/chatbot"
	"github.com/mrtandempilot/skywalkers-hub/internal/models"
	"github.com/mrtandempilot/skywalkers-hub/internal/notify"
	"github.com/mrtandempilot/skywalkers-hub/internal/store"
	"github.com/mrtandempilot/skywalkers-hub/internal/whatsapp"
)

// EmailStore is the slice of the email store the handlers need.
type EmailStore interface {
	StoreIncoming(ctx context.Context, rec *models.IncomingEmail) (*models.IncomingEmail, bool, error)
	GetByMessageID(ctx context.Context, messageID string) (*models.IncomingEmail, error)
	ListRecent(ctx context.Context, limit int) ([]models.IncomingEmail, error)
	SetFlag(ctx context.Context, id int64, flag string, value bool) error
}

// Dispatcher runs the forwarding and auto-reply passes after storage.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *models.IncomingEmail)
}

// DedupFilter is the Redis retry-suppression filter. Advisory only.
type DedupFilter interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
}

// Notifier publishes dashboard notification events.
type Notifier interface {
	Publish(ctx context.Context, kind, title, body, refID string) error
	Recent(ctx context.Context, limit int) ([]notify.Event, error)
}

// WhatsAppGateway is the slice of the WhatsApp client the webhook needs.
type WhatsAppGateway interface {
	SendText(ctx context.Context, to, body string) whatsapp.SendResult
	MarkRead(ctx context.Context, messageID string) error
	ResolveMediaURL(ctx context.Context, mediaID string) (string, error)
}

// Authorizer guards the admin-only endpoints.
type Authorizer interface {
	Authorize(r *http.Request) error
}

// CalendarSync mirrors bookings into the operator's calendar.
type CalendarSync interface {
	CreateBookingEvent(ctx context.Context, b *models.Booking) (string, error)
}

// Server holds the handler dependencies.
type Server struct {
	emails        EmailStore
	rules         *store.RuleStore
	conversations *store.ConversationStore
	crm           *store.CRMStore
	dedup         DedupFilter
	dispatcher    Dispatcher
	notifier      Notifier
	wa            WhatsAppGateway
	bot           *chatbot.Client
	calendar      CalendarSync
	admin         Authorizer
	waVerifyToken string
}

// Config wires a Server.
type Config struct {
	Emails        EmailStore
	Rules         *store.RuleStore
	Conversations *store.ConversationStore
	CRM           *store.CRMStore
	Dedup         DedupFilter
	Dispatcher    Dispatcher
	Notifier      Notifier
	WhatsApp      WhatsAppGateway
	Chatbot       *chatbot.Client
	Calendar      CalendarSync
	Admin         Authorizer
	WAVerifyToken string
}

// New creates the API server.
func New(cfg Config) *Server {
	return &Server{
		emails:        cfg.Emails,
		rules:         cfg.Rules,
		conversations: cfg.Conversations,
		crm:           cfg.CRM,
		dedup:         cfg.Dedup,
		dispatcher:    cfg.Dispatcher,
		notifier:      cfg.Notifier,
		wa:            cfg.WhatsApp,
		bot:           cfg.Chatbot,
		calendar:      cfg.Calendar,
		admin:         cfg.Admin,
		waVerifyToken: cfg.WAVerifyToken,
	}
}

// Register mounts every route on the given mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/emails/incoming", s.handleIncomingEmail)
	mux.HandleFunc("GET /api/emails/incoming", s.handleListEmails)
	mux.HandleFunc("POST /api/emails/{id}/flags", s.handleEmailFlags)

	mux.HandleFunc("GET /api/whatsapp/webhook", s.handleWhatsAppVerify)
	mux.HandleFunc("POST /api/whatsapp/webhook", s.handleWhatsAppWebhook)
	mux.HandleFunc("POST /api/whatsapp/send", s.handleBotReply)

	mux.HandleFunc("POST /api/pilots", s.handleCreatePilot)
	mux.HandleFunc("PUT /api/pilots", s.handleUpdatePilot)
	mux.HandleFunc("GET /api/pilots", s.handleListPilots)

	mux.HandleFunc("GET /api/rules", s.handleListRules)
	mux.HandleFunc("POST /api/rules", s.handleCreateRule)
	mux.HandleFunc("PUT /api/rules/{id}", s.handleUpdateRule)
	mux.HandleFunc("DELETE /api/rules/{id}", s.handleDeleteRule)

	mux.HandleFunc("GET /api/conversations", s.handleListSessions)
	mux.HandleFunc("GET /api/conversations/{session}", s.handleGetSession)

	mux.HandleFunc("GET /api/bookings", s.handleListBookings)
	mux.HandleFunc("POST /api/bookings", s.handleCreateBooking)
	mux.HandleFunc("PUT /api/bookings/{id}/status", s.handleBookingStatus)
	mux.HandleFunc("GET /api/customers", s.handleListCustomers)
	mux.HandleFunc("GET /api/invoices", s.handleListInvoices)
	mux.HandleFunc("POST /api/invoices", s.handleCreateInvoice)
	mux.HandleFunc("POST /api/invoices/{id}/paid", s.handleInvoicePaid)
	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)

	mux.HandleFunc("GET /api/notifications", s.handleListNotifications)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response failed", "error", err)
	}
}

// writeError writes the free-text error shape the dashboard expects.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mrtandempilot/skywalkers-hub/internal/auth"
	"github.com/mrtandempilot/skywalkers-hub/internal/models"
	"github.com/mrtandempilot/skywalkers-hub/internal/notify"
	"github.com/mrtandempilot/skywalkers-hub/internal/whatsapp"
)

type fakeEmailStore struct {
	stored    []*models.IncomingEmail
	preloaded map[string]bool // message ids already present
	failNext  error           // returned by the next StoreIncoming, then cleared
}

func (f *fakeEmailStore) StoreIncoming(ctx context.Context, rec *models.IncomingEmail) (*models.IncomingEmail, bool, error) {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, false, err
	}
	if f.preloaded[rec.MessageID] {
		return rec, true, nil
	}
	stored := *rec
	stored.ID = int64(len(f.stored) + 1)
	f.stored = append(f.stored, &stored)
	return &stored, false, nil
}

func (f *fakeEmailStore) GetByMessageID(ctx context.Context, messageID string) (*models.IncomingEmail, error) {
	if f.preloaded[messageID] {
		return &models.IncomingEmail{MessageID: messageID}, nil
	}
	for _, e := range f.stored {
		if e.MessageID == messageID {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeEmailStore) ListRecent(ctx context.Context, limit int) ([]models.IncomingEmail, error) {
	var out []models.IncomingEmail
	for _, e := range f.stored {
		out = append(out, *e)
	}
	return out, nil
}

func (f *fakeEmailStore) SetFlag(ctx context.Context, id int64, flag string, value bool) error {
	return nil
}

type fakeDispatcher struct {
	dispatched []*models.IncomingEmail
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, msg *models.IncomingEmail) {
	f.dispatched = append(f.dispatched, msg)
}

// fakeDedup mirrors the SETNX behavior: the id is marked seen by the
// check itself, whatever happens afterwards.
type fakeDedup struct {
	seen map[string]bool
}

func (f *fakeDedup) IsNew(ctx context.Context, messageID string) (bool, error) {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[messageID] {
		return false, nil
	}
	f.seen[messageID] = true
	return true, nil
}

type fakeNotifier struct {
	events []notify.Event
}

func (f *fakeNotifier) Publish(ctx context.Context, kind, title, body, refID string) error {
	f.events = append(f.events, notify.Event{Kind: kind, Title: title, Body: body, RefID: refID})
	return nil
}

func (f *fakeNotifier) Recent(ctx context.Context, limit int) ([]notify.Event, error) {
	return f.events, nil
}

type fakeGateway struct{}

func (fakeGateway) SendText(ctx context.Context, to, body string) whatsapp.SendResult {
	return whatsapp.SendResult{Success: true, MessageID: "wamid.test"}
}
func (fakeGateway) MarkRead(ctx context.Context, messageID string) error { return nil }
func (fakeGateway) ResolveMediaURL(ctx context.Context, mediaID string) (string, error) {
	return "https://media.example/" + mediaID, nil
}

type denyAllAuthorizer struct{ err error }

func (a denyAllAuthorizer) Authorize(r *http.Request) error { return a.err }

func newTestServer(t *testing.T, emails *fakeEmailStore, admin Authorizer) (*Server, *fakeDispatcher, *fakeNotifier, *http.ServeMux) {
	t.Helper()
	if emails == nil {
		emails = &fakeEmailStore{}
	}
	dispatcher := &fakeDispatcher{}
	notifier := &fakeNotifier{}
	srv := New(Config{
		Emails:        emails,
		Dedup:         &fakeDedup{},
		Dispatcher:    dispatcher,
		Notifier:      notifier,
		WhatsApp:      fakeGateway{},
		Admin:         admin,
		WAVerifyToken: "hub-secret",
	})
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/emails/incoming", srv.handleIncomingEmail)
	mux.HandleFunc("GET /api/emails/incoming", srv.handleListEmails)
	mux.HandleFunc("POST /api/emails/{id}/flags", srv.handleEmailFlags)
	mux.HandleFunc("GET /api/whatsapp/webhook", srv.handleWhatsAppVerify)
	mux.HandleFunc("POST /api/whatsapp/webhook", srv.handleWhatsAppWebhook)
	mux.HandleFunc("POST /api/pilots", srv.handleCreatePilot)
	return srv, dispatcher, notifier, mux
}

// TestIncomingEmail_SendGrid covers the happy path through normalize,
// store, notify, and dispatch.
func TestIncomingEmail_SendGrid(t *testing.T) {
	emails := &fakeEmailStore{}
	_, dispatcher, notifier, mux := newTestServer(t, emails, nil)

	body := `{
		"sg_message_id": "sg-123",
		"from": "Alice <alice@example.com>",
		"to": "info@skywalkers.com",
		"subject": "Tandem flight",
		"text": "Do you fly on Sundays?"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/emails/incoming", strings.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["success"] != true {
		t.Errorf("success = %v", resp["success"])
	}
	if len(emails.stored) != 1 {
		t.Fatalf("stored %d emails", len(emails.stored))
	}
	if got := emails.stored[0].Provider; got != models.ProviderSendGrid {
		t.Errorf("provider = %q", got)
	}
	if len(dispatcher.dispatched) != 1 {
		t.Errorf("dispatched %d times", len(dispatcher.dispatched))
	}
	if len(notifier.events) != 1 || notifier.events[0].Kind != notify.EventEmailReceived {
		t.Errorf("events = %+v", notifier.events)
	}
}

// TestIncomingEmail_BadPayloads checks the two 400 variants.
func TestIncomingEmail_BadPayloads(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"unrecognized shape", `{"hello": "world"}`, "Unsupported email webhook format"},
		{"missing sender", `{"sg_message_id": "x", "subject": "hi"}`, "Missing required email fields"},
		{"not json", `not json at all`, "Unsupported email webhook format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, mux := newTestServer(t, nil, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/emails/incoming", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.wantMsg) {
				t.Errorf("body = %s, want %q", rr.Body.String(), tt.wantMsg)
			}
		})
	}
}

// TestIncomingEmail_Duplicate confirms a replayed message id acks 200
// without a second store or dispatch.
func TestIncomingEmail_Duplicate(t *testing.T) {
	emails := &fakeEmailStore{preloaded: map[string]bool{"sg-dup": true}}
	_, dispatcher, _, mux := newTestServer(t, emails, nil)

	body := `{"sg_message_id": "sg-dup", "from": "a@b.com", "to": "info@skywalkers.com", "subject": "again"}`
	req := httptest.NewRequest(http.MethodPost, "/api/emails/incoming", strings.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Email already processed") {
		t.Errorf("body = %s", rr.Body.String())
	}
	if len(emails.stored) != 0 {
		t.Errorf("stored %d emails on duplicate", len(emails.stored))
	}
	if len(dispatcher.dispatched) != 0 {
		t.Errorf("dispatched on duplicate")
	}
}

// TestIncomingEmail_RetryAfterStoreFailure covers the recovery path: the
// first delivery fails at the database after the dedup filter has marked
// the id seen; the provider's retry must still store the email instead of
// being answered "already processed" with nothing on disk.
func TestIncomingEmail_RetryAfterStoreFailure(t *testing.T) {
	emails := &fakeEmailStore{failNext: errors.New("db down")}
	_, _, _, mux := newTestServer(t, emails, nil)

	body := `{"sg_message_id": "sg-retry", "from": "a@b.com", "to": "info@skywalkers.com", "subject": "hello"}`

	req := httptest.NewRequest(http.MethodPost, "/api/emails/incoming", strings.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("first attempt status = %d, want 500", rr.Code)
	}
	if len(emails.stored) != 0 {
		t.Fatalf("stored %d emails after failed attempt", len(emails.stored))
	}

	req = httptest.NewRequest(http.MethodPost, "/api/emails/incoming", strings.NewReader(body))
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("retry status = %d, body %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "already processed") {
		t.Fatalf("retry answered already-processed with nothing stored: %s", rr.Body.String())
	}
	if len(emails.stored) != 1 {
		t.Errorf("stored %d emails after retry, want 1", len(emails.stored))
	}
}

// TestWhatsAppVerify covers the Cloud API handshake matrix.
func TestWhatsAppVerify(t *testing.T) {
	_, _, _, mux := newTestServer(t, nil, nil)

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantBody string
	}{
		{"valid", "hub.mode=subscribe&hub.verify_token=hub-secret&hub.challenge=12345", http.StatusOK, "12345"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=12345", http.StatusForbidden, ""},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=hub-secret", http.StatusForbidden, ""},
		{"missing params", "hub.challenge=12345", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/whatsapp/webhook?"+tt.query, nil)
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			if tt.wantBody != "" && rr.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rr.Body.String(), tt.wantBody)
			}
		})
	}
}

// TestWhatsAppWebhook_AlwaysAcks confirms the POST handler replies 200
// {"success":true} regardless of payload quality.
func TestWhatsAppWebhook_AlwaysAcks(t *testing.T) {
	_, _, _, mux := newTestServer(t, nil, nil)

	statusOnly := `{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.x","status":"delivered"}]}}]}]}`
	bodies := []string{
		statusOnly,
		`{"entry":[]}`,
		`garbage`,
		``,
	}

	for _, body := range bodies {
		req := httptest.NewRequest(http.MethodPost, "/api/whatsapp/webhook", strings.NewReader(body))
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("status = %d for body %q", rr.Code, body)
		}
		if !strings.Contains(rr.Body.String(), `"success":true`) {
			t.Errorf("body = %s for payload %q", rr.Body.String(), body)
		}
	}
}

// TestAdminGuard maps auth failures to 401 and 403.
func TestAdminGuard(t *testing.T) {
	tests := []struct {
		name     string
		authErr  error
		wantCode int
	}{
		{"no token", auth.ErrNoToken, http.StatusUnauthorized},
		{"invalid token", auth.ErrInvalidToken, http.StatusUnauthorized},
		{"not admin", auth.ErrNotAdmin, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, mux := newTestServer(t, nil, denyAllAuthorizer{err: tt.authErr})
			req := httptest.NewRequest(http.MethodPost, "/api/pilots",
				strings.NewReader(`{"name":"Maja","email":"maja@skywalkers.com"}`))
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantCode)
			}
		})
	}
}

// TestEmailFlags_InvalidID rejects a non-numeric path id.
func TestEmailFlags_InvalidID(t *testing.T) {
	_, _, _, mux := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/emails/abc/flags",
		strings.NewReader(`{"flag":"is_read","value":true}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rr.Code)
	}
}

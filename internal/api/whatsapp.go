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
	"io"
	"log/slog"
	"net/http"

	"github.com/mrtandempilot/skywalkers-hub/internal/adapter"
	"github.com/mrtandempilot/skywalkers-hub/internal/chatbot"
	"github.com/mrtandempilot/skywalkers-hub/internal/models"
	"github.com/mrtandempilot/skywalkers-hub/internal/notify"
)

// handleWhatsAppVerify answers the Cloud API verification handshake.
func (s *Server) handleWhatsAppVerify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "" || token == "" {
		writeError(w, http.StatusBadRequest, "missing verification parameters")
		return
	}
	if mode != "subscribe" || token != s.waVerifyToken {
		slog.Warn("whatsapp webhook verification failed", "mode", mode)
		writeError(w, http.StatusForbidden, "verification failed")
		return
	}

	slog.Info("whatsapp webhook verified")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// handleWhatsAppWebhook processes an inbound message delivery.
//
// This handler always replies 200 {"success":true}, whatever happens
// internally. A non-2xx answer makes the Cloud API retry-storm the
// endpoint; failures are logged instead.
func (s *Server) handleWhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	defer writeJSON(w, http.StatusOK, map[string]any{"success": true})

	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("read whatsapp payload failed", "error", err)
		return
	}

	in, err := adapter.ParseWhatsApp(body)
	if err != nil {
		slog.Warn("unparseable whatsapp payload", "error", err)
		return
	}
	if in == nil || in.StatusOnly {
		return
	}

	s.processWhatsApp(r.Context(), in)
}

// processWhatsApp stores the message, marks it read, and forwards text to
// the chatbot flow.
func (s *Server) processWhatsApp(ctx context.Context, in *adapter.InboundWhatsApp) {
	// Best-effort read receipt.
	if err := s.wa.MarkRead(ctx, in.MessageID); err != nil {
		slog.Warn("mark read failed", "message_id", in.MessageID, "error", err)
	}

	mediaURL := ""
	if in.MediaID != "" {
		url, err := s.wa.ResolveMediaURL(ctx, in.MediaID)
		if err != nil {
			slog.Warn("media resolution failed", "media_id", in.MediaID, "error", err)
		} else {
			mediaURL = url
		}
	}

	sessionID := "wa:" + in.From
	if _, err := s.conversations.Append(ctx, &models.ConversationMessage{
		SessionID:    sessionID,
		Role:         "user",
		Text:         in.DisplayText,
		MediaURL:     mediaURL,
		MediaType:    in.MediaType,
		CustomerName: in.SenderName,
	}); err != nil {
		slog.Error("store conversation message failed", "session", sessionID, "error", err)
	}

	if s.notifier != nil {
		title := "WhatsApp from " + in.From
		if in.SenderName != "" {
			title = "WhatsApp from " + in.SenderName
		}
		if err := s.notifier.Publish(ctx, notify.EventWhatsAppReceived, title, in.DisplayText, sessionID); err != nil {
			slog.Warn("notification publish failed", "error", err)
		}
	}

	// Only plain text goes to the chatbot flow; media is dashboard-only.
	if in.Type == "text" && s.bot != nil && s.bot.Enabled() {
		err := s.bot.Forward(ctx, chatbot.InboundText{
			SessionID:  sessionID,
			From:       in.From,
			SenderName: in.SenderName,
			Text:       in.DisplayText,
			Channel:    "whatsapp",
		})
		if err != nil {
			slog.Error("chatbot forward failed", "session", sessionID, "error", err)
		}
	}
}

// handleBotReply delivers an outbound bot message over WhatsApp and
// records it in the conversation thread. The n8n chatbot flow posts its
// replies back here.
func (s *Server) handleBotReply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To   string `json:"to"`
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.To == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "to and text are required")
		return
	}

	ctx := r.Context()
	res := s.wa.SendText(ctx, req.To, req.Text)
	if !res.Success {
		slog.Error("whatsapp send failed", "to", req.To, "error", res.Error)
		writeJSON(w, http.StatusBadGateway, res)
		return
	}

	if _, err := s.conversations.Append(ctx, &models.ConversationMessage{
		SessionID: "wa:" + req.To,
		Role:      "bot",
		Text:      req.Text,
	}); err != nil {
		slog.Error("store bot reply failed", "to", req.To, "error", err)
	}
	writeJSON(w, http.StatusOK, res)
}

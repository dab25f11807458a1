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

// Package chatbot forwards inbound WhatsApp text to the n8n chatbot
// webhook. Fire-and-forget: the bot replies asynchronously through the
// WhatsApp send endpoint, so there is nothing to wait for here.
package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client posts inbound messages to the configured chatbot webhook.
type Client struct {
	webhookURL string
	httpClient *http.Client
}

// NewClient creates a chatbot client. An empty webhookURL disables
// forwarding; Forward becomes a no-op.
func NewClient(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Enabled reports whether a webhook URL is configured.
func (c *Client) Enabled() bool { return c.webhookURL != "" }

// InboundText is the payload shape the n8n flow expects.
type InboundText struct {
	SessionID  string `json:"sessionId"`
	From       string `json:"from"`
	SenderName string `json:"senderName,omitempty"`
	Text       string `json:"text"`
	Channel    string `json:"channel"`
}

// Forward posts one inbound text to the chatbot webhook.
func (c *Client) Forward(ctx context.Context, msg InboundText) error {
	if !c.Enabled() {
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chatbot payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chatbot webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chatbot webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

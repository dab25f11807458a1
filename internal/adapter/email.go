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

// Package adapter normalizes provider-specific webhook payloads into the
// canonical message records the rest of the hub works with. Each provider
// shape is detected once at the boundary and mapped by its own function.
package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mrtandempilot/skywalkers-hub/internal/models"
)

// Sentinel errors the HTTP layer maps to 400 responses.
var (
	ErrUnsupportedFormat = errors.New("unsupported webhook format")
	ErrMissingFields     = errors.New("missing required email fields")
)

const noSubject = "(No subject)"

// sendgridPayload is the inbound parse webhook shape SendGrid posts.
type sendgridPayload struct {
	SGMessageID string               `json:"sg_message_id"`
	From        string               `json:"from"`
	FromName    string               `json:"from_name"`
	To          string               `json:"to"`
	Subject     string               `json:"subject"`
	Text        string               `json:"text"`
	HTML        string               `json:"html"`
	Attachments []sendgridAttachment `json:"attachment_info"`
}

type sendgridAttachment struct {
	Filename string `json:"filename"`
	Type     string `json:"type"`
	Size     int    `json:"size"`
}

// mailgunPayload is the Mailgun "forward to URL" shape.
type mailgunPayload struct {
	MessageID   string              `json:"message-id"`
	Sender      string              `json:"sender"`
	FromName    string              `json:"from"`
	Recipient   string              `json:"recipient"`
	Subject     string              `json:"subject"`
	BodyPlain   string              `json:"body-plain"`
	BodyHTML    string              `json:"body-html"`
	Attachments []mailgunAttachment `json:"attachments"`
}

type mailgunAttachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content-type"`
	Size        int    `json:"size"`
	URL         string `json:"url"`
}

// genericPayload is the shape our own site forms and n8n flows post.
type genericPayload struct {
	MessageID   string              `json:"messageId"`
	FromEmail   string              `json:"fromEmail"`
	FromName    string              `json:"fromName"`
	ToEmail     string              `json:"toEmail"`
	Subject     string              `json:"subject"`
	PlainText   string              `json:"plainText"`
	HTMLContent string              `json:"htmlContent"`
	Attachments []models.Attachment `json:"attachments"`
}

// DetectProvider inspects raw JSON and returns which provider shape it
// matches. The presence checks mirror the field names each provider is
// known to send.
func DetectProvider(raw []byte) (models.Provider, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	has := func(key string) bool {
		_, ok := probe[key]
		return ok
	}

	switch {
	case has("sg_message_id") || has("from"):
		return models.ProviderSendGrid, nil
	case has("message-id") || has("sender"):
		return models.ProviderMailgun, nil
	case has("messageId") || has("fromEmail"):
		return models.ProviderGeneric, nil
	}
	return "", ErrUnsupportedFormat
}

// NormalizeEmail detects the provider shape of raw and maps it into a
// canonical IncomingEmail. It fails with ErrUnsupportedFormat when no
// known shape matches and ErrMissingFields when the mapped record lacks
// a sender, recipient, or subject.
func NormalizeEmail(raw []byte) (*models.IncomingEmail, error) {
	provider, err := DetectProvider(raw)
	if err != nil {
		return nil, err
	}

	var rec *models.IncomingEmail
	switch provider {
	case models.ProviderSendGrid:
		rec, err = mapSendGrid(raw)
	case models.ProviderMailgun:
		rec, err = mapMailgun(raw)
	case models.ProviderGeneric:
		rec, err = mapGeneric(raw)
	}
	if err != nil {
		return nil, err
	}

	if rec.MessageID == "" {
		rec.MessageID = synthMessageID(provider)
	}
	// A missing subject gets the default, never ErrMissingFields.
	if rec.Subject == "" {
		rec.Subject = noSubject
	}
	if rec.FromEmail == "" || rec.ToEmail == "" {
		return nil, ErrMissingFields
	}

	rec.Provider = provider
	rec.ReceivedAt = time.Now().UTC()
	rec.Priority = DetectPriority(rec.Subject, rec.PlainText)
	if rec.Attachments == nil {
		rec.Attachments = []models.Attachment{}
	}
	return rec, nil
}

func mapSendGrid(raw []byte) (*models.IncomingEmail, error) {
	var p sendgridPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	attachments := make([]models.Attachment, 0, len(p.Attachments))
	for _, a := range p.Attachments {
		attachments = append(attachments, models.Attachment{
			Filename:    a.Filename,
			ContentType: a.Type,
			Size:        a.Size,
		})
	}

	return &models.IncomingEmail{
		MessageID:   p.SGMessageID,
		FromEmail:   addressPart(p.From),
		FromName:    firstNonEmptyStr(p.FromName, displayNamePart(p.From)),
		ToEmail:     addressPart(p.To),
		Subject:     p.Subject,
		PlainText:   p.Text,
		HTMLContent: p.HTML,
		Attachments: attachments,
	}, nil
}

func mapMailgun(raw []byte) (*models.IncomingEmail, error) {
	var p mailgunPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	attachments := make([]models.Attachment, 0, len(p.Attachments))
	for _, a := range p.Attachments {
		attachments = append(attachments, models.Attachment{
			Filename:    a.Name,
			ContentType: a.ContentType,
			Size:        a.Size,
			URL:         a.URL,
		})
	}

	return &models.IncomingEmail{
		MessageID:   strings.Trim(p.MessageID, "<>"),
		FromEmail:   addressPart(p.Sender),
		FromName:    displayNamePart(p.FromName),
		ToEmail:     addressPart(p.Recipient),
		Subject:     p.Subject,
		PlainText:   p.BodyPlain,
		HTMLContent: p.BodyHTML,
		Attachments: attachments,
	}, nil
}

func mapGeneric(raw []byte) (*models.IncomingEmail, error) {
	var p genericPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	return &models.IncomingEmail{
		MessageID:   p.MessageID,
		FromEmail:   p.FromEmail,
		FromName:    p.FromName,
		ToEmail:     p.ToEmail,
		Subject:     p.Subject,
		PlainText:   p.PlainText,
		HTMLContent: p.HTMLContent,
		Attachments: p.Attachments,
	}, nil
}

// synthMessageID builds a fallback id when the provider did not send one.
func synthMessageID(provider models.Provider) string {
	return fmt.Sprintf("%s-%d", provider, time.Now().UnixMilli())
}

// addressPart extracts the bare address from "Name <addr>" forms.
func addressPart(s string) string {
	s = strings.TrimSpace(s)
	if open := strings.LastIndex(s, "<"); open >= 0 {
		if end := strings.LastIndex(s, ">"); end > open {
			return strings.TrimSpace(s[open+1 : end])
		}
	}
	return s
}

// displayNamePart extracts the display name from "Name <addr>" forms,
// or "" when the string is a bare address.
func displayNamePart(s string) string {
	s = strings.TrimSpace(s)
	open := strings.LastIndex(s, "<")
	if open <= 0 {
		return ""
	}
	return strings.Trim(strings.TrimSpace(s[:open]), `"`)
}

// priorityKeywords maps trigger words to the priority they imply.
// Checked against the subject and body, most urgent first.
var priorityKeywords = []struct {
	words    []string
	priority models.Priority
}{
	{[]string{"urgent", "emergency", "asap", "immediately"}, models.PriorityUrgent},
	{[]string{"important", "priority", "booking today", "tomorrow"}, models.PriorityHigh},
}

// DetectPriority derives a message priority from subject and body keywords.
// Messages with no trigger words are normal priority.
func DetectPriority(subject, body string) models.Priority {
	haystack := strings.ToLower(subject + " " + body)
	for _, pk := range priorityKeywords {
		for _, w := range pk.words {
			if strings.Contains(haystack, w) {
				return pk.priority
			}
		}
	}
	return models.PriorityNormal
}

func firstNonEmptyStr(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

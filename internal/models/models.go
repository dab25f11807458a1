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

// Package models defines the data structures shared across the message hub.
package models

import (
	"strings"
	"time"
)

// Provider identifies the external platform a message arrived from.
type Provider string

const (
	ProviderSendGrid Provider = "sendgrid"
	ProviderMailgun  Provider = "mailgun"
	ProviderGeneric  Provider = "generic"
	ProviderWhatsApp Provider = "whatsapp"
)

// Priority ranks an inbound message for rule threshold checks.
// Ordinals matter: a rule's minimum priority passes when the message
// priority ordinal is greater than or equal to the rule's.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Ordinal returns the numeric rank of a priority (low=1 .. urgent=4).
// Unknown values rank as normal.
func (p Priority) Ordinal() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityNormal:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	}
	return 2
}

// Attachment describes a file attached to an inbound email.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	URL         string `json:"url,omitempty"`
}

// IncomingEmail is the canonical provider-independent record produced by
// the email channel adapter and persisted in the incoming_emails table.
type IncomingEmail struct {
	ID          int64        `json:"id"`
	MessageID   string       `json:"message_id"`
	FromEmail   string       `json:"from_email"`
	FromName    string       `json:"from_name,omitempty"`
	ToEmail     string       `json:"to_email"`
	Subject     string       `json:"subject"`
	PlainText   string       `json:"plain_text,omitempty"`
	HTMLContent string       `json:"html_content,omitempty"`
	Attachments []Attachment `json:"attachments"`
	Provider    Provider     `json:"provider"`
	Priority    Priority     `json:"priority"`
	ReceivedAt  time.Time    `json:"received_at"`

	// Mutable flags, toggled by dashboard operators or the rule dispatcher.
	IsRead      bool `json:"is_read"`
	IsArchived  bool `json:"is_archived"`
	IsSpam      bool `json:"is_spam"`
	AutoReplied bool `json:"auto_replied"`

	// Forwarding outcome, recorded after the dispatcher runs.
	ForwardedTo []string   `json:"forwarded_to,omitempty"`
	ForwardedAt *time.Time `json:"forwarded_at,omitempty"`
}

// SenderDomain returns the lower-cased domain part of the sender address,
// or "" if the address has no @.
func (e *IncomingEmail) SenderDomain() string {
	at := strings.LastIndex(e.FromEmail, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(e.FromEmail[at+1:])
}

// RuleConditions holds the optional per-rule match conditions.
type RuleConditions struct {
	SubjectPattern string   `json:"subject_pattern,omitempty"`
	MinPriority    Priority `json:"min_priority,omitempty"`
}

// ForwardingRule is an operator-configured condition+action record
// controlling automatic email redirection and auto-reply.
//
// Invariant: AutoReplyEnabled implies a non-empty AutoReplyTemplate.
type ForwardingRule struct {
	ID                int64          `json:"id"`
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	FromDomains       []string       `json:"from_domains"` // empty = wildcard
	ToEmails          []string       `json:"to_emails"`
	Conditions        RuleConditions `json:"conditions"`
	AutoArchive       bool           `json:"auto_archive"`
	AutoReplyEnabled  bool           `json:"auto_reply_enabled"`
	AutoReplyTemplate string         `json:"auto_reply_template,omitempty"`
	IsActive          bool           `json:"is_active"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// ConversationMessage is one chat/WhatsApp message inside a session thread.
// Rows are append-only; sessions are an aggregation over session_id.
type ConversationMessage struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	Role          string    `json:"role"` // "user" or "bot"
	Text          string    `json:"text"`
	MediaURL      string    `json:"media_url,omitempty"`
	MediaType     string    `json:"media_type,omitempty"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	CustomerName  string    `json:"customer_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ConversationSession summarises a thread for the dashboard list view.
type ConversationSession struct {
	SessionID    string    `json:"session_id"`
	LastMessage  string    `json:"last_message"`
	MessageCount int       `json:"message_count"`
	VisitorName  string    `json:"visitor_name,omitempty"`
	VisitorEmail string    `json:"visitor_email,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Booking statuses.
const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCompleted = "completed"
	BookingCancelled = "cancelled"
)

// Booking is a scheduled tandem flight reservation.
type Booking struct {
	ID            int64     `json:"id"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
	FlightDate    time.Time `json:"flight_date"`
	FlightType    string    `json:"flight_type"`
	Participants  int       `json:"participants"`
	PilotID       *int64    `json:"pilot_id,omitempty"`
	Amount        float64   `json:"amount"`
	Status        string    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	CalendarEvent string    `json:"calendar_event_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Customer is a CRM contact record.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Country   string    `json:"country,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Pilot is a staff record managed through the admin-only pilot endpoints.
type Pilot struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	LicenseNo  string    `json:"license_no,omitempty"`
	IsActive   bool      `json:"is_active"`
	PhotoURL   string    `json:"photo_url,omitempty"`
	Bio        string    `json:"bio,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Invoice statuses.
const (
	InvoiceDraft   = "draft"
	InvoiceSent    = "sent"
	InvoicePaid    = "paid"
	InvoiceOverdue = "overdue"
)

// Invoice is a billing record tied to a booking or customer.
type Invoice struct {
	ID         int64      `json:"id"`
	Number     string     `json:"number"`
	CustomerID *int64     `json:"customer_id,omitempty"`
	BookingID  *int64     `json:"booking_id,omitempty"`
	Amount     float64    `json:"amount"`
	Currency   string     `json:"currency"`
	Status     string     `json:"status"`
	IssuedAt   time.Time  `json:"issued_at"`
	DueAt      *time.Time `json:"due_at,omitempty"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Expense is an operating cost record.
type Expense struct {
	ID          int64     `json:"id"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	IncurredAt  time.Time `json:"incurred_at"`
	CreatedAt   time.Time `json:"created_at"`
}

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

// Package rules evaluates forwarding and auto-reply rules against inbound
// emails and triggers the outbound senders. The dispatcher never returns
// an error to the ingestion path: a rule-engine failure must not block
// message storage, so everything is caught and logged here.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jaytaylor/html2text"

	"github.com/mrtandempilot/skywalkers-hub/internal/mailer"
	"github.com/mrtandempilot/skywalkers-hub/internal/models"
	"github.com/mrtandempilot/skywalkers-hub/internal/notify"
)

// RuleSource supplies the rule sets the dispatcher evaluates.
// Implemented by store.RuleStore.
type RuleSource interface {
	ListActive(ctx context.Context) ([]models.ForwardingRule, error)
	ListAutoReply(ctx context.Context) ([]models.ForwardingRule, error)
}

// OutcomeRecorder persists dispatch outcomes on the stored email.
// Implemented by store.EmailStore.
type OutcomeRecorder interface {
	RecordForward(ctx context.Context, id int64, recipients []string, archive bool) error
	MarkAutoReplied(ctx context.Context, id int64) error
}

// Notifier publishes dashboard events for dispatch outcomes.
// Implemented by notify.Publisher; nil disables publishing.
type Notifier interface {
	Publish(ctx context.Context, kind, title, body, refID string) error
}

// Dispatcher runs the forwarding and auto-reply passes for one message.
type Dispatcher struct {
	rules    RuleSource
	emails   OutcomeRecorder
	sender   mailer.Sender
	notifier Notifier
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(rules RuleSource, emails OutcomeRecorder, sender mailer.Sender, notifier Notifier) *Dispatcher {
	return &Dispatcher{
		rules:    rules,
		emails:   emails,
		sender:   sender,
		notifier: notifier,
	}
}

// Dispatch runs both passes for a freshly stored message.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *models.IncomingEmail) {
	d.DispatchForwarding(ctx, msg)
	d.DispatchAutoReply(ctx, msg)
}

// DispatchForwarding evaluates every active rule in storage order and
// forwards the message to each matching rule's destinations. Destinations
// are attempted independently; one failure does not block the others.
func (d *Dispatcher) DispatchForwarding(ctx context.Context, msg *models.IncomingEmail) {
	ruleSet, err := d.rules.ListActive(ctx)
	if err != nil {
		slog.Error("forwarding dispatch: rule fetch failed", "error", err, "message_id", msg.MessageID)
		return
	}

	var forwarded []string
	archive := false

	for _, rule := range ruleSet {
		if !Matches(&rule, msg) {
			continue
		}

		subject := "Fwd: " + msg.Subject
		htmlBody, textBody := mailer.ForwardBody(msg)

		for _, dest := range rule.ToEmails {
			if err := d.sender.Send(dest, subject, htmlBody, textBody); err != nil {
				slog.Error("forward send failed",
					"rule", rule.Name,
					"destination", dest,
					"message_id", msg.MessageID,
					"error", err,
				)
				continue
			}
			forwarded = append(forwarded, dest)
		}

		if rule.AutoArchive {
			archive = true
		}

		slog.Info("forwarding rule matched",
			"rule", rule.Name,
			"message_id", msg.MessageID,
			"destinations", len(rule.ToEmails),
		)
	}

	if len(forwarded) == 0 && !archive {
		return
	}

	if err := d.emails.RecordForward(ctx, msg.ID, forwarded, archive); err != nil {
		slog.Error("record forward outcome failed", "message_id", msg.MessageID, "error", err)
		return
	}
	msg.ForwardedTo = forwarded
	if archive {
		msg.IsArchived = true
	}

	if d.notifier != nil && len(forwarded) > 0 {
		title := "Email forwarded to " + strings.Join(forwarded, ", ")
		if err := d.notifier.Publish(ctx, notify.EventEmailForwarded, title, msg.Subject, msg.MessageID); err != nil {
			slog.Warn("forward notification publish failed", "message_id", msg.MessageID, "error", err)
		}
	}
}

// DispatchAutoReply sends at most one auto-reply per message: the first
// active auto-reply rule whose domain check passes wins, and evaluation
// stops there.
func (d *Dispatcher) DispatchAutoReply(ctx context.Context, msg *models.IncomingEmail) {
	if msg.AutoReplied {
		return
	}

	ruleSet, err := d.rules.ListAutoReply(ctx)
	if err != nil {
		slog.Error("auto-reply dispatch: rule fetch failed", "error", err, "message_id", msg.MessageID)
		return
	}

	for _, rule := range ruleSet {
		if !domainMatches(&rule, msg) {
			continue
		}

		htmlBody, textBody := RenderTemplate(rule.AutoReplyTemplate, msg)
		subject := "Re: " + msg.Subject

		if err := d.sender.Send(msg.FromEmail, subject, htmlBody, textBody); err != nil {
			slog.Error("auto-reply send failed",
				"rule", rule.Name,
				"message_id", msg.MessageID,
				"error", err,
			)
			return
		}

		if err := d.emails.MarkAutoReplied(ctx, msg.ID); err != nil {
			slog.Error("mark auto-replied failed", "message_id", msg.MessageID, "error", err)
		}
		msg.AutoReplied = true

		slog.Info("auto-reply sent", "rule", rule.Name, "message_id", msg.MessageID)
		return
	}
}

// Matches reports whether a rule's full condition set passes for a message:
// domain list, optional subject regex, optional minimum priority.
func Matches(rule *models.ForwardingRule, msg *models.IncomingEmail) bool {
	if !domainMatches(rule, msg) {
		return false
	}

	if pattern := rule.Conditions.SubjectPattern; pattern != "" {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			slog.Warn("rule has invalid subject pattern, skipping",
				"rule", rule.Name,
				"pattern", pattern,
				"error", err,
			)
			return false
		}
		if !re.MatchString(msg.Subject) {
			return false
		}
	}

	if min := rule.Conditions.MinPriority; min != "" {
		if msg.Priority.Ordinal() < min.Ordinal() {
			return false
		}
	}

	return true
}

// domainMatches passes when the rule's domain list is empty (wildcard) or
// contains the sender's domain, case-insensitively.
func domainMatches(rule *models.ForwardingRule, msg *models.IncomingEmail) bool {
	if len(rule.FromDomains) == 0 {
		return true
	}
	sender := msg.SenderDomain()
	if sender == "" {
		return false
	}
	for _, d := range rule.FromDomains {
		if strings.EqualFold(d, sender) {
			return true
		}
	}
	return false
}

// templateVars builds the substitution set for auto-reply templates.
func templateVars(msg *models.IncomingEmail) map[string]string {
	senderName := msg.FromName
	if senderName == "" {
		senderName = msg.FromEmail
	}
	return map[string]string{
		"sender_name":      senderName,
		"original_subject": msg.Subject,
		"received_date":    msg.ReceivedAt.Format("January 2, 2006"),
	}
}

// RenderTemplate substitutes {{variable}} placeholders into the auto-reply
// template and returns both the HTML rendering and a tag-stripped plain
// text rendering.
func RenderTemplate(template string, msg *models.IncomingEmail) (htmlBody, textBody string) {
	htmlBody = template
	for name, value := range templateVars(msg) {
		htmlBody = strings.ReplaceAll(htmlBody, fmt.Sprintf("{{%s}}", name), value)
	}

	textBody, err := html2text.FromString(htmlBody, html2text.Options{TextOnly: true})
	if err != nil {
		slog.Warn("auto-reply plain-text rendering failed, using raw template", "error", err)
		textBody = htmlBody
	}
	return htmlBody, textBody
}

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

package rules

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mrtandempilot/skywalkers-hub/internal/models"
	"github.com/mrtandempilot/skywalkers-hub/internal/notify"
)

// fakeRules serves fixed rule sets.
type fakeRules struct {
	active    []models.ForwardingRule
	autoReply []models.ForwardingRule
	fetchErr  error
}

func (f *fakeRules) ListActive(ctx context.Context) ([]models.ForwardingRule, error) {
	return f.active, f.fetchErr
}

func (f *fakeRules) ListAutoReply(ctx context.Context) ([]models.ForwardingRule, error) {
	return f.autoReply, f.fetchErr
}

// fakeRecorder captures outcome writes.
type fakeRecorder struct {
	forwardedTo []string
	archived    bool
	autoReplied bool
}

func (f *fakeRecorder) RecordForward(ctx context.Context, id int64, recipients []string, archive bool) error {
	f.forwardedTo = recipients
	f.archived = archive
	return nil
}

func (f *fakeRecorder) MarkAutoReplied(ctx context.Context, id int64) error {
	f.autoReplied = true
	return nil
}

// fakeSender records sends and can fail specific destinations.
type fakeSender struct {
	sent    []string // "to|subject"
	failFor map[string]bool
}

func (f *fakeSender) Send(to, subject, htmlBody, textBody string) error {
	if f.failFor[to] {
		return fmt.Errorf("simulated send failure to %s", to)
	}
	f.sent = append(f.sent, to+"|"+subject)
	return nil
}

// fakeNotifier records published event kinds.
type fakeNotifier struct {
	kinds []string
}

func (f *fakeNotifier) Publish(ctx context.Context, kind, title, body, refID string) error {
	f.kinds = append(f.kinds, kind)
	return nil
}

func testMessage() *models.IncomingEmail {
	return &models.IncomingEmail{
		ID:         1,
		MessageID:  "msg-1",
		FromEmail:  "alice@example.com",
		FromName:   "Alice",
		ToEmail:    "info@skywalkers.com",
		Subject:    "Booking inquiry",
		PlainText:  "Can I book for two?",
		Priority:   models.PriorityNormal,
		ReceivedAt: time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC),
	}
}

// TestMatches_DomainWildcard verifies an empty domain list matches any sender.
func TestMatches_DomainWildcard(t *testing.T) {
	rule := models.ForwardingRule{FromDomains: []string{}}
	if !Matches(&rule, testMessage()) {
		t.Error("empty domain list should match every sender")
	}
}

// TestMatches_DomainList verifies the case-insensitive domain check.
func TestMatches_DomainList(t *testing.T) {
	tests := []struct {
		name    string
		domains []string
		from    string
		want    bool
	}{
		{"exact", []string{"example.com"}, "alice@example.com", true},
		{"case-insensitive list entry", []string{"EXAMPLE.COM"}, "alice@example.com", true},
		{"case-insensitive sender", []string{"example.com"}, "alice@EXAMPLE.com", true},
		{"not listed", []string{"other.org"}, "alice@example.com", false},
		{"no at sign", []string{"example.com"}, "not-an-address", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := models.ForwardingRule{FromDomains: tt.domains}
			msg := testMessage()
			msg.FromEmail = tt.from
			if got := Matches(&rule, msg); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestMatches_SubjectPattern verifies the case-insensitive regex condition.
func TestMatches_SubjectPattern(t *testing.T) {
	rule := models.ForwardingRule{
		Conditions: models.RuleConditions{SubjectPattern: "support|help"},
	}

	msg := testMessage()
	msg.Subject = "Need help please"
	if !Matches(&rule, msg) {
		t.Error("subject with 'help' should match support|help")
	}

	msg.Subject = "Invoice #123"
	if Matches(&rule, msg) {
		t.Error("subject without pattern words should not match")
	}

	msg.Subject = "SUPPORT request"
	if !Matches(&rule, msg) {
		t.Error("match should be case-insensitive")
	}
}

// TestMatches_InvalidPattern verifies rules with broken regexes are skipped.
func TestMatches_InvalidPattern(t *testing.T) {
	rule := models.ForwardingRule{
		Conditions: models.RuleConditions{SubjectPattern: "("},
	}
	if Matches(&rule, testMessage()) {
		t.Error("invalid pattern should fail the match")
	}
}

// TestMatches_MinPriority verifies the priority ordinal threshold.
func TestMatches_MinPriority(t *testing.T) {
	tests := []struct {
		msgPriority models.Priority
		minPriority models.Priority
		want        bool
	}{
		{models.PriorityLow, models.PriorityHigh, false},
		{models.PriorityNormal, models.PriorityNormal, true},
		{models.PriorityHigh, models.PriorityNormal, true},
		{models.PriorityUrgent, models.PriorityUrgent, true},
		{models.PriorityHigh, models.PriorityUrgent, false},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("%s>=%s", tt.msgPriority, tt.minPriority)
		t.Run(name, func(t *testing.T) {
			rule := models.ForwardingRule{
				Conditions: models.RuleConditions{MinPriority: tt.minPriority},
			}
			msg := testMessage()
			msg.Priority = tt.msgPriority
			if got := Matches(&rule, msg); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestDispatchForwarding_Scenario runs the wildcard-rule scenario: one
// forwarded copy, outcome recorded, message archived.
func TestDispatchForwarding_Scenario(t *testing.T) {
	rulesSrc := &fakeRules{active: []models.ForwardingRule{{
		Name:        "ops catch-all",
		FromDomains: []string{},
		ToEmails:    []string{"ops@co.com"},
		AutoArchive: true,
		IsActive:    true,
	}}}
	rec := &fakeRecorder{}
	sender := &fakeSender{}
	d := NewDispatcher(rulesSrc, rec, sender, nil)

	msg := testMessage()
	d.DispatchForwarding(context.Background(), msg)

	if len(sender.sent) != 1 || !strings.HasPrefix(sender.sent[0], "ops@co.com|Fwd: ") {
		t.Fatalf("sent = %v, want one forward to ops@co.com", sender.sent)
	}
	if len(rec.forwardedTo) != 1 || rec.forwardedTo[0] != "ops@co.com" {
		t.Errorf("forwardedTo = %v, want [ops@co.com]", rec.forwardedTo)
	}
	if !rec.archived {
		t.Error("auto_archive rule should archive the message")
	}
	if !msg.IsArchived {
		t.Error("in-memory message should reflect the archive flag")
	}
}

// TestDispatchForwarding_DestinationIsolation verifies one failing
// destination does not block the others.
func TestDispatchForwarding_DestinationIsolation(t *testing.T) {
	rulesSrc := &fakeRules{active: []models.ForwardingRule{{
		Name:     "multi",
		ToEmails: []string{"a@co.com", "b@co.com", "c@co.com"},
		IsActive: true,
	}}}
	rec := &fakeRecorder{}
	sender := &fakeSender{failFor: map[string]bool{"b@co.com": true}}
	d := NewDispatcher(rulesSrc, rec, sender, nil)

	d.DispatchForwarding(context.Background(), testMessage())

	if len(sender.sent) != 2 {
		t.Fatalf("sent = %v, want 2 successful sends", sender.sent)
	}
	if len(rec.forwardedTo) != 2 {
		t.Errorf("forwardedTo = %v, want the 2 successful destinations", rec.forwardedTo)
	}
}

// TestDispatchForwarding_NoMatch verifies nothing is recorded when no rule
// matches.
func TestDispatchForwarding_NoMatch(t *testing.T) {
	rulesSrc := &fakeRules{active: []models.ForwardingRule{{
		Name:        "other domain only",
		FromDomains: []string{"elsewhere.net"},
		ToEmails:    []string{"ops@co.com"},
		IsActive:    true,
	}}}
	rec := &fakeRecorder{}
	sender := &fakeSender{}
	d := NewDispatcher(rulesSrc, rec, sender, nil)

	d.DispatchForwarding(context.Background(), testMessage())

	if len(sender.sent) != 0 {
		t.Errorf("sent = %v, want none", sender.sent)
	}
	if rec.forwardedTo != nil {
		t.Errorf("forwardedTo = %v, want no outcome write", rec.forwardedTo)
	}
}

// TestDispatchForwarding_Notification verifies a successful forward
// publishes one forwarded event, and a no-match dispatch publishes none.
func TestDispatchForwarding_Notification(t *testing.T) {
	rulesSrc := &fakeRules{active: []models.ForwardingRule{{
		Name:     "ops catch-all",
		ToEmails: []string{"ops@co.com"},
		IsActive: true,
	}}}
	notifier := &fakeNotifier{}
	d := NewDispatcher(rulesSrc, &fakeRecorder{}, &fakeSender{}, notifier)

	d.DispatchForwarding(context.Background(), testMessage())

	if len(notifier.kinds) != 1 || notifier.kinds[0] != notify.EventEmailForwarded {
		t.Fatalf("published kinds = %v, want one %q", notifier.kinds, notify.EventEmailForwarded)
	}

	// A message matching nothing must not publish.
	rulesSrc.active[0].FromDomains = []string{"elsewhere.net"}
	notifier.kinds = nil
	d.DispatchForwarding(context.Background(), testMessage())
	if len(notifier.kinds) != 0 {
		t.Errorf("published kinds = %v, want none on no-match", notifier.kinds)
	}
}

// TestDispatchAutoReply_FirstMatchOnly verifies at most one auto-reply is
// sent even when several rules match.
func TestDispatchAutoReply_FirstMatchOnly(t *testing.T) {
	rulesSrc := &fakeRules{autoReply: []models.ForwardingRule{
		{
			Name:              "first",
			AutoReplyEnabled:  true,
			AutoReplyTemplate: "Thanks {{sender_name}}!",
			IsActive:          true,
		},
		{
			Name:              "second",
			AutoReplyEnabled:  true,
			AutoReplyTemplate: "Hello {{sender_name}}",
			IsActive:          true,
		},
	}}
	rec := &fakeRecorder{}
	sender := &fakeSender{}
	d := NewDispatcher(rulesSrc, rec, sender, nil)

	msg := testMessage()
	d.DispatchAutoReply(context.Background(), msg)

	if len(sender.sent) != 1 {
		t.Fatalf("sent = %v, want exactly one auto-reply", sender.sent)
	}
	if sender.sent[0] != "alice@example.com|Re: Booking inquiry" {
		t.Errorf("sent[0] = %q", sender.sent[0])
	}
	if !rec.autoReplied || !msg.AutoReplied {
		t.Error("message should be marked auto-replied")
	}

	// A second dispatch for the same message must not reply again.
	d.DispatchAutoReply(context.Background(), msg)
	if len(sender.sent) != 1 {
		t.Errorf("sent = %v, repeat dispatch must not reply twice", sender.sent)
	}
}

// TestDispatchAutoReply_DomainFiltered verifies the domain check applies to
// auto-reply rules.
func TestDispatchAutoReply_DomainFiltered(t *testing.T) {
	rulesSrc := &fakeRules{autoReply: []models.ForwardingRule{{
		Name:              "partner only",
		FromDomains:       []string{"partner.net"},
		AutoReplyEnabled:  true,
		AutoReplyTemplate: "Hi {{sender_name}}",
		IsActive:          true,
	}}}
	rec := &fakeRecorder{}
	sender := &fakeSender{}
	d := NewDispatcher(rulesSrc, rec, sender, nil)

	d.DispatchAutoReply(context.Background(), testMessage())

	if len(sender.sent) != 0 {
		t.Errorf("sent = %v, want none for non-matching domain", sender.sent)
	}
}

// TestDispatch_RuleFetchFailureDoesNotPanic verifies the dispatcher
// swallows store errors.
func TestDispatch_RuleFetchFailureDoesNotPanic(t *testing.T) {
	rulesSrc := &fakeRules{fetchErr: fmt.Errorf("db down")}
	d := NewDispatcher(rulesSrc, &fakeRecorder{}, &fakeSender{}, nil)

	// Must not panic or propagate.
	d.Dispatch(context.Background(), testMessage())
}

// TestRenderTemplate verifies placeholder substitution and the
// tag-stripped plain rendering.
func TestRenderTemplate(t *testing.T) {
	msg := testMessage()
	tpl := "<p>Dear {{sender_name}},</p><p>We received <b>{{original_subject}}</b> on {{received_date}}.</p>"

	htmlBody, textBody := RenderTemplate(tpl, msg)

	if !strings.Contains(htmlBody, "Dear Alice,") {
		t.Errorf("html = %q, want sender name substituted", htmlBody)
	}
	if !strings.Contains(htmlBody, "<b>Booking inquiry</b>") {
		t.Errorf("html = %q, want subject substituted", htmlBody)
	}
	if !strings.Contains(htmlBody, "June 15, 2026") {
		t.Errorf("html = %q, want received date substituted", htmlBody)
	}
	if strings.Contains(textBody, "<") {
		t.Errorf("text = %q, want tags stripped", textBody)
	}
	if !strings.Contains(textBody, "Booking inquiry") {
		t.Errorf("text = %q, want content preserved", textBody)
	}
}

// TestRenderTemplate_SenderNameFallback verifies the address is used when
// no display name is known.
func TestRenderTemplate_SenderNameFallback(t *testing.T) {
	msg := testMessage()
	msg.FromName = ""

	htmlBody, _ := RenderTemplate("Hi {{sender_name}}", msg)
	if htmlBody != "Hi alice@example.com" {
		t.Errorf("html = %q", htmlBody)
	}
}

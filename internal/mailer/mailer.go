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

// Package mailer sends outbound email over SMTP. Each send opens its own
// session; there is no queue and no retry — a failed send is reported to
// the caller and logged, nothing more.
package mailer

import (
	"crypto/tls"
	"fmt"
	"html"
	"log/slog"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/mrtandempilot/skywalkers-hub/internal/config"
	"github.com/mrtandempilot/skywalkers-hub/internal/models"
)

// Sender is the interface the rule dispatcher uses to deliver email.
type Sender interface {
	Send(to, subject, htmlBody, textBody string) error
}

// SMTPSender sends mail through a configured SMTP relay.
type SMTPSender struct {
	cfg config.SMTPConfig
}

// NewSMTPSender creates an SMTP sender from config.
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send delivers one message to one recipient. Implicit TLS on port 465,
// STARTTLS on everything else.
func (s *SMTPSender) Send(to, subject, htmlBody, textBody string) error {
	msg := buildMessage(s.cfg.From, to, subject, htmlBody, textBody)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	var client *smtp.Client
	var err error
	if s.cfg.Port == 465 {
		conn, dialErr := tls.Dial("tcp", addr, &tls.Config{ServerName: s.cfg.Host})
		if dialErr != nil {
			return fmt.Errorf("connect to SMTP server: %w", dialErr)
		}
		client, err = smtp.NewClient(conn, s.cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("create SMTP client: %w", err)
		}
	} else {
		client, err = smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("connect to SMTP server: %w", err)
		}
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
				client.Close()
				return fmt.Errorf("STARTTLS: %w", err)
			}
		}
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth: %w", err)
		}
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("set recipient %s: %w", to, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA command: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data writer: %w", err)
	}

	if err := client.Quit(); err != nil {
		return fmt.Errorf("QUIT: %w", err)
	}

	slog.Info("email sent", "to", to, "subject", subject)
	return nil
}

// buildMessage assembles a multipart/alternative MIME message. When only
// one body kind is present the message is a single part.
func buildMessage(from, to, subject, htmlBody, textBody string) []byte {
	var b strings.Builder

	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")

	switch {
	case htmlBody != "" && textBody != "":
		boundary := fmt.Sprintf("part-%d", time.Now().UnixNano())
		b.WriteString("Content-Type: multipart/alternative; boundary=\"" + boundary + "\"\r\n\r\n")

		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(textBody + "\r\n\r\n")

		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(htmlBody + "\r\n\r\n")

		b.WriteString("--" + boundary + "--\r\n")
	case htmlBody != "":
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(htmlBody + "\r\n")
	default:
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(textBody + "\r\n")
	}

	return []byte(b.String())
}

// ForwardBody wraps an inbound email's content in the "Forwarded Email"
// banner shown to forwarding-rule destinations. Returns HTML and plain
// renderings.
func ForwardBody(e *models.IncomingEmail) (htmlBody, textBody string) {
	received := e.ReceivedAt.Format("Mon, 2 Jan 2006 15:04 MST")
	fromLine := e.FromEmail
	if e.FromName != "" {
		fromLine = fmt.Sprintf("%s <%s>", e.FromName, e.FromEmail)
	}

	var hb strings.Builder
	hb.WriteString(`<div style="border:1px solid #ccc;padding:12px;margin-bottom:12px;background:#f7f7f7">`)
	hb.WriteString("<strong>Forwarded Email</strong><br>")
	hb.WriteString("From: " + html.EscapeString(fromLine) + "<br>")
	hb.WriteString("To: " + html.EscapeString(e.ToEmail) + "<br>")
	hb.WriteString("Subject: " + html.EscapeString(e.Subject) + "<br>")
	hb.WriteString("Received: " + received + "</div>")
	if e.HTMLContent != "" {
		hb.WriteString(e.HTMLContent)
	} else {
		hb.WriteString("<pre>" + html.EscapeString(e.PlainText) + "</pre>")
	}

	var tb strings.Builder
	tb.WriteString("---------- Forwarded Email ----------\n")
	tb.WriteString("From: " + fromLine + "\n")
	tb.WriteString("To: " + e.ToEmail + "\n")
	tb.WriteString("Subject: " + e.Subject + "\n")
	tb.WriteString("Received: " + received + "\n")
	tb.WriteString("-------------------------------------\n\n")
	tb.WriteString(e.PlainText)

	return hb.String(), tb.String()
}

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

package adapter

import (
	"fmt"
	"strings"
	"testing"
)

func waEnvelope(value string) string {
	return fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{"id": "123", "changes": [{"field": "messages", "value": %s}]}]
	}`, value)
}

// TestParseWhatsApp_Text verifies text message extraction with contact info.
func TestParseWhatsApp_Text(t *testing.T) {
	raw := waEnvelope(`{
		"messaging_product": "whatsapp",
		"contacts": [{"wa_id": "34600111222", "profile": {"name": "Carlos"}}],
		"messages": [{"id": "wamid.1", "from": "34600111222", "timestamp": "1700000000", "type": "text", "text": {"body": "Hola, quiero volar"}}]
	}`)

	in, err := ParseWhatsApp([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in == nil || in.StatusOnly {
		t.Fatalf("expected a message, got %+v", in)
	}

	if in.MessageID != "wamid.1" {
		t.Errorf("messageID = %q, want wamid.1", in.MessageID)
	}
	if in.From != "34600111222" {
		t.Errorf("from = %q, want 34600111222", in.From)
	}
	if in.SenderName != "Carlos" {
		t.Errorf("senderName = %q, want Carlos", in.SenderName)
	}
	if in.DisplayText != "Hola, quiero volar" {
		t.Errorf("displayText = %q", in.DisplayText)
	}
}

// TestParseWhatsApp_Statuses verifies delivery receipts are acknowledged
// without producing a message.
func TestParseWhatsApp_Statuses(t *testing.T) {
	raw := waEnvelope(`{
		"messaging_product": "whatsapp",
		"statuses": [{"id": "wamid.2", "status": "delivered", "recipient_id": "34600111222"}]
	}`)

	in, err := ParseWhatsApp([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in == nil || !in.StatusOnly {
		t.Fatalf("expected StatusOnly, got %+v", in)
	}
}

// TestParseWhatsApp_MediaTypes verifies the per-type display strings and
// media references.
func TestParseWhatsApp_MediaTypes(t *testing.T) {
	tests := []struct {
		name        string
		message     string
		wantType    string
		wantDisplay string
		wantMediaID string
	}{
		{
			name:        "image with caption",
			message:     `{"id": "m1", "from": "34", "type": "image", "image": {"id": "media-1", "mime_type": "image/jpeg", "caption": "the takeoff"}}`,
			wantType:    "image",
			wantDisplay: "the takeoff",
			wantMediaID: "media-1",
		},
		{
			name:        "document with filename",
			message:     `{"id": "m2", "from": "34", "type": "document", "document": {"id": "media-2", "mime_type": "application/pdf", "filename": "passport.pdf"}}`,
			wantType:    "document",
			wantDisplay: "passport.pdf",
			wantMediaID: "media-2",
		},
		{
			name:        "audio",
			message:     `{"id": "m3", "from": "34", "type": "audio", "audio": {"id": "media-3", "mime_type": "audio/ogg"}}`,
			wantType:    "audio",
			wantDisplay: "Voice message",
			wantMediaID: "media-3",
		},
		{
			name:        "location with name",
			message:     `{"id": "m4", "from": "34", "type": "location", "location": {"latitude": 36.7, "longitude": -4.4, "name": "Landing zone"}}`,
			wantType:    "location",
			wantDisplay: "Landing zone",
		},
		{
			name:        "unknown type",
			message:     `{"id": "m5", "from": "34", "type": "sticker"}`,
			wantType:    "unknown",
			wantDisplay: "Unsupported message type: sticker",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := waEnvelope(`{"messaging_product": "whatsapp", "messages": [` + tt.message + `]}`)
			in, err := ParseWhatsApp([]byte(raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if in == nil {
				t.Fatal("expected a message, got nil")
			}
			if in.Type != tt.wantType {
				t.Errorf("type = %q, want %q", in.Type, tt.wantType)
			}
			if !strings.Contains(in.DisplayText, tt.wantDisplay) {
				t.Errorf("displayText = %q, want substring %q", in.DisplayText, tt.wantDisplay)
			}
			if in.MediaID != tt.wantMediaID {
				t.Errorf("mediaID = %q, want %q", in.MediaID, tt.wantMediaID)
			}
		})
	}
}

// TestParseWhatsApp_Empty verifies payloads without messages produce nil.
func TestParseWhatsApp_Empty(t *testing.T) {
	raw := waEnvelope(`{"messaging_product": "whatsapp"}`)

	in, err := ParseWhatsApp([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in != nil {
		t.Errorf("expected nil, got %+v", in)
	}
}

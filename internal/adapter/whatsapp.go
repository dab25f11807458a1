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
	"encoding/json"
	"fmt"
)

// WhatsAppPayload is the nested envelope the WhatsApp Cloud API posts.
type WhatsAppPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string        `json:"field"`
			Value WhatsAppValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// WhatsAppValue is the per-change value block carrying either messages
// or delivery status receipts.
type WhatsAppValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Contacts         []WhatsAppContact `json:"contacts"`
	Messages         []WhatsAppMessage `json:"messages"`
	Statuses         []WhatsAppStatus  `json:"statuses"`
}

// WhatsAppContact carries the sender's profile info.
type WhatsAppContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// WhatsAppStatus is a delivery receipt (sent/delivered/read/failed).
type WhatsAppStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
}

// WhatsAppMedia is the shared shape of image/video/document/audio blocks.
type WhatsAppMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

// WhatsAppMessage is one inbound message of any supported type.
type WhatsAppMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *WhatsAppMedia `json:"image"`
	Video    *WhatsAppMedia `json:"video"`
	Document *WhatsAppMedia `json:"document"`
	Audio    *WhatsAppMedia `json:"audio"`
	Location *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Name      string  `json:"name"`
	} `json:"location"`
}

// InboundWhatsApp is the normalized result of parsing a webhook delivery.
type InboundWhatsApp struct {
	// StatusOnly is true for delivery-receipt payloads that need
	// acknowledgement but no further processing.
	StatusOnly bool

	MessageID   string
	From        string // sender phone (wa_id)
	SenderName  string
	Type        string // text, image, video, document, audio, location, unknown
	DisplayText string
	MediaID     string
	MediaType   string
}

// ParseWhatsApp extracts the first message and its contact from a Cloud API
// webhook payload. Payloads carrying only statuses produce a StatusOnly
// result. Payloads with no messages at all produce nil.
func ParseWhatsApp(raw []byte) (*InboundWhatsApp, error) {
	var payload WhatsAppPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode whatsapp payload: %w", err)
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Statuses) > 0 {
				return &InboundWhatsApp{StatusOnly: true}, nil
			}
			if len(change.Value.Messages) == 0 {
				continue
			}

			msg := change.Value.Messages[0]
			in := &InboundWhatsApp{
				MessageID: msg.ID,
				From:      msg.From,
				Type:      msg.Type,
			}
			if len(change.Value.Contacts) > 0 {
				in.SenderName = change.Value.Contacts[0].Profile.Name
			}

			switch msg.Type {
			case "text":
				if msg.Text != nil {
					in.DisplayText = msg.Text.Body
				}
			case "image":
				in.DisplayText = mediaDisplay("📷 Image", msg.Image)
				in.MediaID, in.MediaType = mediaRef(msg.Image)
			case "video":
				in.DisplayText = mediaDisplay("🎥 Video", msg.Video)
				in.MediaID, in.MediaType = mediaRef(msg.Video)
			case "document":
				label := "📄 Document"
				if msg.Document != nil && msg.Document.Filename != "" {
					label = "📄 " + msg.Document.Filename
				}
				in.DisplayText = mediaDisplay(label, msg.Document)
				in.MediaID, in.MediaType = mediaRef(msg.Document)
			case "audio":
				in.DisplayText = "🎵 Voice message"
				in.MediaID, in.MediaType = mediaRef(msg.Audio)
			case "location":
				if msg.Location != nil {
					in.DisplayText = fmt.Sprintf("📍 Location: %f, %f", msg.Location.Latitude, msg.Location.Longitude)
					if msg.Location.Name != "" {
						in.DisplayText = "📍 " + msg.Location.Name
					}
				} else {
					in.DisplayText = "📍 Location"
				}
			default:
				in.Type = "unknown"
				in.DisplayText = fmt.Sprintf("[Unsupported message type: %s]", msg.Type)
			}

			return in, nil
		}
	}

	return nil, nil
}

func mediaDisplay(label string, m *WhatsAppMedia) string {
	if m != nil && m.Caption != "" {
		return label + ": " + m.Caption
	}
	return label
}

func mediaRef(m *WhatsAppMedia) (id, mimeType string) {
	if m == nil {
		return "", ""
	}
	return m.ID, m.MimeType
}

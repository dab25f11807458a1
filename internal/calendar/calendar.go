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

// Package calendar mirrors confirmed bookings into a Google Calendar via
// the REST API, authenticated with a service-account JWT flow. Calendar
// sync is best-effort: a failed insert is logged by the caller, never
// rolled back into the booking path.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/mrtandempilot/skywalkers-hub/internal/config"
	"github.com/mrtandempilot/skywalkers-hub/internal/models"
)

const (
	calendarBaseURL = "https://www.googleapis.com/calendar/v3"
	calendarScope   = "https://www.googleapis.com/auth/calendar.events"
)

// Client inserts events into one configured calendar.
type Client struct {
	httpClient *http.Client
	baseURL    string
	calendarID string
}

// NewClient builds a calendar client from the service-account credentials
// file. Returns nil (disabled) when no credentials are configured.
func NewClient(ctx context.Context, cfg config.CalendarConfig) (*Client, error) {
	if cfg.CredentialsFile == "" || cfg.CalendarID == "" {
		return nil, nil
	}

	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read service account credentials: %w", err)
	}

	jwtCfg, err := google.JWTConfigFromJSON(data, calendarScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	return &Client{
		httpClient: jwtCfg.Client(ctx),
		baseURL:    calendarBaseURL,
		calendarID: cfg.CalendarID,
	}, nil
}

// event is the subset of the Calendar API event resource we write.
type event struct {
	Summary     string        `json:"summary"`
	Description string        `json:"description,omitempty"`
	Start       eventDateTime `json:"start"`
	End         eventDateTime `json:"end"`
}

type eventDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

// CreateBookingEvent inserts a calendar event for a booking and returns
// the created event id.
func (c *Client) CreateBookingEvent(ctx context.Context, b *models.Booking) (string, error) {
	summary := fmt.Sprintf("%s — %s (%d pax)", b.FlightType, b.CustomerName, b.Participants)
	description := fmt.Sprintf("Customer: %s <%s>\nStatus: %s\n%s",
		b.CustomerName, b.CustomerEmail, b.Status, b.Notes)

	ev := event{
		Summary:     summary,
		Description: description,
		Start:       eventDateTime{DateTime: b.FlightDate.Format(time.RFC3339)},
		End:         eventDateTime{DateTime: b.FlightDate.Add(90 * time.Minute).Format(time.RFC3339)},
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	url := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, c.calendarID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calendar insert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("calendar API returned HTTP %d: %s", resp.StatusCode, detail)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode event response: %w", err)
	}
	return created.ID, nil
}

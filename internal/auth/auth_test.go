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

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mrtandempilot/skywalkers-hub/internal/config"
)

// staticVerifier maps tokens to emails without a network call.
type staticVerifier struct {
	tokens map[string]string
}

func (v *staticVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	email, ok := v.tokens[token]
	if !ok {
		return "", ErrInvalidToken
	}
	return email, nil
}

// TestAdminPolicy_Authorize covers the token and identity matrix.
func TestAdminPolicy_Authorize(t *testing.T) {
	policy := NewAdminPolicy(&staticVerifier{tokens: map[string]string{
		"admin-token": "admin@skywalkers.com",
		"user-token":  "visitor@example.com",
	}}, "Admin@Skywalkers.com")

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{"admin token", "Bearer admin-token", nil},
		{"non-admin token", "Bearer user-token", ErrNotAdmin},
		{"unknown token", "Bearer bogus", ErrInvalidToken},
		{"no header", "", ErrNoToken},
		{"wrong scheme", "Basic abc", ErrNoToken},
		{"empty token", "Bearer ", ErrNoToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/pilots", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			err := policy.Authorize(req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Authorize = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestSupabaseVerifier verifies the auth-endpoint round trip.
func TestSupabaseVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/user" {
			t.Errorf("path = %q", r.URL.Path)
		}
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.Write([]byte(`{"email": "admin@skywalkers.com"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	v := NewSupabaseVerifier(config.AuthConfig{
		SupabaseURL: srv.URL,
		ServiceKey:  "service-key",
	})

	email, err := v.VerifyToken(context.Background(), "good")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email != "admin@skywalkers.com" {
		t.Errorf("email = %q", email)
	}

	if _, err := v.VerifyToken(context.Background(), "bad"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}

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

// Package auth resolves bearer tokens to user identities via the Supabase
// auth endpoint and applies the admin authorization policy. The policy is
// injected from config rather than compared against a hardcoded address.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mrtandempilot/skywalkers-hub/internal/config"
)

// Errors the HTTP layer maps to 401/403 responses.
var (
	ErrNoToken      = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNotAdmin     = errors.New("user is not an administrator")
)

// Verifier resolves a bearer token to the email of the user it belongs to.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (email string, err error)
}

// SupabaseVerifier verifies tokens against GET {url}/auth/v1/user.
type SupabaseVerifier struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewSupabaseVerifier creates a verifier for the configured project.
func NewSupabaseVerifier(cfg config.AuthConfig) *SupabaseVerifier {
	return &SupabaseVerifier{
		baseURL:    strings.TrimRight(cfg.SupabaseURL, "/"),
		apiKey:     cfg.ServiceKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// VerifyToken asks the auth service who the token belongs to.
func (v *SupabaseVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", v.apiKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrInvalidToken
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth service returned HTTP %d", resp.StatusCode)
	}

	var user struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("decode user response: %w", err)
	}
	if user.Email == "" {
		return "", ErrInvalidToken
	}
	return user.Email, nil
}

// AdminPolicy decides whether an authenticated user may perform admin
// operations (pilot management, rule mutation).
type AdminPolicy struct {
	verifier   Verifier
	adminEmail string
}

// NewAdminPolicy wires the policy with its injected admin identity.
func NewAdminPolicy(verifier Verifier, adminEmail string) *AdminPolicy {
	return &AdminPolicy{
		verifier:   verifier,
		adminEmail: strings.ToLower(adminEmail),
	}
}

// Authorize extracts the bearer token from a request, verifies it, and
// checks the resolved email against the admin identity.
func (p *AdminPolicy) Authorize(r *http.Request) error {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return ErrNoToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return ErrNoToken
	}

	email, err := p.verifier.VerifyToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return ErrInvalidToken
		}
		return fmt.Errorf("verify token: %w", err)
	}

	if !strings.EqualFold(email, p.adminEmail) {
		return ErrNotAdmin
	}
	return nil
}

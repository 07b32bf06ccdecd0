// Copyright 2026 The TrustGate Authors
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

package guest

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Domain errors
var (
	ErrSessionNotFound = errors.New("guest session not found")
	ErrSessionExpired  = errors.New("guest session expired")
	ErrInvalidHandle   = errors.New("invalid guest session handle")
	ErrRateLimited     = errors.New("rate limit exceeded")
)

// Session is an anonymous browsing session. The token never leaves the
// cache in logs; clients present it as `<id>:<token>`.
type Session struct {
	ID           string         `json:"id"`
	Token        string         `json:"token"`
	TenantID     *string        `json:"tenant_id,omitempty"`
	IP           string         `json:"ip"`
	UserAgent    string         `json:"user_agent,omitempty"`
	RequestCount int64          `json:"request_count"`
	Data         map[string]any `json:"data,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	LastSeenAt   time.Time      `json:"last_seen_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
}

// Handle returns the client-facing session handle
func (s *Session) Handle() string {
	return s.ID + ":" + s.Token
}

// Expired reports whether the session has lapsed
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ParseHandle splits a client handle into id and token
func ParseHandle(handle string) (id, token string, err error) {
	id, token, ok := strings.Cut(handle, ":")
	if !ok || id == "" || token == "" {
		return "", "", ErrInvalidHandle
	}
	return id, token, nil
}

// newToken returns 32 hex chars of CSPRNG output
func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func tokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

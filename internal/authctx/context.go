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

// Package authctx defines the per-request identity snapshot. An
// AuthContext is built once by the request pipeline and never mutated
// afterwards; handlers read it, nothing writes it.
package authctx

import (
	"encoding/json"
	"time"
)

// AuthContext is the immutable identity snapshot attached to a request.
type AuthContext struct {
	UserID      string `json:"user_id"`
	SubjectID   string `json:"subject_id"`
	RealmID     string `json:"realm_id"`
	TenantID    *string `json:"tenant_id,omitempty"`
	Email       string `json:"email,omitempty"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`

	AuthenticatedAt time.Time `json:"authenticated_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	SessionID       string    `json:"session_id,omitempty"`

	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Scopes      []string `json:"scopes,omitempty"`

	// ValidationMethod records how the token was verified: local or
	// introspection.
	ValidationMethod string `json:"validation_method"`

	Claims   map[string]any `json:"claims,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// HasRole reports whether the snapshot carries a role code
func (a *AuthContext) HasRole(code string) bool {
	for _, r := range a.Roles {
		if r == code {
			return true
		}
	}
	return false
}

// Tenant returns the tenant id or empty for platform principals
func (a *AuthContext) Tenant() string {
	if a.TenantID == nil {
		return ""
	}
	return *a.TenantID
}

// Encode serializes the snapshot for the token-bounded cache
func (a *AuthContext) Encode() ([]byte, error) {
	return json.Marshal(a)
}

// Decode restores a snapshot from its cached form
func Decode(data []byte) (*AuthContext, error) {
	var a AuthContext
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

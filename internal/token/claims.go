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

package token

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// RealmAccess carries realm-level roles in provider tokens
type RealmAccess struct {
	Roles []string `json:"roles"`
}

// ClientAccess carries client-level roles in provider tokens
type ClientAccess struct {
	Roles []string `json:"roles"`
}

// Claims is the provider access-token claim set the core consumes.
type Claims struct {
	jwt.RegisteredClaims
	PreferredUsername string                  `json:"preferred_username,omitempty"`
	Email             string                  `json:"email,omitempty"`
	EmailVerified     bool                    `json:"email_verified,omitempty"`
	GivenName         string                  `json:"given_name,omitempty"`
	FamilyName        string                  `json:"family_name,omitempty"`
	Name              string                  `json:"name,omitempty"`
	Scope             string                  `json:"scope,omitempty"`
	SessionState      string                  `json:"session_state,omitempty"`
	RealmAccess       RealmAccess             `json:"realm_access,omitempty"`
	ResourceAccess    map[string]ClientAccess `json:"resource_access,omitempty"`
	// Permissions is an optional custom claim some realms map directly
	// onto tokens.
	Permissions []string `json:"permissions,omitempty"`
}

// Roles returns realm roles plus client roles for the given client.
// Client roles are prefixed with "<client-id>:" so they cannot collide
// with realm roles of the same name.
func (c *Claims) Roles(clientID string) []string {
	roles := make([]string, 0, len(c.RealmAccess.Roles))
	roles = append(roles, c.RealmAccess.Roles...)
	if access, ok := c.ResourceAccess[clientID]; ok {
		for _, role := range access.Roles {
			roles = append(roles, clientID+":"+role)
		}
	}
	return roles
}

// Scopes splits the space-separated scope claim
func (c *Claims) Scopes() []string {
	if c.Scope == "" {
		return nil
	}
	return strings.Fields(c.Scope)
}

// Map returns the claim set as a generic map for AuthContext snapshots
func (c *Claims) Map() map[string]any {
	data, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// DisplayName returns the best available human-readable name
func (c *Claims) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	name := strings.TrimSpace(c.GivenName + " " + c.FamilyName)
	if name != "" {
		return name
	}
	return c.PreferredUsername
}

// ParseUnverifiedClaims decodes claims without signature verification.
// Only for reading profile fields out of a token the provider just
// issued; never a substitute for validation.
func ParseUnverifiedClaims(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

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

package realm

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrRealmNotConfigured = errors.New("realm not configured")
	ErrRealmConflict      = errors.New("realm already exists")
	ErrRealmDisabled      = errors.New("realm disabled")
)

// Status is the realm lifecycle state
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
	StatusDeleted  Status = "deleted"
)

// Config is a tenant's realm configuration. One realm per tenant, plus
// the platform realm whose TenantID is nil.
type Config struct {
	ID          string  `json:"id"`
	TenantID    *string `json:"tenant_id"`
	RealmName   string  `json:"realm_name"`
	DisplayName string  `json:"display_name"`
	ServerURL   string  `json:"server_url"`
	ClientID    string  `json:"client_id"`
	// ClientSecret is empty for public clients. Persisted sealed; see
	// SecretCipher.
	ClientSecret string `json:"client_secret,omitempty"`

	SigningAlgorithms []string `json:"signing_algorithms"`
	ExpectedAudience  string   `json:"expected_audience,omitempty"`
	ExpectedIssuer    string   `json:"expected_issuer,omitempty"`

	VerifySignature bool `json:"verify_signature"`
	VerifyExp       bool `json:"verify_exp"`
	VerifyNbf       bool `json:"verify_nbf"`
	VerifyIat       bool `json:"verify_iat"`
	VerifyAudience  bool `json:"verify_audience"`

	PublicKeyTTL time.Duration `json:"public_key_ttl"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Settings are the mutable fields of a realm configuration
type Settings struct {
	DisplayName       *string
	ClientID          *string
	ClientSecret      *string
	SigningAlgorithms []string
	ExpectedAudience  *string
	ExpectedIssuer    *string
	PublicKeyTTL      *time.Duration
}

// ApplyDefaults fills zero-valued verification fields for a new config
func (c *Config) ApplyDefaults() {
	if len(c.SigningAlgorithms) == 0 {
		c.SigningAlgorithms = []string{"RS256"}
	}
	if c.PublicKeyTTL <= 0 {
		c.PublicKeyTTL = time.Hour
	}
	c.VerifySignature = true
	c.VerifyExp = true
	c.VerifyNbf = true
	c.VerifyIat = true
}

// AllowsAlgorithm reports whether alg is in the realm's permitted set
func (c *Config) AllowsAlgorithm(alg string) bool {
	for _, a := range c.SigningAlgorithms {
		if a == alg {
			return true
		}
	}
	return false
}

// IsActive reports whether the realm may serve requests
func (c *Config) IsActive() bool {
	return c.Status == StatusActive
}

// Repository defines the interface for realm persistence
type Repository interface {
	// Create inserts a new realm row
	Create(ctx context.Context, config *Config) error

	// GetByID retrieves a realm by id, regardless of status
	GetByID(ctx context.Context, id string) (*Config, error)

	// GetActiveByTenant retrieves the active realm for a tenant
	GetActiveByTenant(ctx context.Context, tenantID string) (*Config, error)

	// GetByServerAndName retrieves a realm by its provider identity
	GetByServerAndName(ctx context.Context, serverURL, realmName string) (*Config, error)

	// Update persists the mutable fields of a realm
	Update(ctx context.Context, config *Config) error

	// SetStatus updates the lifecycle state
	SetStatus(ctx context.Context, id string, status Status) error

	// List retrieves all realms not physically removed
	List(ctx context.Context) ([]*Config, error)
}

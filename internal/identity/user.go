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

package identity

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserConflict = errors.New("user already exists")
	ErrUserDisabled = errors.New("user disabled")
	ErrGrantExpired = errors.New("tenant access grant expired")
	ErrNoGrant      = errors.New("no tenant access grant")
)

// User is the internal identity row backing an external subject. The
// internal id is immutable; profile fields are overwritten from token
// claims on every login.
type User struct {
	ID                string
	ExternalProvider  string
	ExternalSubjectID string
	TenantID          *string
	Email             string
	Username          string
	FirstName         string
	LastName          string
	DisplayName       string
	IsActive          bool
	IsSuperadmin      bool
	Metadata          map[string]any
	LastLoginAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

// AccessGrant allows a user registered in one realm to operate in
// another tenant. At most one active grant per (user, tenant).
type AccessGrant struct {
	ID             string
	UserID         string
	TenantID       string
	AccessLevel    string
	GrantedBy      string
	GrantedAt      time.Time
	ExpiresAt      *time.Time
	IPRestrictions []string
	IsActive       bool
}

// Expired reports whether the grant has lapsed
func (g *AccessGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && now.After(*g.ExpiresAt)
}

// Repository defines the interface for identity persistence
type Repository interface {
	// Create inserts a new user row
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by internal id
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByExternal retrieves a user by its provider identity
	GetByExternal(ctx context.Context, provider, subjectID string) (*User, error)

	// UpdateProfile overwrites the profile fields and bumps
	// last_login_at, keyed by the external identity
	UpdateProfile(ctx context.Context, user *User) error

	// Delete soft-deletes a user
	Delete(ctx context.Context, id string) error
}

// GrantRepository defines the interface for tenant access grants
type GrantRepository interface {
	// Grant upserts the active grant for (user, tenant)
	Grant(ctx context.Context, grant *AccessGrant) error

	// Revoke deactivates the grant for (user, tenant)
	Revoke(ctx context.Context, userID, tenantID string) error

	// GetActive retrieves the active grant for (user, tenant)
	GetActive(ctx context.Context, userID, tenantID string) (*AccessGrant, error)
}

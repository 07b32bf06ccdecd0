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

package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Domain errors
var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrRoleNotFound      = errors.New("role not found")
	ErrInvalidPermission = errors.New("invalid permission code")
)

// Role is a named permission bundle, scoped platform-wide or to one tenant
type Role struct {
	ID          string
	Code        string
	Scope       string
	TenantID    *string
	Name        string
	Description string
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is a resource:action pair with risk flags
type Permission struct {
	ID               string
	Code             string
	Scope            string
	Description      string
	IsDangerous      bool
	RequiresMFA      bool
	RequiresApproval bool
}

// RoleAssignment binds a user to a role, optionally time-boxed
type RoleAssignment struct {
	ID        string
	UserID    string
	RoleID    string
	TenantID  *string
	GrantedBy string
	GrantedAt time.Time
	ExpiresAt *time.Time
}

// ActiveAt reports whether the assignment is in force at the given instant
func (a *RoleAssignment) ActiveAt(now time.Time) bool {
	return a.ExpiresAt == nil || now.Before(*a.ExpiresAt)
}

// ParsePermission splits a permission code at the first colon. Both
// parts must be non-empty; additional colons belong to the action.
func ParsePermission(code string) (resource, action string, err error) {
	idx := strings.Index(code, ":")
	if idx <= 0 || idx == len(code)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPermission, code)
	}
	return code[:idx], code[idx+1:], nil
}

// Matches reports whether a held permission satisfies a required one.
// A `*` on either side of the held code wildcards that part.
func Matches(held, required string) bool {
	if held == required {
		return true
	}
	hr, ha, err := ParsePermission(held)
	if err != nil {
		return false
	}
	rr, ra, err := ParsePermission(required)
	if err != nil {
		return false
	}
	if hr != "*" && hr != rr {
		return false
	}
	return ha == "*" || ha == ra
}

// MatchesAny reports whether any held permission satisfies the required one
func MatchesAny(held []string, required string) bool {
	for _, h := range held {
		if Matches(h, required) {
			return true
		}
	}
	return false
}

// ScopeKey canonicalizes a tenant pointer for cache keys and queries:
// "platform" for platform scope, "tenant:<id>" otherwise.
func ScopeKey(tenantID *string) string {
	if tenantID == nil {
		return "platform"
	}
	return "tenant:" + *tenantID
}

// Repository defines the interface for role and permission persistence
type Repository interface {
	// GetUserPermissions resolves the distinct permission codes a user
	// holds in a scope through non-expired role assignments
	GetUserPermissions(ctx context.Context, userID string, tenantID *string) ([]string, error)

	// GetUserRoles resolves the role codes a user holds in a scope
	// through non-expired assignments
	GetUserRoles(ctx context.Context, userID string, tenantID *string) ([]string, error)

	// GetRoleByCode retrieves a role by (code, scope)
	GetRoleByCode(ctx context.Context, code string, tenantID *string) (*Role, error)

	// GrantRole inserts a role assignment
	GrantRole(ctx context.Context, assignment *RoleAssignment) error

	// RevokeRole removes a user's assignment of a role
	RevokeRole(ctx context.Context, userID, roleID string) error

	// ListRoleAssignees returns the user ids currently assigned a role
	ListRoleAssignees(ctx context.Context, roleID string) ([]string, error)
}

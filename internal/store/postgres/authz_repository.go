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

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trustgate/trustgate/internal/authz"
)

// AuthzRepository implements authz.Repository
type AuthzRepository struct {
	db *DB
}

// NewAuthzRepository creates a new authorization repository
func NewAuthzRepository(db *DB) *AuthzRepository {
	return &AuthzRepository{db: db}
}

// scopeClause matches platform assignments (tenant_id IS NULL) when the
// caller passes no tenant, tenant assignments otherwise.
const scopeClause = `(($2::uuid IS NULL AND ur.tenant_id IS NULL) OR ur.tenant_id = $2)`

// GetUserPermissions resolves the distinct permission codes a user
// holds in a scope through non-expired role assignments. One query,
// three joins; the hot path is served from cache above this layer.
func (r *AuthzRepository) GetUserPermissions(ctx context.Context, userID string, tenantID *string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT DISTINCT p.code
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1
		  AND `+scopeClause+`
		  AND (ur.expires_at IS NULL OR ur.expires_at > now())
		ORDER BY p.code
	`, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user permissions: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// GetUserRoles resolves the role codes a user holds in a scope
func (r *AuthzRepository) GetUserRoles(ctx context.Context, userID string, tenantID *string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT DISTINCT ro.code
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = $1
		  AND `+scopeClause+`
		  AND (ur.expires_at IS NULL OR ur.expires_at > now())
		ORDER BY ro.code
	`, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user roles: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// GetRoleByCode retrieves a role by (code, scope)
func (r *AuthzRepository) GetRoleByCode(ctx context.Context, code string, tenantID *string) (*authz.Role, error) {
	var role authz.Role
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, code, scope, tenant_id, name, description, is_system, created_at, updated_at
		FROM roles
		WHERE code = $1 AND (($2::uuid IS NULL AND tenant_id IS NULL) OR tenant_id = $2)
	`, code, tenantID).Scan(
		&role.ID, &role.Code, &role.Scope, &role.TenantID, &role.Name,
		&role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, authz.ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan role: %w", err)
	}
	return &role, nil
}

// GrantRole inserts a role assignment. Re-granting an existing
// assignment refreshes its grantor and expiry.
func (r *AuthzRepository) GrantRole(ctx context.Context, assignment *authz.RoleAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.Must(uuid.NewV7()).String()
	}
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO user_roles (id, user_id, role_id, tenant_id, granted_by, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, role_id) DO UPDATE
		SET granted_by = EXCLUDED.granted_by,
		    granted_at = EXCLUDED.granted_at,
		    expires_at = EXCLUDED.expires_at
	`,
		assignment.ID, assignment.UserID, assignment.RoleID, assignment.TenantID,
		assignment.GrantedBy, assignment.GrantedAt, assignment.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}

// RevokeRole removes a user's assignment of a role
func (r *AuthzRepository) RevokeRole(ctx context.Context, userID, roleID string) error {
	tag, err := r.db.pool.Exec(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authz.ErrRoleNotFound
	}
	return nil
}

// ListRoleAssignees returns the user ids currently assigned a role
func (r *AuthzRepository) ListRoleAssignees(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT user_id FROM user_roles WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role assignees: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

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

	"github.com/jackc/pgx/v5"

	"github.com/trustgate/trustgate/internal/identity"
)

// GrantRepository implements identity.GrantRepository
type GrantRepository struct {
	db *DB
}

// NewGrantRepository creates a new tenant access grant repository
func NewGrantRepository(db *DB) *GrantRepository {
	return &GrantRepository{db: db}
}

// Grant upserts the active grant for (user, tenant)
func (r *GrantRepository) Grant(ctx context.Context, grant *identity.AccessGrant) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin grant tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE tenant_access_grants SET is_active = FALSE WHERE user_id = $1 AND tenant_id = $2 AND is_active`,
		grant.UserID, grant.TenantID)
	if err != nil {
		return fmt.Errorf("failed to supersede grant: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tenant_access_grants (
			id, user_id, tenant_id, access_level, granted_by,
			granted_at, expires_at, ip_restrictions, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
	`,
		grant.ID, grant.UserID, grant.TenantID, grant.AccessLevel, grant.GrantedBy,
		grant.GrantedAt, grant.ExpiresAt, grant.IPRestrictions,
	)
	if err != nil {
		return fmt.Errorf("failed to insert grant: %w", err)
	}
	return tx.Commit(ctx)
}

// Revoke deactivates the grant for (user, tenant)
func (r *GrantRepository) Revoke(ctx context.Context, userID, tenantID string) error {
	tag, err := r.db.pool.Exec(ctx,
		`UPDATE tenant_access_grants SET is_active = FALSE WHERE user_id = $1 AND tenant_id = $2 AND is_active`,
		userID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to revoke grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrNoGrant
	}
	return nil
}

// GetActive retrieves the active grant for (user, tenant)
func (r *GrantRepository) GetActive(ctx context.Context, userID, tenantID string) (*identity.AccessGrant, error) {
	var grant identity.AccessGrant
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, user_id, tenant_id, access_level, granted_by,
		       granted_at, expires_at, ip_restrictions, is_active
		FROM tenant_access_grants
		WHERE user_id = $1 AND tenant_id = $2 AND is_active
	`, userID, tenantID).Scan(
		&grant.ID, &grant.UserID, &grant.TenantID, &grant.AccessLevel, &grant.GrantedBy,
		&grant.GrantedAt, &grant.ExpiresAt, &grant.IPRestrictions, &grant.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, identity.ErrNoGrant
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan grant: %w", err)
	}
	return &grant, nil
}

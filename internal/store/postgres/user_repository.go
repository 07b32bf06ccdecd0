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

// UserRepository implements identity.Repository
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	id, external_provider, external_subject_id, tenant_id,
	email, username, first_name, last_name, display_name,
	is_active, is_superadmin, metadata,
	last_login_at, created_at, updated_at, deleted_at`

// Create inserts a new user identity
func (r *UserRepository) Create(ctx context.Context, user *identity.User) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO user_identities (
			id, external_provider, external_subject_id, tenant_id,
			email, username, first_name, last_name, display_name,
			is_active, is_superadmin, metadata,
			last_login_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		user.ID, user.ExternalProvider, user.ExternalSubjectID, user.TenantID,
		user.Email, user.Username, user.FirstName, user.LastName, user.DisplayName,
		user.IsActive, user.IsSuperadmin, user.Metadata,
		user.LastLoginAt, user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return identity.ErrUserConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by internal id
func (r *UserRepository) GetByID(ctx context.Context, id string) (*identity.User, error) {
	row := r.db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM user_identities WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanUser(row)
}

// GetByExternal retrieves a user by its provider identity
func (r *UserRepository) GetByExternal(ctx context.Context, provider, subjectID string) (*identity.User, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM user_identities
		WHERE external_provider = $1 AND external_subject_id = $2 AND deleted_at IS NULL
	`, provider, subjectID)
	return scanUser(row)
}

// UpdateProfile overwrites profile fields and bumps last_login_at
func (r *UserRepository) UpdateProfile(ctx context.Context, user *identity.User) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE user_identities SET
			email = $2, username = $3, first_name = $4, last_name = $5,
			display_name = $6, metadata = $7, last_login_at = $8, updated_at = $9
		WHERE id = $1 AND deleted_at IS NULL
	`,
		user.ID, user.Email, user.Username, user.FirstName, user.LastName,
		user.DisplayName, user.Metadata, user.LastLoginAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return identity.ErrUserConflict
	}
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// Delete soft-deletes a user
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.pool.Exec(ctx,
		`UPDATE user_identities SET deleted_at = now(), is_active = FALSE WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*identity.User, error) {
	var user identity.User
	err := row.Scan(
		&user.ID, &user.ExternalProvider, &user.ExternalSubjectID, &user.TenantID,
		&user.Email, &user.Username, &user.FirstName, &user.LastName, &user.DisplayName,
		&user.IsActive, &user.IsSuperadmin, &user.Metadata,
		&user.LastLoginAt, &user.CreatedAt, &user.UpdatedAt, &user.DeletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, identity.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}

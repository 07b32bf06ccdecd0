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
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/trustgate/trustgate/internal/realm"
)

// RealmRepository implements realm.Repository
type RealmRepository struct {
	db *DB
}

// NewRealmRepository creates a new realm repository
func NewRealmRepository(db *DB) *RealmRepository {
	return &RealmRepository{db: db}
}

const realmColumns = `
	id, tenant_id, realm_name, display_name, server_url, client_id, client_secret,
	signing_algorithms, expected_audience, expected_issuer,
	verify_signature, verify_exp, verify_nbf, verify_iat, verify_audience,
	public_key_ttl_secs, status, created_at, updated_at`

// Create inserts a realm configuration
func (r *RealmRepository) Create(ctx context.Context, cfg *realm.Config) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO realms (
			id, tenant_id, realm_name, display_name, server_url, client_id, client_secret,
			signing_algorithms, expected_audience, expected_issuer,
			verify_signature, verify_exp, verify_nbf, verify_iat, verify_audience,
			public_key_ttl_secs, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`,
		cfg.ID, cfg.TenantID, cfg.RealmName, cfg.DisplayName, cfg.ServerURL,
		cfg.ClientID, cfg.ClientSecret, cfg.SigningAlgorithms,
		cfg.ExpectedAudience, cfg.ExpectedIssuer,
		cfg.VerifySignature, cfg.VerifyExp, cfg.VerifyNbf, cfg.VerifyIat, cfg.VerifyAudience,
		int(cfg.PublicKeyTTL/time.Second), cfg.Status, cfg.CreatedAt, cfg.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return realm.ErrRealmConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert realm: %w", err)
	}
	return nil
}

// GetByID retrieves a realm by id
func (r *RealmRepository) GetByID(ctx context.Context, id string) (*realm.Config, error) {
	row := r.db.pool.QueryRow(ctx,
		`SELECT `+realmColumns+` FROM realms WHERE id = $1 AND status <> 'deleted'`, id)
	return scanRealm(row)
}

// GetActiveByTenant retrieves the active realm for a tenant
func (r *RealmRepository) GetActiveByTenant(ctx context.Context, tenantID string) (*realm.Config, error) {
	row := r.db.pool.QueryRow(ctx,
		`SELECT `+realmColumns+` FROM realms WHERE tenant_id = $1 AND status = 'active'`, tenantID)
	return scanRealm(row)
}

// GetByServerAndName retrieves a non-deleted realm by provider coordinates
func (r *RealmRepository) GetByServerAndName(ctx context.Context, serverURL, realmName string) (*realm.Config, error) {
	row := r.db.pool.QueryRow(ctx,
		`SELECT `+realmColumns+` FROM realms WHERE server_url = $1 AND realm_name = $2 AND status <> 'deleted'`,
		serverURL, realmName)
	return scanRealm(row)
}

// Update rewrites the mutable realm fields
func (r *RealmRepository) Update(ctx context.Context, cfg *realm.Config) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE realms SET
			display_name = $2, client_id = $3, client_secret = $4,
			signing_algorithms = $5, expected_audience = $6, expected_issuer = $7,
			verify_signature = $8, verify_exp = $9, verify_nbf = $10,
			verify_iat = $11, verify_audience = $12,
			public_key_ttl_secs = $13, updated_at = $14
		WHERE id = $1 AND status <> 'deleted'
	`,
		cfg.ID, cfg.DisplayName, cfg.ClientID, cfg.ClientSecret,
		cfg.SigningAlgorithms, cfg.ExpectedAudience, cfg.ExpectedIssuer,
		cfg.VerifySignature, cfg.VerifyExp, cfg.VerifyNbf,
		cfg.VerifyIat, cfg.VerifyAudience,
		int(cfg.PublicKeyTTL/time.Second), cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update realm: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return realm.ErrRealmNotConfigured
	}
	return nil
}

// SetStatus transitions a realm's lifecycle status
func (r *RealmRepository) SetStatus(ctx context.Context, id string, status realm.Status) error {
	tag, err := r.db.pool.Exec(ctx,
		`UPDATE realms SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to set realm status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return realm.ErrRealmNotConfigured
	}
	return nil
}

// List returns all non-deleted realms
func (r *RealmRepository) List(ctx context.Context) ([]*realm.Config, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT `+realmColumns+` FROM realms WHERE status <> 'deleted' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list realms: %w", err)
	}
	defer rows.Close()

	var realms []*realm.Config
	for rows.Next() {
		cfg, err := scanRealm(rows)
		if err != nil {
			return nil, err
		}
		realms = append(realms, cfg)
	}
	return realms, rows.Err()
}

func scanRealm(row pgx.Row) (*realm.Config, error) {
	var cfg realm.Config
	var ttlSecs int
	err := row.Scan(
		&cfg.ID, &cfg.TenantID, &cfg.RealmName, &cfg.DisplayName, &cfg.ServerURL,
		&cfg.ClientID, &cfg.ClientSecret, &cfg.SigningAlgorithms,
		&cfg.ExpectedAudience, &cfg.ExpectedIssuer,
		&cfg.VerifySignature, &cfg.VerifyExp, &cfg.VerifyNbf,
		&cfg.VerifyIat, &cfg.VerifyAudience,
		&ttlSecs, &cfg.Status, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, realm.ErrRealmNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan realm: %w", err)
	}
	cfg.PublicKeyTTL = time.Duration(ttlSecs) * time.Second
	return &cfg, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

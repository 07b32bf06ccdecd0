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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/trustgate/trustgate/internal/audit"
	"github.com/trustgate/trustgate/internal/cache"
	"github.com/trustgate/trustgate/internal/observability/logger"
	"github.com/trustgate/trustgate/internal/token"
)

// Mapper resolves external subjects to internal users, creating the
// mapping row on first sight. Repeated calls for the same external id
// always return the same internal id.
type Mapper struct {
	repo        Repository
	grants      GrantRepository
	cache       cache.Store
	auditLogger audit.Logger
	mappingTTL  time.Duration
	now         func() time.Time
}

// NewMapper creates an identity mapper
func NewMapper(repo Repository, grants GrantRepository, store cache.Store, auditLogger audit.Logger, mappingTTL time.Duration) *Mapper {
	return &Mapper{
		repo:        repo,
		grants:      grants,
		cache:       store,
		auditLogger: auditLogger,
		mappingTTL:  mappingTTL,
		now:         time.Now,
	}
}

// NewID generates a time-sortable 128-bit identifier: millisecond
// prefix, random suffix. Lock-free, no central service.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; fall back to v4
		// rather than blocking logins.
		return uuid.NewString()
	}
	return id.String()
}

func mappingKey(tenantID *string, provider, subjectID string) string {
	scope := "platform"
	if tenantID != nil {
		scope = *tenantID
	}
	return fmt.Sprintf("user-mapping:%s:%s:%s", scope, provider, subjectID)
}

// MapExternalToInternal resolves (provider, subject) to the internal
// user. When the subject is unknown and claims are supplied, a user row
// is provisioned from them; without claims the lookup fails.
func (m *Mapper) MapExternalToInternal(ctx context.Context, provider, subjectID string, tenantID *string, claims *token.Claims) (*User, error) {
	key := mappingKey(tenantID, provider, subjectID)

	if val, ok, err := m.cache.Get(ctx, key); err == nil && ok {
		var user User
		if err := json.Unmarshal([]byte(val), &user); err == nil {
			return &user, nil
		}
	}

	user, err := m.repo.GetByExternal(ctx, provider, subjectID)
	if err == nil {
		m.toCache(ctx, key, user)
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	if claims == nil {
		return nil, ErrUserNotFound
	}

	user, err = m.provision(ctx, provider, subjectID, tenantID, claims)
	if err != nil {
		return nil, err
	}
	m.toCache(ctx, key, user)
	return user, nil
}

// provision inserts a new user from token claims. A concurrent first
// login can win the insert; the uniqueness constraint rejects the loser,
// which retries the read and succeeds.
func (m *Mapper) provision(ctx context.Context, provider, subjectID string, tenantID *string, claims *token.Claims) (*User, error) {
	now := m.now()
	user := &User{
		ID:                NewID(),
		ExternalProvider:  provider,
		ExternalSubjectID: subjectID,
		TenantID:          tenantID,
		Email:             claims.Email,
		Username:          claims.PreferredUsername,
		FirstName:         claims.GivenName,
		LastName:          claims.FamilyName,
		DisplayName:       claims.DisplayName(),
		IsActive:          true,
		Metadata:          claimsMetadata(claims),
		LastLoginAt:       &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := m.repo.Create(ctx, user)
	if errors.Is(err, ErrUserConflict) {
		existing, readErr := m.repo.GetByExternal(ctx, provider, subjectID)
		if readErr == nil {
			return existing, nil
		}
		// The conflict was on (tenant, username) or (tenant, email),
		// not on the external id; surface it to the caller.
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	m.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserProvisioned,
		ActorID:  user.ID,
		TenantID: derefTenant(tenantID),
		Resource: subjectID,
		Metadata: map[string]any{"provider": provider, "username": user.Username},
	})
	return user, nil
}

// UpsertFromClaims syncs profile fields from a fresh login. Overwrites
// names, display name and metadata; bumps last_login_at.
func (m *Mapper) UpsertFromClaims(ctx context.Context, provider string, tenantID *string, claims *token.Claims) (*User, error) {
	user, err := m.MapExternalToInternal(ctx, provider, claims.Subject, tenantID, claims)
	if err != nil {
		return nil, err
	}

	now := m.now()
	user.Email = claims.Email
	user.Username = claims.PreferredUsername
	user.FirstName = claims.GivenName
	user.LastName = claims.FamilyName
	user.DisplayName = claims.DisplayName()
	user.Metadata = claimsMetadata(claims)
	user.LastLoginAt = &now
	user.UpdatedAt = now

	if err := m.repo.UpdateProfile(ctx, user); err != nil {
		return nil, err
	}

	m.toCache(ctx, mappingKey(tenantID, provider, claims.Subject), user)
	return user, nil
}

// GetByInternalID retrieves a user by internal id
func (m *Mapper) GetByInternalID(ctx context.Context, id string) (*User, error) {
	return m.repo.GetByID(ctx, id)
}

// InvalidateMapping drops the cached mapping for a user
func (m *Mapper) InvalidateMapping(ctx context.Context, provider, subjectID string) {
	if err := m.cache.DeletePattern(ctx, fmt.Sprintf("user-mapping:*:%s:%s", provider, subjectID)); err != nil {
		slog.WarnContext(ctx, "mapping cache invalidation failed",
			logger.Component("identity"), logger.SubjectID(subjectID), logger.Error(err))
	}
}

// GrantAccess records a cross-tenant access grant
func (m *Mapper) GrantAccess(ctx context.Context, grant *AccessGrant) error {
	if grant.ID == "" {
		grant.ID = NewID()
	}
	grant.GrantedAt = m.now()
	grant.IsActive = true
	if err := m.grants.Grant(ctx, grant); err != nil {
		return err
	}
	m.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeAccessGranted,
		ActorID:  grant.GrantedBy,
		TenantID: grant.TenantID,
		Resource: grant.UserID,
	})
	return nil
}

// RevokeAccess deactivates a cross-tenant access grant
func (m *Mapper) RevokeAccess(ctx context.Context, userID, tenantID, revokedBy string) error {
	if err := m.grants.Revoke(ctx, userID, tenantID); err != nil {
		return err
	}
	m.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeAccessRevoked,
		ActorID:  revokedBy,
		TenantID: tenantID,
		Resource: userID,
	})
	return nil
}

// CheckAccess verifies a user may operate in a tenant other than its
// home tenant.
func (m *Mapper) CheckAccess(ctx context.Context, user *User, tenantID string) error {
	if user.TenantID != nil && *user.TenantID == tenantID {
		return nil
	}
	if user.IsSuperadmin {
		return nil
	}
	grant, err := m.grants.GetActive(ctx, user.ID, tenantID)
	if err != nil {
		return err
	}
	if grant.Expired(m.now()) {
		return ErrGrantExpired
	}
	return nil
}

func (m *Mapper) toCache(ctx context.Context, key string, user *User) {
	data, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err := m.cache.Set(ctx, key, string(data), m.mappingTTL); err != nil {
		slog.WarnContext(ctx, "mapping cache write failed", logger.Component("identity"), logger.Error(err))
	}
}

func claimsMetadata(claims *token.Claims) map[string]any {
	meta := map[string]any{}
	if claims.EmailVerified {
		meta["email_verified"] = true
	}
	if claims.Issuer != "" {
		meta["issuer"] = claims.Issuer
	}
	if claims.SessionState != "" {
		meta["session_state"] = claims.SessionState
	}
	return meta
}

func derefTenant(tenantID *string) string {
	if tenantID == nil {
		return ""
	}
	return *tenantID
}

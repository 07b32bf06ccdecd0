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
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/trustgate/trustgate/internal/audit"
	"github.com/trustgate/trustgate/internal/cache"
	"github.com/trustgate/trustgate/internal/observability/logger"
)

// Cache TTLs. Permissions are refreshed more often than role lists;
// the denormalized summary is short-lived because it folds both.
const (
	permissionTTL = 30 * time.Minute
	roleTTL       = time.Hour
	summaryTTL    = 10 * time.Minute
)

// Service answers permission checks from cache, falling back to a
// single repository query per (user, scope) on miss. Invalidation is
// write-then-invalidate: the DB write commits before any key is dropped.
type Service struct {
	repo        Repository
	cache       cache.Store
	auditLogger audit.Logger
}

// NewService creates an authorization service
func NewService(repo Repository, store cache.Store, auditLogger audit.Logger) *Service {
	return &Service{repo: repo, cache: store, auditLogger: auditLogger}
}

func permKey(userID string, tenantID *string) string {
	return fmt.Sprintf("perm:%s:%s", userID, ScopeKey(tenantID))
}

func roleKey(userID string, tenantID *string) string {
	return fmt.Sprintf("roles:%s:%s", userID, ScopeKey(tenantID))
}

func summaryKey(userID string, tenantID *string) string {
	return fmt.Sprintf("perm-summary:%s:%s", userID, ScopeKey(tenantID))
}

// GetUserPermissions returns the permission codes a user holds in a scope
func (s *Service) GetUserPermissions(ctx context.Context, userID string, tenantID *string) ([]string, error) {
	return s.cachedList(ctx, permKey(userID, tenantID), permissionTTL, func() ([]string, error) {
		return s.repo.GetUserPermissions(ctx, userID, tenantID)
	})
}

// GetUserRoles returns the role codes a user holds in a scope
func (s *Service) GetUserRoles(ctx context.Context, userID string, tenantID *string) ([]string, error) {
	return s.cachedList(ctx, roleKey(userID, tenantID), roleTTL, func() ([]string, error) {
		return s.repo.GetUserRoles(ctx, userID, tenantID)
	})
}

// CheckPermission verifies the user holds every required permission,
// honoring wildcards on the held side. No required permissions passes.
func (s *Service) CheckPermission(ctx context.Context, userID string, tenantID *string, required ...string) error {
	if len(required) == 0 {
		return nil
	}
	held, err := s.GetUserPermissions(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	for _, req := range required {
		if !MatchesAny(held, req) {
			s.auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypePermissionDenied,
				ActorID:  userID,
				TenantID: tenantRef(tenantID),
				Resource: req,
			})
			return fmt.Errorf("%w: %s", ErrPermissionDenied, req)
		}
	}
	return nil
}

// MissingPermissions returns the required codes the user does not hold
// in the scope, honoring wildcards on the held side.
func (s *Service) MissingPermissions(ctx context.Context, userID string, tenantID *string, required ...string) ([]string, error) {
	held, err := s.GetUserPermissions(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, req := range required {
		if !MatchesAny(held, req) {
			missing = append(missing, req)
		}
	}
	return missing, nil
}

// CheckAnyPermission verifies the user holds at least one of the
// required permissions.
func (s *Service) CheckAnyPermission(ctx context.Context, userID string, tenantID *string, required ...string) error {
	if len(required) == 0 {
		return nil
	}
	held, err := s.GetUserPermissions(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	for _, req := range required {
		if MatchesAny(held, req) {
			return nil
		}
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePermissionDenied,
		ActorID:  userID,
		TenantID: tenantRef(tenantID),
		Resource: required[0],
	})
	return ErrPermissionDenied
}

// Summary is the denormalized role+permission view attached to an
// authenticated request.
type Summary struct {
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// GetSummary returns roles and permissions together, cached as one unit
func (s *Service) GetSummary(ctx context.Context, userID string, tenantID *string) (*Summary, error) {
	key := summaryKey(userID, tenantID)
	if val, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var summary Summary
		if err := json.Unmarshal([]byte(val), &summary); err == nil {
			return &summary, nil
		}
	}

	roles, err := s.GetUserRoles(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	perms, err := s.GetUserPermissions(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	summary := &Summary{Roles: roles, Permissions: perms}
	if data, err := json.Marshal(summary); err == nil {
		if err := s.cache.Set(ctx, key, string(data), summaryTTL); err != nil {
			slog.WarnContext(ctx, "permission summary cache write failed", logger.Component("authz"), logger.Error(err))
		}
	}
	return summary, nil
}

// WarmUser preloads the caches for a user, typically right after login
func (s *Service) WarmUser(ctx context.Context, userID string, tenantID *string) {
	if _, err := s.GetSummary(ctx, userID, tenantID); err != nil {
		slog.WarnContext(ctx, "permission cache warm failed",
			logger.Component("authz"), logger.UserID(userID), logger.Error(err))
	}
}

// GrantRole assigns a role to a user. The write commits before the
// user's cached entries are dropped.
func (s *Service) GrantRole(ctx context.Context, userID, roleCode string, tenantID *string, grantedBy string, expiresAt *time.Time) error {
	role, err := s.repo.GetRoleByCode(ctx, roleCode, tenantID)
	if err != nil {
		return err
	}
	assignment := &RoleAssignment{
		UserID:    userID,
		RoleID:    role.ID,
		TenantID:  tenantID,
		GrantedBy: grantedBy,
		GrantedAt: time.Now(),
		ExpiresAt: expiresAt,
	}
	if err := s.repo.GrantRole(ctx, assignment); err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	s.InvalidateUser(ctx, userID, tenantID)
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleGranted,
		ActorID:  grantedBy,
		TenantID: tenantRef(tenantID),
		Resource: userID,
		Metadata: map[string]any{"role": roleCode},
	})
	return nil
}

// RevokeRole removes a role from a user
func (s *Service) RevokeRole(ctx context.Context, userID, roleCode string, tenantID *string, revokedBy string) error {
	role, err := s.repo.GetRoleByCode(ctx, roleCode, tenantID)
	if err != nil {
		return err
	}
	if err := s.repo.RevokeRole(ctx, userID, role.ID); err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	s.InvalidateUser(ctx, userID, tenantID)
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleRevoked,
		ActorID:  revokedBy,
		TenantID: tenantRef(tenantID),
		Resource: userID,
		Metadata: map[string]any{"role": roleCode},
	})
	return nil
}

// InvalidateUser drops every cached authorization entry for a user in a
// scope, including cached request AuthContexts.
func (s *Service) InvalidateUser(ctx context.Context, userID string, tenantID *string) {
	keys := []string{
		permKey(userID, tenantID),
		roleKey(userID, tenantID),
		summaryKey(userID, tenantID),
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		slog.WarnContext(ctx, "authorization cache invalidation failed",
			logger.Component("authz"), logger.UserID(userID), logger.Error(err))
	}
	if err := s.cache.DeletePattern(ctx, fmt.Sprintf("authctx:%s:*", userID)); err != nil {
		slog.WarnContext(ctx, "auth context cache invalidation failed",
			logger.Component("authz"), logger.UserID(userID), logger.Error(err))
	}
}

// InvalidateRole drops cached entries for every user holding a role.
// Assignees are resolved before the role definition changes take effect
// on reads, so at worst a user is invalidated twice.
func (s *Service) InvalidateRole(ctx context.Context, roleID string, tenantID *string) error {
	userIDs, err := s.repo.ListRoleAssignees(ctx, roleID)
	if err != nil {
		return fmt.Errorf("failed to list role assignees: %w", err)
	}
	for _, userID := range userIDs {
		s.InvalidateUser(ctx, userID, tenantID)
	}
	return nil
}

func (s *Service) cachedList(ctx context.Context, key string, ttl time.Duration, load func() ([]string, error)) ([]string, error) {
	if val, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var list []string
		if err := json.Unmarshal([]byte(val), &list); err == nil {
			return list, nil
		}
	} else if err != nil {
		slog.WarnContext(ctx, "authorization cache read failed", logger.Component("authz"), logger.Error(err))
	}

	list, err := load()
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(list); err == nil {
		if err := s.cache.Set(ctx, key, string(data), ttl); err != nil {
			slog.WarnContext(ctx, "authorization cache write failed", logger.Component("authz"), logger.Error(err))
		}
	}
	return list, nil
}

func tenantRef(tenantID *string) string {
	if tenantID == nil {
		return ""
	}
	return *tenantID
}

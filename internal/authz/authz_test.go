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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustgate/trustgate/internal/audit"
	"github.com/trustgate/trustgate/internal/cache"
)

func TestParsePermission(t *testing.T) {
	tests := []struct {
		code     string
		resource string
		action   string
		wantErr  bool
	}{
		{"users:read", "users", "read", false},
		{"*:*", "*", "*", false},
		{"realms:*", "realms", "*", false},
		{"users:read:extra", "users", "read:extra", false},
		{"users:", "", "", true},
		{":read", "", "", true},
		{"users", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			resource, action, err := ParsePermission(tt.code)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidPermission)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.resource, resource)
			assert.Equal(t, tt.action, action)
		})
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		held     string
		required string
		want     bool
	}{
		{"users:read", "users:read", true},
		{"users:read", "users:write", false},
		{"users:*", "users:read", true},
		{"users:*", "realms:read", false},
		{"*:read", "users:read", true},
		{"*:read", "users:write", false},
		{"*:*", "users:read", true},
		{"*:*", "realms:delete", true},
		{"users:read", "users:*", false},
		{"users:", "users:read", false},
		{"users", "users:read", false},
	}

	for _, tt := range tests {
		t.Run(tt.held+"_vs_"+tt.required, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.held, tt.required))
		})
	}
}

func TestScopeKey(t *testing.T) {
	assert.Equal(t, "platform", ScopeKey(nil))
	tenant := "t-1"
	assert.Equal(t, "tenant:t-1", ScopeKey(&tenant))
}

// mockRepo is an in-memory authz repository
type mockRepo struct {
	permissions map[string][]string // userID -> codes
	roles       map[string][]string
	rolesByCode map[string]*Role
	assignees   map[string][]string
	queries     int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		permissions: map[string][]string{},
		roles:       map[string][]string{},
		rolesByCode: map[string]*Role{},
		assignees:   map[string][]string{},
	}
}

func (m *mockRepo) GetUserPermissions(ctx context.Context, userID string, tenantID *string) ([]string, error) {
	m.queries++
	return m.permissions[userID], nil
}

func (m *mockRepo) GetUserRoles(ctx context.Context, userID string, tenantID *string) ([]string, error) {
	m.queries++
	return m.roles[userID], nil
}

func (m *mockRepo) GetRoleByCode(ctx context.Context, code string, tenantID *string) (*Role, error) {
	role, ok := m.rolesByCode[code]
	if !ok {
		return nil, ErrRoleNotFound
	}
	return role, nil
}

func (m *mockRepo) GrantRole(ctx context.Context, assignment *RoleAssignment) error {
	m.assignees[assignment.RoleID] = append(m.assignees[assignment.RoleID], assignment.UserID)
	return nil
}

func (m *mockRepo) RevokeRole(ctx context.Context, userID, roleID string) error {
	return nil
}

func (m *mockRepo) ListRoleAssignees(ctx context.Context, roleID string) ([]string, error) {
	return m.assignees[roleID], nil
}

func newTestService(repo Repository) (*Service, *cache.MemoryStore) {
	store := cache.NewMemory()
	return NewService(repo, store, audit.NewSlogLogger()), store
}

func TestCheckPermissionRequiresAll(t *testing.T) {
	repo := newMockRepo()
	repo.permissions["u1"] = []string{"users:read", "realms:*"}
	svc, _ := newTestService(repo)
	ctx := context.Background()

	require.NoError(t, svc.CheckPermission(ctx, "u1", nil, "users:read"))
	require.NoError(t, svc.CheckPermission(ctx, "u1", nil, "users:read", "realms:update"))
	require.ErrorIs(t, svc.CheckPermission(ctx, "u1", nil, "users:read", "users:write"), ErrPermissionDenied)
	require.NoError(t, svc.CheckPermission(ctx, "u1", nil))
}

func TestMissingPermissions(t *testing.T) {
	repo := newMockRepo()
	repo.permissions["u1"] = []string{"users:read", "realms:*"}
	svc, _ := newTestService(repo)
	ctx := context.Background()

	missing, err := svc.MissingPermissions(ctx, "u1", nil, "users:read", "users:write", "realms:delete")
	require.NoError(t, err)
	assert.Equal(t, []string{"users:write"}, missing)

	missing, err = svc.MissingPermissions(ctx, "u1", nil, "users:read")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestCheckAnyPermission(t *testing.T) {
	repo := newMockRepo()
	repo.permissions["u1"] = []string{"users:read"}
	svc, _ := newTestService(repo)
	ctx := context.Background()

	require.NoError(t, svc.CheckAnyPermission(ctx, "u1", nil, "users:write", "users:read"))
	require.ErrorIs(t, svc.CheckAnyPermission(ctx, "u1", nil, "users:write", "users:delete"), ErrPermissionDenied)
}

func TestPermissionsCached(t *testing.T) {
	repo := newMockRepo()
	repo.permissions["u1"] = []string{"users:read"}
	svc, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.GetUserPermissions(ctx, "u1", nil)
	require.NoError(t, err)
	_, err = svc.GetUserPermissions(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.queries, "second read must come from cache")
}

func TestInvalidateUserDropsCache(t *testing.T) {
	repo := newMockRepo()
	repo.permissions["u1"] = []string{"users:read"}
	svc, store := newTestService(repo)
	ctx := context.Background()

	_, err := svc.GetUserPermissions(ctx, "u1", nil)
	require.NoError(t, err)

	// A cached AuthContext must be dropped along with the permissions
	require.NoError(t, store.Set(ctx, "authctx:u1:abcd", "{}", time.Minute))

	svc.InvalidateUser(ctx, "u1", nil)

	_, ok, err := store.Get(ctx, "perm:u1:platform")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = store.Get(ctx, "authctx:u1:abcd")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.GetUserPermissions(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.queries)
}

func TestGrantRoleInvalidates(t *testing.T) {
	repo := newMockRepo()
	repo.permissions["u1"] = []string{}
	repo.rolesByCode["tenant-admin"] = &Role{ID: "r1", Code: "tenant-admin"}
	svc, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.GetUserPermissions(ctx, "u1", nil)
	require.NoError(t, err)

	repo.permissions["u1"] = []string{"realms:read"}
	require.NoError(t, svc.GrantRole(ctx, "u1", "tenant-admin", nil, "admin", nil))

	perms, err := svc.GetUserPermissions(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"realms:read"}, perms)
}

func TestGetSummary(t *testing.T) {
	repo := newMockRepo()
	repo.permissions["u1"] = []string{"users:read"}
	repo.roles["u1"] = []string{"member"}
	svc, _ := newTestService(repo)

	summary, err := svc.GetSummary(context.Background(), "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"member"}, summary.Roles)
	assert.Equal(t, []string{"users:read"}, summary.Permissions)
}

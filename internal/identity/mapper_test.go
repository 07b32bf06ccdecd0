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
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustgate/trustgate/internal/audit"
	"github.com/trustgate/trustgate/internal/cache"
	"github.com/trustgate/trustgate/internal/token"
)

// mockUserRepo is an in-memory identity repository
type mockUserRepo struct {
	byExternal map[string]*User
	byID       map[string]*User
	creates    int
	reads      int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{byExternal: map[string]*User{}, byID: map[string]*User{}}
}

func externalKey(provider, subjectID string) string {
	return provider + "/" + subjectID
}

func (m *mockUserRepo) Create(ctx context.Context, user *User) error {
	m.creates++
	key := externalKey(user.ExternalProvider, user.ExternalSubjectID)
	if _, exists := m.byExternal[key]; exists {
		return ErrUserConflict
	}
	clone := *user
	m.byExternal[key] = &clone
	m.byID[user.ID] = &clone
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*User, error) {
	if user, ok := m.byID[id]; ok {
		clone := *user
		return &clone, nil
	}
	return nil, ErrUserNotFound
}

func (m *mockUserRepo) GetByExternal(ctx context.Context, provider, subjectID string) (*User, error) {
	m.reads++
	if user, ok := m.byExternal[externalKey(provider, subjectID)]; ok {
		clone := *user
		return &clone, nil
	}
	return nil, ErrUserNotFound
}

func (m *mockUserRepo) UpdateProfile(ctx context.Context, user *User) error {
	key := externalKey(user.ExternalProvider, user.ExternalSubjectID)
	if _, ok := m.byExternal[key]; !ok {
		return ErrUserNotFound
	}
	clone := *user
	m.byExternal[key] = &clone
	m.byID[user.ID] = &clone
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	return nil
}

// mockGrantRepo is an in-memory grant repository
type mockGrantRepo struct {
	grants map[string]*AccessGrant
}

func newMockGrantRepo() *mockGrantRepo {
	return &mockGrantRepo{grants: map[string]*AccessGrant{}}
}

func grantKey(userID, tenantID string) string {
	return userID + "/" + tenantID
}

func (m *mockGrantRepo) Grant(ctx context.Context, grant *AccessGrant) error {
	m.grants[grantKey(grant.UserID, grant.TenantID)] = grant
	return nil
}

func (m *mockGrantRepo) Revoke(ctx context.Context, userID, tenantID string) error {
	key := grantKey(userID, tenantID)
	if _, ok := m.grants[key]; !ok {
		return ErrNoGrant
	}
	delete(m.grants, key)
	return nil
}

func (m *mockGrantRepo) GetActive(ctx context.Context, userID, tenantID string) (*AccessGrant, error) {
	if grant, ok := m.grants[grantKey(userID, tenantID)]; ok {
		return grant, nil
	}
	return nil, ErrNoGrant
}

func newTestMapper() (*Mapper, *mockUserRepo, *mockGrantRepo) {
	repo := newMockUserRepo()
	grants := newMockGrantRepo()
	mapper := NewMapper(repo, grants, cache.NewMemory(), audit.NewSlogLogger(), 30*time.Minute)
	return mapper, repo, grants
}

func testClaims(sub, username string) *token.Claims {
	return &token.Claims{
		RegisteredClaims:  jwt.RegisteredClaims{Subject: sub},
		PreferredUsername: username,
		Email:             username + "@example.com",
		GivenName:         "Jane",
		FamilyName:        "Doe",
	}
}

func TestFirstLoginProvisions(t *testing.T) {
	mapper, repo, _ := newTestMapper()
	ctx := context.Background()

	user, err := mapper.MapExternalToInternal(ctx, "acme", "sub-1", nil, testClaims("sub-1", "jdoe"))
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "jdoe", user.Username)
	assert.Equal(t, "Jane Doe", user.DisplayName)
	assert.True(t, user.IsActive)
	assert.NotNil(t, user.LastLoginAt)
	assert.Equal(t, 1, repo.creates)
}

func TestMappingIsDeterministic(t *testing.T) {
	mapper, repo, _ := newTestMapper()
	ctx := context.Background()

	first, err := mapper.MapExternalToInternal(ctx, "acme", "sub-1", nil, testClaims("sub-1", "jdoe"))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := mapper.MapExternalToInternal(ctx, "acme", "sub-1", nil, testClaims("sub-1", "jdoe"))
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
	}
	assert.Equal(t, 1, repo.creates, "provisioning happens exactly once")
}

func TestMappingServedFromCache(t *testing.T) {
	mapper, repo, _ := newTestMapper()
	ctx := context.Background()

	_, err := mapper.MapExternalToInternal(ctx, "acme", "sub-1", nil, testClaims("sub-1", "jdoe"))
	require.NoError(t, err)
	reads := repo.reads

	_, err = mapper.MapExternalToInternal(ctx, "acme", "sub-1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, reads, repo.reads, "repeat lookup must not hit the repository")
}

func TestUnknownSubjectWithoutClaims(t *testing.T) {
	mapper, _, _ := newTestMapper()
	_, err := mapper.MapExternalToInternal(context.Background(), "acme", "ghost", nil, nil)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestDistinctSubjectsGetDistinctUsers(t *testing.T) {
	mapper, _, _ := newTestMapper()
	ctx := context.Background()

	a, err := mapper.MapExternalToInternal(ctx, "acme", "sub-1", nil, testClaims("sub-1", "a"))
	require.NoError(t, err)
	b, err := mapper.MapExternalToInternal(ctx, "acme", "sub-2", nil, testClaims("sub-2", "b"))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestConcurrentProvisionLoserReads(t *testing.T) {
	mapper, repo, _ := newTestMapper()
	ctx := context.Background()

	// Simulate the race: the row exists but the cache and the first
	// read both missed, so provision hits the unique constraint.
	winner := &User{
		ID:                NewID(),
		ExternalProvider:  "acme",
		ExternalSubjectID: "sub-1",
		IsActive:          true,
	}
	require.NoError(t, repo.Create(ctx, winner))

	user, err := mapper.provision(ctx, "acme", "sub-1", nil, testClaims("sub-1", "jdoe"))
	require.NoError(t, err)
	assert.Equal(t, winner.ID, user.ID)
}

func TestUpsertFromClaimsSyncsProfile(t *testing.T) {
	mapper, _, _ := newTestMapper()
	ctx := context.Background()

	first, err := mapper.UpsertFromClaims(ctx, "acme", nil, testClaims("sub-1", "jdoe"))
	require.NoError(t, err)

	claims := testClaims("sub-1", "jdoe")
	claims.GivenName = "Janet"
	updated, err := mapper.UpsertFromClaims(ctx, "acme", nil, claims)
	require.NoError(t, err)
	assert.Equal(t, first.ID, updated.ID)
	assert.Equal(t, "Janet", updated.FirstName)
	assert.Equal(t, "Janet Doe", updated.DisplayName)
}

func TestCheckAccess(t *testing.T) {
	mapper, _, _ := newTestMapper()
	ctx := context.Background()
	home := "t-1"

	user := &User{ID: "u1", TenantID: &home}
	require.NoError(t, mapper.CheckAccess(ctx, user, "t-1"), "home tenant always passes")
	require.ErrorIs(t, mapper.CheckAccess(ctx, user, "t-2"), ErrNoGrant)

	require.NoError(t, mapper.GrantAccess(ctx, &AccessGrant{
		UserID:   "u1",
		TenantID: "t-2",
	}))
	require.NoError(t, mapper.CheckAccess(ctx, user, "t-2"))

	require.NoError(t, mapper.RevokeAccess(ctx, "u1", "t-2", "admin"))
	require.ErrorIs(t, mapper.CheckAccess(ctx, user, "t-2"), ErrNoGrant)
}

func TestCheckAccessExpiredGrant(t *testing.T) {
	mapper, _, grants := newTestMapper()
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	grants.grants[grantKey("u1", "t-2")] = &AccessGrant{
		UserID:    "u1",
		TenantID:  "t-2",
		ExpiresAt: &past,
		IsActive:  true,
	}
	user := &User{ID: "u1"}
	require.ErrorIs(t, mapper.CheckAccess(ctx, user, "t-2"), ErrGrantExpired)
}

func TestSuperadminBypassesGrants(t *testing.T) {
	mapper, _, _ := newTestMapper()
	user := &User{ID: "u1", IsSuperadmin: true}
	require.NoError(t, mapper.CheckAccess(context.Background(), user, "any-tenant"))
}

func TestNewIDOrdering(t *testing.T) {
	a := NewID()
	time.Sleep(2 * time.Millisecond)
	b := NewID()
	assert.Less(t, a, b, "ids are time-sortable")
}

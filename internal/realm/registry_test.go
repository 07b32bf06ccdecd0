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

package realm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustgate/trustgate/internal/audit"
	"github.com/trustgate/trustgate/internal/cache"
	"github.com/trustgate/trustgate/internal/idp"
)

type mockRepo struct {
	byID        map[string]*Config
	tenantCalls int
	createErr   error
}

func newMockRepo() *mockRepo {
	return &mockRepo{byID: make(map[string]*Config)}
}

func (m *mockRepo) Create(ctx context.Context, config *Config) error {
	if m.createErr != nil {
		return m.createErr
	}
	clone := *config
	m.byID[config.ID] = &clone
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id string) (*Config, error) {
	if config, ok := m.byID[id]; ok {
		clone := *config
		return &clone, nil
	}
	return nil, ErrRealmNotConfigured
}

func (m *mockRepo) GetActiveByTenant(ctx context.Context, tenantID string) (*Config, error) {
	m.tenantCalls++
	for _, config := range m.byID {
		if config.TenantID != nil && *config.TenantID == tenantID && config.Status == StatusActive {
			clone := *config
			return &clone, nil
		}
	}
	return nil, ErrRealmNotConfigured
}

func (m *mockRepo) GetByServerAndName(ctx context.Context, serverURL, realmName string) (*Config, error) {
	for _, config := range m.byID {
		if config.ServerURL == serverURL && config.RealmName == realmName {
			clone := *config
			return &clone, nil
		}
	}
	return nil, ErrRealmNotConfigured
}

func (m *mockRepo) Update(ctx context.Context, config *Config) error {
	if _, ok := m.byID[config.ID]; !ok {
		return ErrRealmNotConfigured
	}
	clone := *config
	m.byID[config.ID] = &clone
	return nil
}

func (m *mockRepo) SetStatus(ctx context.Context, id string, status Status) error {
	config, ok := m.byID[id]
	if !ok {
		return ErrRealmNotConfigured
	}
	config.Status = status
	return nil
}

func (m *mockRepo) List(ctx context.Context) ([]*Config, error) {
	out := make([]*Config, 0, len(m.byID))
	for _, config := range m.byID {
		clone := *config
		out = append(out, &clone)
	}
	return out, nil
}

// fakeProvider is a minimal admin API for provisioning tests
type fakeProvider struct {
	srv *httptest.Server

	realmCreates  int
	realmDeletes  int
	clientCreates int
	failClients   bool
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{}
	fp.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/protocol/openid-connect/token"):
			json.NewEncoder(w).Encode(idp.TokenBundle{AccessToken: "admin-token", ExpiresIn: 300})
		case r.Method == http.MethodPost && r.URL.Path == "/admin/realms":
			fp.realmCreates++
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/clients"):
			fp.clientCreates++
			if fp.failClients {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodDelete:
			fp.realmDeletes++
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(fp.srv.Close)
	return fp
}

func testCipher(t *testing.T) *SecretCipher {
	t.Helper()
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	cipher, err := NewSecretCipher(key, false)
	require.NoError(t, err)
	return cipher
}

func newTestRegistry(t *testing.T, repo Repository, store cache.Store, serverURL string) *Registry {
	t.Helper()
	client, err := idp.NewClient(idp.Config{
		ServerURL:     serverURL,
		AdminRealm:    "master",
		AdminUsername: "admin",
		AdminPassword: "admin",
		RetryAttempts: 1,
	})
	require.NoError(t, err)
	return NewRegistry(repo, store, client, idp.NewAdapters(client), testCipher(t), audit.NewSlogLogger(), time.Hour)
}

func TestGetRealmByTenantCaches(t *testing.T) {
	repo := newMockRepo()
	store := cache.NewMemory()
	fp := newFakeProvider(t)
	reg := newTestRegistry(t, repo, store, fp.srv.URL)

	tenantID := "tenant-1"
	repo.byID["r1"] = &Config{
		ID: "r1", TenantID: &tenantID, RealmName: "acme",
		ServerURL: fp.srv.URL, Status: StatusActive,
	}

	ctx := context.Background()
	first, err := reg.GetRealmByTenant(ctx, tenantID)
	require.NoError(t, err)
	second, err := reg.GetRealmByTenant(ctx, tenantID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.tenantCalls, "second lookup is served from cache")
}

func TestCreateTenantRealm(t *testing.T) {
	repo := newMockRepo()
	fp := newFakeProvider(t)
	reg := newTestRegistry(t, repo, cache.NewMemory(), fp.srv.URL)

	ctx := context.Background()
	created, err := reg.CreateTenantRealm(ctx, "tenant-1", &Config{
		RealmName:    "acme",
		DisplayName:  "Acme Corp",
		ServerURL:    fp.srv.URL,
		ClientID:     "acme-web",
		ClientSecret: "s3cret",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fp.realmCreates)
	assert.Equal(t, 1, fp.clientCreates)
	assert.NotEmpty(t, created.ID)
	require.NotNil(t, created.TenantID)
	assert.Equal(t, "tenant-1", *created.TenantID)
	assert.Equal(t, "s3cret", created.ClientSecret, "caller gets the plaintext back")

	stored := repo.byID[created.ID]
	require.NotNil(t, stored)
	assert.NotEqual(t, "s3cret", stored.ClientSecret, "row holds the sealed secret")
	assert.True(t, stored.VerifySignature)
	assert.True(t, stored.VerifyExp)
}

func TestCreateTenantRealmDefaultsServerAndClient(t *testing.T) {
	repo := newMockRepo()
	fp := newFakeProvider(t)
	reg := newTestRegistry(t, repo, cache.NewMemory(), fp.srv.URL)

	created, err := reg.CreateTenantRealm(context.Background(), "tenant-1", &Config{
		RealmName: "acme",
	})
	require.NoError(t, err)
	assert.Equal(t, fp.srv.URL, created.ServerURL, "server URL defaults to the provider's")
	assert.Equal(t, "acme-app", created.ClientID, "client id is derived from the realm name")

	stored := repo.byID[created.ID]
	require.NotNil(t, stored)
	assert.Equal(t, fp.srv.URL, stored.ServerURL)
	assert.Equal(t, "acme-app", stored.ClientID)
}

func TestCreateTenantRealmIdempotent(t *testing.T) {
	repo := newMockRepo()
	fp := newFakeProvider(t)
	reg := newTestRegistry(t, repo, cache.NewMemory(), fp.srv.URL)

	ctx := context.Background()
	cfg := Config{RealmName: "acme", ServerURL: fp.srv.URL, ClientID: "acme-web"}
	first, err := reg.CreateTenantRealm(ctx, "tenant-1", &cfg)
	require.NoError(t, err)

	retry := cfg
	again, err := reg.CreateTenantRealm(ctx, "tenant-1", &retry)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "same name returns the existing realm")
	assert.Equal(t, 1, fp.realmCreates, "no second provider call")

	other := Config{RealmName: "other", ServerURL: fp.srv.URL, ClientID: "acme-web"}
	_, err = reg.CreateTenantRealm(ctx, "tenant-1", &other)
	require.ErrorIs(t, err, ErrRealmConflict)
}

func TestCreateTenantRealmRollsBackOnClientFailure(t *testing.T) {
	repo := newMockRepo()
	fp := newFakeProvider(t)
	fp.failClients = true
	reg := newTestRegistry(t, repo, cache.NewMemory(), fp.srv.URL)

	_, err := reg.CreateTenantRealm(context.Background(), "tenant-1", &Config{
		RealmName: "acme", ServerURL: fp.srv.URL, ClientID: "acme-web",
	})
	require.Error(t, err)
	assert.Equal(t, 1, fp.realmDeletes, "partial remote realm is deleted")
	assert.Empty(t, repo.byID, "no database row on failure")
}

func TestDisableRealmInvalidatesCache(t *testing.T) {
	repo := newMockRepo()
	store := cache.NewMemory()
	fp := newFakeProvider(t)
	reg := newTestRegistry(t, repo, store, fp.srv.URL)

	tenantID := "tenant-1"
	repo.byID["r1"] = &Config{
		ID: "r1", TenantID: &tenantID, RealmName: "acme",
		ServerURL: fp.srv.URL, Status: StatusActive,
	}

	ctx := context.Background()
	_, err := reg.GetRealmByTenant(ctx, tenantID)
	require.NoError(t, err)

	require.NoError(t, reg.DisableRealm(ctx, "r1"))

	_, err = reg.GetRealmByTenant(ctx, tenantID)
	require.ErrorIs(t, err, ErrRealmNotConfigured, "disabled realm no longer resolves")
}

func TestPlatformRealm(t *testing.T) {
	repo := newMockRepo()
	fp := newFakeProvider(t)
	reg := newTestRegistry(t, repo, cache.NewMemory(), fp.srv.URL)

	_, ok := reg.PlatformRealm()
	assert.False(t, ok)

	reg.RegisterPlatformRealm(&Config{RealmName: "platform", ServerURL: fp.srv.URL})

	platform, ok := reg.PlatformRealm()
	require.True(t, ok)
	assert.Nil(t, platform.TenantID)
	assert.Equal(t, StatusActive, platform.Status)
	assert.NotEmpty(t, platform.ID)

	byID, err := reg.GetRealmByID(context.Background(), platform.ID)
	require.NoError(t, err)
	assert.Equal(t, platform.ID, byID.ID)
}

func TestSigningKeyPEMCaches(t *testing.T) {
	store := cache.NewMemory()
	fp := newFakeProvider(t)
	reg := newTestRegistry(t, newMockRepo(), store, fp.srv.URL)

	config := &Config{ID: "r1", RealmName: "acme", PublicKeyTTL: time.Hour}
	require.NoError(t, store.Set(context.Background(), "public-key:r1", "cached-pem", time.Hour))

	pemKey, err := reg.SigningKeyPEM(context.Background(), config)
	require.NoError(t, err)
	assert.Equal(t, "cached-pem", pemKey)

	reg.InvalidateSigningKey(context.Background(), "r1")
	_, ok, err := store.Get(context.Background(), "public-key:r1")
	require.NoError(t, err)
	assert.False(t, ok)
}

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
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trustgate/trustgate/internal/audit"
	"github.com/trustgate/trustgate/internal/cache"
	"github.com/trustgate/trustgate/internal/idp"
	"github.com/trustgate/trustgate/internal/observability/logger"
)

// Registry maps tenants to realm configurations. Lookups go through the
// cache; the realms table is the source of truth. Cache failures never
// fail the read path.
type Registry struct {
	repo        Repository
	cache       cache.Store
	provider    *idp.Client
	adapters    *idp.Adapters
	secrets     *SecretCipher
	auditLogger audit.Logger

	realmTTL time.Duration

	mu            sync.RWMutex
	platformRealm *Config
}

// NewRegistry creates a realm registry
func NewRegistry(
	repo Repository,
	store cache.Store,
	provider *idp.Client,
	adapters *idp.Adapters,
	secrets *SecretCipher,
	auditLogger audit.Logger,
	realmTTL time.Duration,
) *Registry {
	return &Registry{
		repo:        repo,
		cache:       store,
		provider:    provider,
		adapters:    adapters,
		secrets:     secrets,
		auditLogger: auditLogger,
		realmTTL:    realmTTL,
	}
}

func tenantCacheKey(tenantID string) string {
	return "realm:tenant:" + tenantID
}

func idCacheKey(realmID string) string {
	return "realm:id:" + realmID
}

// RegisterPlatformRealm installs the platform-admin realm. In-memory
// only; the platform realm is configured at deploy time, not
// provisioned through the tenant flow.
func (r *Registry) RegisterPlatformRealm(config *Config) {
	config.ApplyDefaults()
	if config.ID == "" {
		config.ID = uuid.Must(uuid.NewV7()).String()
	}
	config.TenantID = nil
	config.Status = StatusActive

	r.mu.Lock()
	r.platformRealm = config
	r.mu.Unlock()
}

// ProviderClient exposes the shared provider admin client
func (r *Registry) ProviderClient() *idp.Client {
	return r.provider
}

// PlatformRealm returns the platform-admin realm, if registered
func (r *Registry) PlatformRealm() (*Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.platformRealm == nil {
		return nil, false
	}
	return r.platformRealm, true
}

// GetRealmByTenant resolves the active realm for a tenant
func (r *Registry) GetRealmByTenant(ctx context.Context, tenantID string) (*Config, error) {
	key := tenantCacheKey(tenantID)
	if cached := r.fromCache(ctx, key); cached != nil {
		return cached, nil
	}

	config, err := r.repo.GetActiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	r.toCache(ctx, key, config)
	return config, nil
}

// GetRealmByID resolves a realm by its id, including the platform realm
func (r *Registry) GetRealmByID(ctx context.Context, realmID string) (*Config, error) {
	r.mu.RLock()
	platform := r.platformRealm
	r.mu.RUnlock()
	if platform != nil && platform.ID == realmID {
		return platform, nil
	}

	key := idCacheKey(realmID)
	if cached := r.fromCache(ctx, key); cached != nil {
		return cached, nil
	}

	config, err := r.repo.GetByID(ctx, realmID)
	if err != nil {
		return nil, err
	}

	r.toCache(ctx, key, config)
	return config, nil
}

// CreateTenantRealm provisions a realm for a tenant: remote realm and
// default client first, then the database row. A failed provider call
// leaves no DB row; a partially created remote realm is cleaned up best
// effort. Retrying with the same (tenant, realm name) returns the
// existing realm.
func (r *Registry) CreateTenantRealm(ctx context.Context, tenantID string, config *Config) (*Config, error) {
	config.ApplyDefaults()
	// The (server URL, realm name) pair is the uniqueness key; an empty
	// server URL would collapse every realm into one bucket.
	if config.ServerURL == "" {
		config.ServerURL = r.provider.ServerURL()
	}
	if config.ClientID == "" {
		config.ClientID = config.RealmName + "-app"
	}

	if existing, err := r.repo.GetActiveByTenant(ctx, tenantID); err == nil {
		if existing.RealmName == config.RealmName {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: tenant %s already has an active realm", ErrRealmConflict, tenantID)
	}
	if _, err := r.repo.GetByServerAndName(ctx, config.ServerURL, config.RealmName); err == nil {
		return nil, fmt.Errorf("%w: realm %s already registered", ErrRealmConflict, config.RealmName)
	}

	rep := idp.DefaultRealmRepresentation(config.RealmName, config.DisplayName)
	if err := r.provider.CreateRealm(ctx, rep); err != nil {
		return nil, err
	}

	if err := r.provider.CreateClient(ctx, config.RealmName, idp.ClientRepresentation{
		ClientID:                  config.ClientID,
		Secret:                    config.ClientSecret,
		Enabled:                   true,
		DirectAccessGrantsEnabled: true,
		StandardFlowEnabled:       true,
		ServiceAccountsEnabled:    config.ClientSecret != "",
	}); err != nil {
		// Roll back the remote realm so a retry starts clean
		if cleanupErr := r.provider.DeleteRealm(ctx, config.RealmName); cleanupErr != nil {
			slog.ErrorContext(ctx, "failed to clean up partial realm",
				logger.Component("realm"), logger.RealmName(config.RealmName), logger.Error(cleanupErr))
		}
		return nil, err
	}

	sealed, err := r.secrets.Seal(config.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to seal client secret: %w", err)
	}

	now := time.Now()
	row := *config
	row.ID = uuid.Must(uuid.NewV7()).String()
	row.TenantID = &tenantID
	row.ClientSecret = sealed
	row.Status = StatusActive
	row.CreatedAt = now
	row.UpdatedAt = now

	if err := r.repo.Create(ctx, &row); err != nil {
		return nil, err
	}

	r.invalidate(ctx, &row)

	r.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRealmCreated,
		TenantID: tenantID,
		RealmID:  row.ID,
		Resource: row.RealmName,
	})

	result := row
	result.ClientSecret = config.ClientSecret
	return &result, nil
}

// UpdateRealm applies settings to a realm and invalidates its cache
func (r *Registry) UpdateRealm(ctx context.Context, realmID string, settings Settings) (*Config, error) {
	config, err := r.repo.GetByID(ctx, realmID)
	if err != nil {
		return nil, err
	}

	if settings.DisplayName != nil {
		config.DisplayName = *settings.DisplayName
	}
	if settings.ClientID != nil {
		config.ClientID = *settings.ClientID
	}
	if settings.ClientSecret != nil {
		sealed, err := r.secrets.Seal(*settings.ClientSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to seal client secret: %w", err)
		}
		config.ClientSecret = sealed
	}
	if len(settings.SigningAlgorithms) > 0 {
		config.SigningAlgorithms = settings.SigningAlgorithms
	}
	if settings.ExpectedAudience != nil {
		config.ExpectedAudience = *settings.ExpectedAudience
	}
	if settings.ExpectedIssuer != nil {
		config.ExpectedIssuer = *settings.ExpectedIssuer
	}
	if settings.PublicKeyTTL != nil {
		config.PublicKeyTTL = *settings.PublicKeyTTL
	}
	config.UpdatedAt = time.Now()

	if err := r.repo.Update(ctx, config); err != nil {
		return nil, err
	}

	r.invalidate(ctx, config)
	r.adapters.Drop(realmID)

	r.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRealmUpdated,
		RealmID:  realmID,
		Resource: config.RealmName,
	})
	return config, nil
}

// DisableRealm soft-disables a realm; tokens from it stop validating
// once the cache entry expires or is invalidated here.
func (r *Registry) DisableRealm(ctx context.Context, realmID string) error {
	config, err := r.repo.GetByID(ctx, realmID)
	if err != nil {
		return err
	}

	if err := r.repo.SetStatus(ctx, realmID, StatusDisabled); err != nil {
		return err
	}

	r.invalidate(ctx, config)
	r.adapters.Drop(realmID)

	r.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRealmDisabled,
		RealmID:  realmID,
		Resource: config.RealmName,
	})
	return nil
}

// ListRealms returns all registered realms
func (r *Registry) ListRealms(ctx context.Context) ([]*Config, error) {
	return r.repo.List(ctx)
}

// AdapterFor returns the provider adapter for a realm, with the client
// secret opened for use.
func (r *Registry) AdapterFor(ctx context.Context, config *Config) (*idp.RealmClient, error) {
	secret, err := r.secrets.Open(ctx, config.ClientSecret)
	if err != nil {
		return nil, err
	}
	return r.adapters.For(config.ID, config.RealmName, config.ClientID, secret), nil
}

func (r *Registry) fromCache(ctx context.Context, key string) *Config {
	val, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "realm cache read failed", logger.Component("realm"), logger.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	var config Config
	if err := json.Unmarshal([]byte(val), &config); err != nil {
		return nil
	}
	return &config
}

func (r *Registry) toCache(ctx context.Context, key string, config *Config) {
	data, err := json.Marshal(config)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, string(data), r.realmTTL); err != nil {
		slog.WarnContext(ctx, "realm cache write failed", logger.Component("realm"), logger.Error(err))
	}
}

func (r *Registry) invalidate(ctx context.Context, config *Config) {
	keys := []string{idCacheKey(config.ID)}
	if config.TenantID != nil {
		keys = append(keys, tenantCacheKey(*config.TenantID))
	}
	if err := r.cache.Delete(ctx, keys...); err != nil {
		slog.WarnContext(ctx, "realm cache invalidation failed", logger.Component("realm"), logger.Error(err))
	}
}

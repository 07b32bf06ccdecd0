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

package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/trustgate/trustgate/internal/authctx"
	"github.com/trustgate/trustgate/internal/authz"
	"github.com/trustgate/trustgate/internal/cache"
	"github.com/trustgate/trustgate/internal/guest"
	"github.com/trustgate/trustgate/internal/identity"
	"github.com/trustgate/trustgate/internal/observability/logger"
	"github.com/trustgate/trustgate/internal/observability/metrics"
	"github.com/trustgate/trustgate/internal/realm"
	"github.com/trustgate/trustgate/internal/token"
)

// GuestSessionHeader carries the client guest handle
const GuestSessionHeader = "X-Guest-Session"

// Pipeline assembles the per-request authentication flow: resolve
// tenant to realm, validate the bearer token, map the subject to an
// internal user, attach roles and permissions.
type Pipeline struct {
	realms     *realm.Registry
	validator  *token.Validator
	mapper     *identity.Mapper
	authorizer *authz.Service
	guests     *guest.Service
	cache      cache.Store
	metrics    *metrics.AuthMetrics
	strategy   token.Strategy
	ctxTTL     time.Duration
}

// NewPipeline creates the request authentication pipeline
func NewPipeline(
	realms *realm.Registry,
	validator *token.Validator,
	mapper *identity.Mapper,
	authorizer *authz.Service,
	guests *guest.Service,
	store cache.Store,
	authMetrics *metrics.AuthMetrics,
	strategy token.Strategy,
	ctxTTL time.Duration,
) *Pipeline {
	return &Pipeline{
		realms:     realms,
		validator:  validator,
		mapper:     mapper,
		authorizer: authorizer,
		guests:     guests,
		cache:      store,
		metrics:    authMetrics,
		strategy:   strategy,
		ctxTTL:     ctxTTL,
	}
}

// bearerToken extracts the bearer credential, empty when absent
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// resolveRealm picks the tenant realm, or the platform realm for
// platform-scoped requests.
func (p *Pipeline) resolveRealm(ctx context.Context, tenantID string) (*realm.Config, error) {
	if tenantID != "" {
		return p.realms.GetRealmByTenant(ctx, tenantID)
	}
	if cfg, ok := p.realms.PlatformRealm(); ok {
		return cfg, nil
	}
	return nil, realm.ErrRealmNotConfigured
}

// Authenticate validates the bearer token and returns the full
// AuthContext. critical forces introspection and bypasses the context
// cache so revocation takes effect immediately.
func (p *Pipeline) Authenticate(ctx context.Context, tokenStr, tenantID string, critical bool) (*authctx.AuthContext, error) {
	hash := token.ShortHash(tokenStr)

	if !critical {
		if ac := p.fromCache(ctx, hash); ac != nil {
			return ac, nil
		}
		p.metrics.RecordCacheMiss(ctx, "authctx")
	}

	cfg, err := p.resolveRealm(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !cfg.IsActive() {
		return nil, realm.ErrRealmDisabled
	}

	strategy := p.strategy
	if critical {
		strategy = token.StrategyIntrospection
	}
	result, err := p.validator.Validate(ctx, tokenStr, cfg, strategy)
	if err != nil {
		p.metrics.RecordValidation(ctx, string(strategy), false)
		return nil, err
	}
	p.metrics.RecordValidation(ctx, result.Method, true)

	var tenantRef *string
	if tenantID != "" {
		tenantRef = &tenantID
	}
	user, err := p.mapper.MapExternalToInternal(ctx, cfg.RealmName, result.Claims.Subject, tenantRef, result.Claims)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, identity.ErrUserDisabled
	}
	if tenantID != "" {
		if err := p.mapper.CheckAccess(ctx, user, tenantID); err != nil {
			return nil, err
		}
	}

	summary, err := p.authorizer.GetSummary(ctx, user.ID, tenantRef)
	if err != nil {
		return nil, err
	}

	ac := &authctx.AuthContext{
		UserID:           user.ID,
		SubjectID:        result.Claims.Subject,
		RealmID:          cfg.ID,
		TenantID:         tenantRef,
		Email:            user.Email,
		Username:         user.Username,
		DisplayName:      user.DisplayName,
		AuthenticatedAt:  time.Now(),
		SessionID:        result.Claims.SessionState,
		Roles:            summary.Roles,
		Permissions:      summary.Permissions,
		Scopes:           result.Claims.Scopes(),
		ValidationMethod: result.Method,
		Claims:           result.Claims.Map(),
		Metadata:         user.Metadata,
	}
	if result.Claims.ExpiresAt != nil {
		ac.ExpiresAt = result.Claims.ExpiresAt.Time
	}

	if !critical {
		p.toCache(ctx, hash, ac)
	}
	return ac, nil
}

// fromCache resolves a cached AuthContext via the token-hash pointer.
// The pointer indirection keeps the record under the user's key prefix
// so per-user invalidation can drop it by pattern.
func (p *Pipeline) fromCache(ctx context.Context, hash string) *authctx.AuthContext {
	ptr, ok, err := p.cache.Get(ctx, "authctx:token:"+hash)
	if err != nil || !ok {
		return nil
	}
	val, ok, err := p.cache.Get(ctx, ptr)
	if err != nil || !ok {
		return nil
	}
	ac, err := authctx.Decode([]byte(val))
	if err != nil {
		return nil
	}
	if !time.Now().Before(ac.ExpiresAt) {
		return nil
	}
	return ac
}

// toCache stores the AuthContext for the remaining token life, capped
// by the configured context TTL.
func (p *Pipeline) toCache(ctx context.Context, hash string, ac *authctx.AuthContext) {
	ttl := p.ctxTTL
	if remaining := time.Until(ac.ExpiresAt); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}
	data, err := ac.Encode()
	if err != nil {
		return
	}
	key := fmt.Sprintf("authctx:%s:%s", ac.UserID, hash)
	if err := p.cache.Set(ctx, key, string(data), ttl); err != nil {
		slog.WarnContext(ctx, "auth context cache write failed", logger.Component("pipeline"), logger.Error(err))
		return
	}
	if err := p.cache.Set(ctx, "authctx:token:"+hash, key, ttl); err != nil {
		slog.WarnContext(ctx, "auth context pointer write failed", logger.Component("pipeline"), logger.Error(err))
	}
}

// RequireAuth authenticates the bearer token and enforces that the user
// holds every listed permission. 401 without a valid token, 403 without
// the permissions.
func (p *Pipeline) RequireAuth(permissions ...string) func(http.Handler) http.Handler {
	return p.require(false, permissions)
}

// RequireCritical is RequireAuth with introspection forced, for
// endpoints where a revoked token must never pass.
func (p *Pipeline) RequireCritical(permissions ...string) func(http.Handler) http.Handler {
	return p.require(true, permissions)
}

func (p *Pipeline) require(critical bool, permissions []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerToken(r)
			if tokenStr == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				respondError(w, http.StatusUnauthorized, "missing_token", "authorization required")
				return
			}

			ctx := r.Context()
			ac, err := p.Authenticate(ctx, tokenStr, GetTenantID(ctx), critical)
			if err != nil {
				slog.InfoContext(ctx, "authentication failed",
					logger.Path(r.URL.Path),
					logger.TokenHash(token.ShortHash(tokenStr)),
					logger.Error(err))
				respondDomainError(w, err)
				return
			}

			if len(permissions) > 0 {
				if err := p.authorizer.CheckPermission(ctx, ac.UserID, ac.TenantID, permissions...); err != nil {
					p.metrics.Denials.Add(ctx, 1)
					if errors.Is(err, authz.ErrPermissionDenied) {
						// The caller is authenticated, so naming the
						// missing codes leaks nothing.
						missing, mErr := p.authorizer.MissingPermissions(ctx, ac.UserID, ac.TenantID, permissions...)
						if mErr == nil && len(missing) > 0 {
							respondErrorDetails(w, http.StatusForbidden, "forbidden",
								"insufficient permissions", map[string]any{"missing_permissions": missing})
							return
						}
					}
					respondDomainError(w, err)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithAuthContext(ctx, ac)))
		})
	}
}

// AllowGuest authenticates a bearer token when present, otherwise
// resolves or creates a guest session. A token that fails validation
// falls through to guest handling instead of failing the request; the
// endpoint is public either way. Anonymous traffic is rate limited per
// IP and per session.
func (p *Pipeline) AllowGuest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if tokenStr := bearerToken(r); tokenStr != "" {
			ac, err := p.Authenticate(ctx, tokenStr, GetTenantID(ctx), false)
			if err == nil {
				next.ServeHTTP(w, r.WithContext(WithAuthContext(ctx, ac)))
				return
			}
			slog.InfoContext(ctx, "token rejected on guest-eligible endpoint, continuing as guest",
				logger.Path(r.URL.Path),
				logger.TokenHash(token.ShortHash(tokenStr)),
				logger.Error(err))
		}

		session, created, err := p.guests.ResolveOrCreate(ctx,
			r.Header.Get(GuestSessionHeader), clientIP(r), r.UserAgent(), tenantRef(ctx))
		if err != nil {
			if errors.Is(err, guest.ErrRateLimited) {
				p.metrics.RateLimitHits.Add(ctx, 1)
			}
			respondDomainError(w, err)
			return
		}
		if created {
			p.metrics.GuestSessions.Add(ctx, 1)
			w.Header().Set(GuestSessionHeader, session.Handle())
		}
		next.ServeHTTP(w, r.WithContext(WithGuestSession(ctx, session)))
	})
}

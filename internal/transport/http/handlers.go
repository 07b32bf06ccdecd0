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
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/trustgate/trustgate/internal/audit"
	"github.com/trustgate/trustgate/internal/authz"
	"github.com/trustgate/trustgate/internal/guest"
	"github.com/trustgate/trustgate/internal/identity"
	"github.com/trustgate/trustgate/internal/idp"
	"github.com/trustgate/trustgate/internal/observability/logger"
	"github.com/trustgate/trustgate/internal/realm"
	"github.com/trustgate/trustgate/internal/token"
)

// Handler carries the domain services the HTTP surface delegates to
type Handler struct {
	realms      *realm.Registry
	validator   *token.Validator
	mapper      *identity.Mapper
	authorizer  *authz.Service
	guests      *guest.Service
	pipeline    *Pipeline
	auditLogger audit.Logger
}

// NewHandler creates the HTTP handler
func NewHandler(
	realms *realm.Registry,
	validator *token.Validator,
	mapper *identity.Mapper,
	authorizer *authz.Service,
	guests *guest.Service,
	pipeline *Pipeline,
	auditLogger audit.Logger,
) *Handler {
	return &Handler{
		realms:      realms,
		validator:   validator,
		mapper:      mapper,
		authorizer:  authorizer,
		guests:      guests,
		pipeline:    pipeline,
		auditLogger: auditLogger,
	}
}

// HealthCheck reports liveness
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// adapter resolves the realm adapter for the request's tenant
func (h *Handler) adapter(r *http.Request) (*idp.RealmClient, *realm.Config, error) {
	ctx := r.Context()
	var cfg *realm.Config
	var err error
	if tenantID := GetTenantID(ctx); tenantID != "" {
		cfg, err = h.realms.GetRealmByTenant(ctx, tenantID)
	} else {
		platform, ok := h.realms.PlatformRealm()
		if !ok {
			return nil, nil, realm.ErrRealmNotConfigured
		}
		cfg = platform
	}
	if err != nil {
		return nil, nil, err
	}
	if !cfg.IsActive() {
		return nil, nil, realm.ErrRealmDisabled
	}
	adapter, err := h.realms.AdapterFor(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return adapter, cfg, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login performs the credential flow against the tenant's realm
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	ctx := r.Context()
	adapter, cfg, err := h.adapter(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	bundle, err := adapter.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		h.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			TenantID: GetTenantID(ctx),
			RealmID:  cfg.ID,
			IP:       clientIP(r),
			Metadata: map[string]any{"username": req.Username},
		})
		respondDomainError(w, err)
		return
	}

	// Sync the profile and warm the permission caches so the first
	// authenticated request does not pay the cold path.
	if claims, err := token.ParseUnverifiedClaims(bundle.AccessToken); err == nil {
		tenant := tenantRef(ctx)
		if user, err := h.mapper.UpsertFromClaims(ctx, cfg.RealmName, tenant, claims); err == nil {
			h.authorizer.WarmUser(ctx, user.ID, tenant)
		} else {
			slog.WarnContext(ctx, "profile sync on login failed", logger.Component("http"), logger.Error(err))
		}
	}

	h.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginSuccess,
		TenantID: GetTenantID(ctx),
		RealmID:  cfg.ID,
		IP:       clientIP(r),
		Metadata: map[string]any{"username": req.Username},
	})
	respondJSON(w, http.StatusOK, bundle)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a refresh token for a new bundle
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	ctx := r.Context()
	adapter, cfg, err := h.adapter(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	bundle, err := adapter.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		h.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeTokenRejected,
			TenantID: GetTenantID(ctx),
			RealmID:  cfg.ID,
			IP:       clientIP(r),
		})
		respondDomainError(w, err)
		return
	}

	h.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenRefreshed,
		TenantID: GetTenantID(ctx),
		RealmID:  cfg.ID,
	})
	respondJSON(w, http.StatusOK, bundle)
}

// Logout ends the provider session and marks the presented access
// token revoked so cached validations stop honoring it.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	ctx := r.Context()
	adapter, cfg, err := h.adapter(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if err := adapter.Logout(ctx, req.RefreshToken); err != nil {
		respondDomainError(w, err)
		return
	}
	if access := bearerToken(r); access != "" {
		h.validator.MarkRevoked(ctx, access)
	}

	h.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLogout,
		TenantID: GetTenantID(ctx),
		RealmID:  cfg.ID,
	})
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword triggers a reset email. The response is identical
// whether or not the address exists; existence must not leak.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	ctx := r.Context()
	adapter, cfg, err := h.adapter(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	_ = adapter

	// The reset runs after the response; the generic reply must not
	// vary with lookup latency.
	bg := context.WithoutCancel(ctx)
	go func() {
		user, err := h.realms.ProviderClient().GetUserByEmail(bg, cfg.RealmName, req.Email)
		if err != nil {
			return
		}
		if err := h.realms.ProviderClient().SendRequiredActionsEmail(bg, cfg.RealmName, user.ID, []string{"UPDATE_PASSWORD"}); err != nil {
			slog.WarnContext(bg, "password reset email failed", logger.Component("http"), logger.Error(err))
		}
	}()

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"detail": "if the address exists, a reset email has been sent",
	})
}

// VerifyEmail sends the provider's verification email to the caller
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	ac := GetAuthContext(r.Context())
	_, cfg, err := h.adapter(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if err := h.realms.ProviderClient().SendVerifyEmail(r.Context(), cfg.RealmName, ac.SubjectID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "verification_sent"})
}

// DeleteTOTP removes the caller's TOTP credential
func (h *Handler) DeleteTOTP(w http.ResponseWriter, r *http.Request) {
	ac := GetAuthContext(r.Context())
	_, cfg, err := h.adapter(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if err := h.realms.ProviderClient().RemoveTOTP(r.Context(), cfg.RealmName, ac.SubjectID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "totp_removed"})
}

// Session reports who the caller is: the authenticated identity when a
// valid token was presented, otherwise the guest session attached by
// the pipeline.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if ac := GetAuthContext(ctx); ac != nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"user_id":       ac.UserID,
			"tenant_id":     ac.Tenant(),
			"roles":         ac.Roles,
			"expires_at":    ac.ExpiresAt.UTC().Format(time.RFC3339),
		})
		return
	}

	session := GetGuestSession(ctx)
	if session == nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"authenticated": false,
		"session_id":    session.ID,
		"request_count": session.RequestCount,
		"expires_at":    session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Me returns the caller's authentication context
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	ac := GetAuthContext(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":      ac.UserID,
		"subject_id":   ac.SubjectID,
		"tenant_id":    ac.Tenant(),
		"email":        ac.Email,
		"username":     ac.Username,
		"display_name": ac.DisplayName,
		"roles":        ac.Roles,
		"permissions":  ac.Permissions,
		"expires_at":   ac.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

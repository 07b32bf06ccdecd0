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
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trustgate/trustgate/internal/identity"
	"github.com/trustgate/trustgate/internal/realm"
)

type createRealmRequest struct {
	TenantID         string   `json:"tenant_id"`
	RealmName        string   `json:"realm_name"`
	DisplayName      string   `json:"display_name"`
	ClientID         string   `json:"client_id,omitempty"`
	ClientSecret     string   `json:"client_secret,omitempty"`
	SigningAlgs      []string `json:"signing_algorithms,omitempty"`
	ExpectedAudience string   `json:"expected_audience,omitempty"`
}

type realmResponse struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenant_id,omitempty"`
	RealmName        string    `json:"realm_name"`
	DisplayName      string    `json:"display_name"`
	ServerURL        string    `json:"server_url"`
	ClientID         string    `json:"client_id"`
	SigningAlgs      []string  `json:"signing_algorithms"`
	ExpectedAudience string    `json:"expected_audience,omitempty"`
	ExpectedIssuer   string    `json:"expected_issuer,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// toRealmResponse strips the sealed secret from the API shape
func toRealmResponse(cfg *realm.Config) realmResponse {
	resp := realmResponse{
		ID:               cfg.ID,
		RealmName:        cfg.RealmName,
		DisplayName:      cfg.DisplayName,
		ServerURL:        cfg.ServerURL,
		ClientID:         cfg.ClientID,
		SigningAlgs:      cfg.SigningAlgorithms,
		ExpectedAudience: cfg.ExpectedAudience,
		ExpectedIssuer:   cfg.ExpectedIssuer,
		Status:           string(cfg.Status),
		CreatedAt:        cfg.CreatedAt,
		UpdatedAt:        cfg.UpdatedAt,
	}
	if cfg.TenantID != nil {
		resp.TenantID = *cfg.TenantID
	}
	return resp
}

// CreateRealm provisions a tenant realm on the provider and records it
func (h *Handler) CreateRealm(w http.ResponseWriter, r *http.Request) {
	var req createRealmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TenantID == "" || req.RealmName == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "tenant_id and realm_name are required")
		return
	}

	cfg := &realm.Config{
		RealmName:         req.RealmName,
		DisplayName:       req.DisplayName,
		ClientID:          req.ClientID,
		ClientSecret:      req.ClientSecret,
		SigningAlgorithms: req.SigningAlgs,
		ExpectedAudience:  req.ExpectedAudience,
	}
	created, err := h.realms.CreateTenantRealm(r.Context(), req.TenantID, cfg)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toRealmResponse(created))
}

// GetRealm returns one realm configuration
func (h *Handler) GetRealm(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.realms.GetRealmByID(r.Context(), chi.URLParam(r, "realmID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toRealmResponse(cfg))
}

// ListRealms returns all non-deleted realms
func (h *Handler) ListRealms(w http.ResponseWriter, r *http.Request) {
	configs, err := h.realms.ListRealms(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	out := make([]realmResponse, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, toRealmResponse(cfg))
	}
	respondJSON(w, http.StatusOK, map[string]any{"realms": out})
}

type updateRealmRequest struct {
	DisplayName      *string  `json:"display_name,omitempty"`
	ClientID         *string  `json:"client_id,omitempty"`
	ClientSecret     *string  `json:"client_secret,omitempty"`
	SigningAlgs      []string `json:"signing_algorithms,omitempty"`
	ExpectedAudience *string  `json:"expected_audience,omitempty"`
	ExpectedIssuer   *string  `json:"expected_issuer,omitempty"`
}

// UpdateRealm patches mutable realm settings
func (h *Handler) UpdateRealm(w http.ResponseWriter, r *http.Request) {
	var req updateRealmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	cfg, err := h.realms.UpdateRealm(r.Context(), chi.URLParam(r, "realmID"), realm.Settings{
		DisplayName:       req.DisplayName,
		ClientID:          req.ClientID,
		ClientSecret:      req.ClientSecret,
		SigningAlgorithms: req.SigningAlgs,
		ExpectedAudience:  req.ExpectedAudience,
		ExpectedIssuer:    req.ExpectedIssuer,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toRealmResponse(cfg))
}

// DisableRealm soft-disables a realm; its tokens stop validating but
// the configuration survives for re-enablement.
func (h *Handler) DisableRealm(w http.ResponseWriter, r *http.Request) {
	if err := h.realms.DisableRealm(r.Context(), chi.URLParam(r, "realmID")); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

type roleChangeRequest struct {
	Role      string     `json:"role"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// GrantUserRole assigns a role to a user in the request's scope
func (h *Handler) GrantUserRole(w http.ResponseWriter, r *http.Request) {
	var req roleChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Role == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "role is required")
		return
	}

	ctx := r.Context()
	ac := GetAuthContext(ctx)
	userID := chi.URLParam(r, "userID")
	if err := h.authorizer.GrantRole(ctx, userID, req.Role, tenantRef(ctx), ac.UserID, req.ExpiresAt); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "granted"})
}

// RevokeUserRole removes a role from a user in the request's scope
func (h *Handler) RevokeUserRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ac := GetAuthContext(ctx)
	userID := chi.URLParam(r, "userID")
	roleCode := chi.URLParam(r, "roleCode")
	if err := h.authorizer.RevokeRole(ctx, userID, roleCode, tenantRef(ctx), ac.UserID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

type grantAccessRequest struct {
	TenantID    string     `json:"tenant_id"`
	AccessLevel string     `json:"access_level"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// GrantTenantAccess allows a user from another realm into a tenant
func (h *Handler) GrantTenantAccess(w http.ResponseWriter, r *http.Request) {
	var req grantAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TenantID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "tenant_id is required")
		return
	}
	if req.AccessLevel == "" {
		req.AccessLevel = "member"
	}

	ctx := r.Context()
	ac := GetAuthContext(ctx)
	grant := &identity.AccessGrant{
		UserID:      chi.URLParam(r, "userID"),
		TenantID:    req.TenantID,
		AccessLevel: req.AccessLevel,
		GrantedBy:   ac.UserID,
		ExpiresAt:   req.ExpiresAt,
	}
	if err := h.mapper.GrantAccess(ctx, grant); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "granted", "grant_id": grant.ID})
}

// RevokeTenantAccess withdraws a cross-tenant grant
func (h *Handler) RevokeTenantAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ac := GetAuthContext(ctx)
	if err := h.mapper.RevokeAccess(ctx, chi.URLParam(r, "userID"), chi.URLParam(r, "tenantID"), ac.UserID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

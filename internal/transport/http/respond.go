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
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/trustgate/trustgate/internal/authz"
	"github.com/trustgate/trustgate/internal/guest"
	"github.com/trustgate/trustgate/internal/identity"
	"github.com/trustgate/trustgate/internal/idp"
	"github.com/trustgate/trustgate/internal/realm"
	"github.com/trustgate/trustgate/internal/token"
)

// errorBody is the wire shape of every error response. Timestamp is
// epoch seconds.
type errorBody struct {
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	Timestamp int64          `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondErrorDetails(w, status, code, message, nil)
}

func respondErrorDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	respondJSON(w, status, errorBody{
		Error:     code,
		Message:   message,
		Timestamp: time.Now().Unix(),
		Details:   details,
	})
}

func respondRateLimited(w http.ResponseWriter) {
	w.Header().Set("Retry-After", strconv.Itoa(int(guest.RetryAfter.Seconds())))
	respondError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests")
}

// respondDomainError maps domain errors to the HTTP taxonomy. Unknown
// errors become opaque 500s; internals never leak to clients.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		respondError(w, http.StatusUnauthorized, "token_expired", "token has expired")
	case errors.Is(err, token.ErrTokenRevoked):
		respondError(w, http.StatusUnauthorized, "token_revoked", "token has been revoked")
	case errors.Is(err, token.ErrInvalidToken), errors.Is(err, idp.ErrInvalidToken):
		respondError(w, http.StatusUnauthorized, "invalid_token", "token validation failed")
	case errors.Is(err, idp.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	case errors.Is(err, authz.ErrPermissionDenied), errors.Is(err, idp.ErrForbidden),
		errors.Is(err, identity.ErrNoGrant), errors.Is(err, identity.ErrGrantExpired):
		respondError(w, http.StatusForbidden, "forbidden", "insufficient permissions")
	case errors.Is(err, identity.ErrUserDisabled):
		respondError(w, http.StatusForbidden, "user_disabled", "user account is disabled")
	case errors.Is(err, realm.ErrRealmNotConfigured):
		respondError(w, http.StatusNotFound, "realm_not_found", "no realm configured for tenant")
	case errors.Is(err, realm.ErrRealmDisabled):
		respondError(w, http.StatusForbidden, "realm_disabled", "realm is disabled")
	case errors.Is(err, realm.ErrRealmConflict), errors.Is(err, idp.ErrConflict),
		errors.Is(err, identity.ErrUserConflict):
		respondError(w, http.StatusConflict, "conflict", "resource already exists")
	case errors.Is(err, idp.ErrRealmNotFound), errors.Is(err, idp.ErrUserNotFound),
		errors.Is(err, identity.ErrUserNotFound), errors.Is(err, authz.ErrRoleNotFound):
		respondError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, guest.ErrRateLimited):
		respondRateLimited(w)
	case errors.Is(err, idp.ErrExternalService), errors.Is(err, idp.ErrPublicKeyUnavailable):
		respondError(w, http.StatusBadGateway, "provider_unavailable", "identity provider unavailable")
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

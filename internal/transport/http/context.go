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

	"github.com/trustgate/trustgate/internal/authctx"
	"github.com/trustgate/trustgate/internal/guest"
)

type contextKey string

const (
	tenantIDKey contextKey = "tenant_id"
	authCtxKey  contextKey = "auth_context"
	guestKey    contextKey = "guest_session"
)

// WithTenantID stores the resolved tenant id on the request context
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// GetTenantID retrieves the resolved tenant id, empty for platform scope
func GetTenantID(ctx context.Context) string {
	if val, ok := ctx.Value(tenantIDKey).(string); ok {
		return val
	}
	return ""
}

// tenantRef returns the tenant id as the nullable form domain services take
func tenantRef(ctx context.Context) *string {
	if id := GetTenantID(ctx); id != "" {
		return &id
	}
	return nil
}

// WithAuthContext stores the authenticated identity on the request context
func WithAuthContext(ctx context.Context, ac *authctx.AuthContext) context.Context {
	return context.WithValue(ctx, authCtxKey, ac)
}

// GetAuthContext retrieves the authenticated identity, nil when anonymous
func GetAuthContext(ctx context.Context) *authctx.AuthContext {
	if val, ok := ctx.Value(authCtxKey).(*authctx.AuthContext); ok {
		return val
	}
	return nil
}

// WithGuestSession stores the guest session on the request context
func WithGuestSession(ctx context.Context, session *guest.Session) context.Context {
	return context.WithValue(ctx, guestKey, session)
}

// GetGuestSession retrieves the guest session, nil for authenticated requests
func GetGuestSession(ctx context.Context) *guest.Session {
	if val, ok := ctx.Value(guestKey).(*guest.Session); ok {
		return val
	}
	return nil
}

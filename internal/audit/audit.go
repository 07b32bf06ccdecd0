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

package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Event types
const (
	TypeLoginSuccess      = "login_success"
	TypeLoginFailed       = "login_failed"
	TypeTokenRefreshed    = "token_refreshed"
	TypeTokenRejected     = "token_rejected"
	TypeTokenRevoked      = "token_revoked"
	TypeLogout            = "logout"
	TypeRealmCreated      = "realm_created"
	TypeRealmUpdated      = "realm_updated"
	TypeRealmDisabled     = "realm_disabled"
	TypeUserProvisioned   = "user_provisioned"
	TypeRoleGranted       = "role_granted"
	TypeRoleRevoked       = "role_revoked"
	TypeAccessGranted     = "access_granted"
	TypeAccessRevoked     = "access_revoked"
	TypePermissionDenied  = "permission_denied"
	TypeGuestSession      = "guest_session_created"
	TypeRateLimitExceeded = "rate_limit_exceeded"
)

// Event represents an auditable action
type Event struct {
	Type      string
	TenantID  string
	RealmID   string
	ActorID   string
	Resource  string
	Metadata  map[string]any
	Timestamp time.Time
	IP        string
	UserAgent string
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event)
}

// SlogLogger implements Logger using slog
type SlogLogger struct{}

// NewSlogLogger creates a new audit logger
func NewSlogLogger() *SlogLogger {
	return &SlogLogger{}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		slog.String("audit_type", event.Type),
		slog.String("tenant_id", event.TenantID),
		slog.String("actor_id", event.ActorID),
		slog.String("resource", event.Resource),
		slog.Time("timestamp", event.Timestamp),
	}

	if event.RealmID != "" {
		attrs = append(attrs, slog.String("realm_id", event.RealmID))
	}
	if event.IP != "" {
		attrs = append(attrs, slog.String("ip_address", event.IP))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}

	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String("component", "audit"))...)
}

// isSecret checks if a key likely contains a secret
func isSecret(key string) bool {
	key = strings.ToLower(key)
	secrets := []string{"password", "secret", "token", "key", "hash", "credential", "authorization"}
	for _, s := range secrets {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

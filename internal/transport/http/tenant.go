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
	"net/http"
	"strings"
)

// Subdomains that never name a tenant
var reservedSubdomains = map[string]bool{
	"api":   true,
	"www":   true,
	"auth":  true,
	"admin": true,
}

// ResolveTenant extracts the tenant id from a request. Precedence:
// X-Tenant-Id header, host subdomain, /tenant/{id}/ path prefix,
// tenant_id query parameter. Empty means platform scope.
func ResolveTenant(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Tenant-Id")); id != "" {
		return id
	}
	if id := tenantFromHost(r.Host); id != "" {
		return id
	}
	if id := tenantFromPath(r.URL.Path); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("tenant_id"))
}

// tenantFromHost reads the leftmost label of a multi-label host,
// skipping reserved labels and bare or dotted IPs.
func tenantFromHost(host string) string {
	if host == "" {
		return ""
	}
	if idx := strings.LastIndex(host, ":"); idx != -1 && !strings.Contains(host[idx:], "]") {
		host = host[:idx]
	}
	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return ""
	}
	sub := labels[0]
	if sub == "" || reservedSubdomains[sub] || isNumericLabel(sub) {
		return ""
	}
	return sub
}

func tenantFromPath(path string) string {
	const prefix = "/tenant/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := path[len(prefix):]
	if idx := strings.Index(rest, "/"); idx != -1 {
		rest = rest[:idx]
	}
	return rest
}

func isNumericLabel(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// TenantMiddleware resolves the tenant once per request and stores it
// on the context for everything downstream.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := ResolveTenant(r); id != "" {
			r = r.WithContext(WithTenantID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTenant rejects requests that resolved no tenant
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetTenantID(r.Context()) == "" {
			respondError(w, http.StatusBadRequest, "tenant_required", "request must identify a tenant")
			return
		}
		next.ServeHTTP(w, r)
	})
}

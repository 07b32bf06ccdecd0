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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// CORSOptions configures the cross-origin policy for browser clients
type CORSOptions struct {
	AllowedOrigins []string
}

// NewRouter assembles the HTTP surface
func NewRouter(h *Handler, p *Pipeline, rateLimiter *RateLimiter, corsOpts CORSOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RateLimitMiddleware(rateLimiter, p.metrics))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   corsOpts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Tenant-Id", GuestSessionHeader},
		ExposedHeaders:   []string{GuestSessionHeader},
		AllowCredentials: true,
	}).Handler)
	r.Use(TenantMiddleware)

	r.Get("/health", h.HealthCheck)

	r.Route("/v1", func(r chi.Router) {
		// Public: serves authenticated callers and anonymous guests alike
		r.With(p.AllowGuest).Get("/session", h.Session)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)
			r.Post("/forgot-password", h.ForgotPassword)

			r.Group(func(r chi.Router) {
				r.Use(p.RequireAuth())
				r.Post("/logout", h.Logout)
				r.Post("/verify-email", h.VerifyEmail)
				r.Get("/me", h.Me)
			})

			// Credential removal must see revocations immediately
			r.With(p.RequireCritical()).Delete("/totp", h.DeleteTOTP)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Route("/realms", func(r chi.Router) {
				r.With(p.RequireAuth("realms:read")).Get("/", h.ListRealms)
				r.With(p.RequireAuth("realms:create")).Post("/", h.CreateRealm)
				r.Route("/{realmID}", func(r chi.Router) {
					r.With(p.RequireAuth("realms:read")).Get("/", h.GetRealm)
					r.With(p.RequireAuth("realms:update")).Patch("/", h.UpdateRealm)
					r.With(p.RequireCritical("realms:delete")).Delete("/", h.DisableRealm)
				})
			})

			r.Route("/users/{userID}", func(r chi.Router) {
				r.With(p.RequireAuth("roles:grant")).Post("/roles", h.GrantUserRole)
				r.With(p.RequireAuth("roles:revoke")).Delete("/roles/{roleCode}", h.RevokeUserRole)
				r.With(p.RequireAuth("tenant-access:grant")).Post("/tenant-access", h.GrantTenantAccess)
				r.With(p.RequireAuth("tenant-access:revoke")).Delete("/tenant-access/{tenantID}", h.RevokeTenantAccess)
			})
		})
	})

	return r
}

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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustgate/trustgate/internal/audit"
	"github.com/trustgate/trustgate/internal/authctx"
	"github.com/trustgate/trustgate/internal/cache"
	"github.com/trustgate/trustgate/internal/guest"
	"github.com/trustgate/trustgate/internal/observability/metrics"
	"github.com/trustgate/trustgate/internal/realm"
)

func newTestMetrics(t *testing.T) *metrics.AuthMetrics {
	t.Helper()
	m, err := metrics.New(context.Background(), metrics.Config{}, "test")
	require.NoError(t, err)
	return m
}

func testPipeline(t *testing.T, store cache.Store) *Pipeline {
	t.Helper()
	return &Pipeline{cache: store, metrics: newTestMetrics(t), ctxTTL: 5 * time.Minute}
}

// guestPipeline wires just enough of the pipeline for the public
// guest-eligible path: no platform realm, so any bearer token fails
// authentication and falls through.
func guestPipeline(t *testing.T, store cache.Store, cfg guest.Config) *Pipeline {
	t.Helper()
	p := testPipeline(t, store)
	p.realms = realm.NewRegistry(nil, store, nil, nil, nil, audit.NewSlogLogger(), time.Hour)
	p.guests = guest.NewService(store, audit.NewSlogLogger(), cfg)
	return p
}

func defaultGuestConfig() guest.Config {
	return guest.Config{
		SessionTTL:   time.Hour,
		IPLimit:      100,
		SessionLimit: 300,
		FailOpen:     true,
	}
}

func TestAuthContextCacheRoundTrip(t *testing.T) {
	store := cache.NewMemory()
	p := testPipeline(t, store)
	ctx := context.Background()

	ac := &authctx.AuthContext{
		UserID:    "user-1",
		SubjectID: "sub-1",
		ExpiresAt: time.Now().Add(time.Hour),
		Roles:     []string{"member"},
	}
	p.toCache(ctx, "tokhash", ac)

	got := p.fromCache(ctx, "tokhash")
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, []string{"member"}, got.Roles)

	assert.Nil(t, p.fromCache(ctx, "otherhash"))
}

func TestAuthContextCacheUserInvalidation(t *testing.T) {
	store := cache.NewMemory()
	p := testPipeline(t, store)
	ctx := context.Background()

	ac := &authctx.AuthContext{UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}
	p.toCache(ctx, "tokhash", ac)

	// the record lives under the user's prefix; dropping it by pattern
	// must defeat the token-hash pointer too
	require.NoError(t, store.DeletePattern(ctx, "authctx:user-1:*"))
	assert.Nil(t, p.fromCache(ctx, "tokhash"))
}

func TestAllowGuestCreatesAndResumesSession(t *testing.T) {
	p := guestPipeline(t, cache.NewMemory(), defaultGuestConfig())
	var seen *guest.Session
	handler := p.AllowGuest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetGuestSession(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	r.RemoteAddr = "203.0.113.9:1234"
	handler.ServeHTTP(rec, r)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	handle := rec.Header().Get(GuestSessionHeader)
	require.NotEmpty(t, handle, "new sessions hand the handle back")

	// echoing the handle resumes the same session
	first := seen.ID
	rec = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	r.RemoteAddr = "203.0.113.9:1234"
	r.Header.Set(GuestSessionHeader, handle)
	handler.ServeHTTP(rec, r)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, first, seen.ID)
	assert.Empty(t, rec.Header().Get(GuestSessionHeader), "resumed sessions are not re-announced")
}

func TestAllowGuestFallsThroughOnAuthFailure(t *testing.T) {
	p := guestPipeline(t, cache.NewMemory(), defaultGuestConfig())
	var ac *authctx.AuthContext
	var session *guest.Session
	handler := p.AllowGuest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac = GetAuthContext(r.Context())
		session = GetGuestSession(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	r.RemoteAddr = "203.0.113.9:1234"
	r.Header.Set("Authorization", "Bearer not-a-valid-token")
	handler.ServeHTTP(rec, r)

	// a rejected token on a public endpoint degrades to guest, never 401
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, ac)
	require.NotNil(t, session)
	assert.NotEmpty(t, rec.Header().Get(GuestSessionHeader))
}

func TestAllowGuestRateLimited(t *testing.T) {
	cfg := defaultGuestConfig()
	cfg.IPLimit = 1
	p := guestPipeline(t, cache.NewMemory(), cfg)
	handler := p.AllowGuest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	r.RemoteAddr = "203.0.113.9:1234"
	handler.ServeHTTP(rec, r)
	require.Equal(t, http.StatusNoContent, rec.Code)
	handle := rec.Header().Get(GuestSessionHeader)

	rec = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	r.RemoteAddr = "203.0.113.9:1234"
	r.Header.Set(GuestSessionHeader, handle)
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3600", rec.Header().Get("Retry-After"))
}

func TestGuestSessionEndpoint(t *testing.T) {
	store := cache.NewMemory()
	p := guestPipeline(t, store, defaultGuestConfig())
	h := NewHandler(nil, nil, nil, nil, p.guests, p, audit.NewSlogLogger())
	router := NewRouter(h, p, NewRateLimiter(100, 100), CORSOptions{})

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "http://example.com/v1/session", nil)
	r.RemoteAddr = "203.0.113.9:1234"
	router.ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(GuestSessionHeader))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["authenticated"])
	assert.NotEmpty(t, body["session_id"])
}

func TestAuthContextCacheSkipsExpiredTokens(t *testing.T) {
	store := cache.NewMemory()
	p := testPipeline(t, store)
	ctx := context.Background()

	ac := &authctx.AuthContext{UserID: "user-1", ExpiresAt: time.Now().Add(-time.Minute)}
	p.toCache(ctx, "tokhash", ac)

	assert.Nil(t, p.fromCache(ctx, "tokhash"))
	_, ok, err := store.Get(ctx, "authctx:token:tokhash")
	require.NoError(t, err)
	assert.False(t, ok, "nothing written for an already-expired token")
}

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

package guest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/trustgate/trustgate/internal/audit"
	"github.com/trustgate/trustgate/internal/cache"
	"github.com/trustgate/trustgate/internal/observability/logger"
)

// RetryAfter is the client backoff hint returned with rate-limit errors
const RetryAfter = time.Hour

// Config tunes guest session behavior
type Config struct {
	SessionTTL   time.Duration
	IPLimit      int64
	SessionLimit int64
	FailOpen     bool
}

// Service creates and resolves guest sessions and enforces their hourly
// request budgets. Sessions live only in the cache; losing the cache
// loses the sessions, which is acceptable for anonymous state.
type Service struct {
	cache       cache.Store
	auditLogger audit.Logger
	cfg         Config
	now         func() time.Time
}

// NewService creates a guest session service
func NewService(store cache.Store, auditLogger audit.Logger, cfg Config) *Service {
	return &Service{cache: store, auditLogger: auditLogger, cfg: cfg, now: time.Now}
}

func sessionKey(id string) string {
	return "guest:session:" + id
}

// Create mints a fresh session for an IP, charging the IP budget first
func (s *Service) Create(ctx context.Context, ip, userAgent string, tenantID *string) (*Session, error) {
	if err := s.AllowIP(ctx, ip); err != nil {
		return nil, err
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	session := &Session{
		ID:           uuid.Must(uuid.NewV7()).String(),
		Token:        token,
		TenantID:     tenantID,
		IP:           ip,
		UserAgent:    userAgent,
		RequestCount: 1,
		CreatedAt:    now,
		LastSeenAt:   now,
		ExpiresAt:    now.Add(s.cfg.SessionTTL),
	}
	// Count the creating request against the session budget too, so the
	// counter and request-count stay aligned across later resolves.
	if err := s.AllowSession(ctx, session.ID); err != nil {
		return nil, err
	}
	if err := s.store(ctx, session); err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeGuestSession,
		IP:       ip,
		Resource: session.ID,
	})
	return session, nil
}

// Resolve validates a client handle and returns the live session,
// bumping its request count and sliding its expiry. The token compare
// is constant-time.
func (s *Service) Resolve(ctx context.Context, handle, ip string) (*Session, error) {
	id, token, err := ParseHandle(handle)
	if err != nil {
		return nil, err
	}

	val, ok, err := s.cache.Get(ctx, sessionKey(id))
	if err != nil {
		return nil, fmt.Errorf("guest session lookup failed: %w", err)
	}
	if !ok {
		return nil, ErrSessionNotFound
	}

	var session Session
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("failed to decode guest session: %w", err)
	}
	if !tokensEqual(session.Token, token) {
		return nil, ErrSessionNotFound
	}
	now := s.now()
	if session.Expired(now) {
		return nil, ErrSessionExpired
	}

	// Every guest request is charged against both budgets; a returning
	// session must not bypass its IP's allowance.
	if err := s.AllowIP(ctx, ip); err != nil {
		return nil, err
	}
	if err := s.AllowSession(ctx, session.ID); err != nil {
		return nil, err
	}

	session.RequestCount++
	session.LastSeenAt = now
	session.ExpiresAt = now.Add(s.cfg.SessionTTL)
	session.IP = ip
	if err := s.store(ctx, &session); err != nil {
		slog.WarnContext(ctx, "guest session refresh failed",
			logger.Component("guest"), logger.SessionID(session.ID), logger.Error(err))
	}
	return &session, nil
}

// ResolveOrCreate returns the session for a handle when present and
// valid, otherwise a fresh one. Expired or forged handles roll over to
// a new session rather than failing an anonymous request.
func (s *Service) ResolveOrCreate(ctx context.Context, handle, ip, userAgent string, tenantID *string) (*Session, bool, error) {
	if handle != "" {
		session, err := s.Resolve(ctx, handle, ip)
		if err == nil {
			return session, false, nil
		}
		if errors.Is(err, ErrRateLimited) {
			return nil, false, err
		}
	}
	session, err := s.Create(ctx, ip, userAgent, tenantID)
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// Delete drops a session
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, sessionKey(id))
}

// AllowIP charges one request against the hourly per-IP budget
func (s *Service) AllowIP(ctx context.Context, ip string) error {
	return s.allow(ctx, "guest-rl:ip:"+ip, s.cfg.IPLimit)
}

// AllowSession charges one request against the hourly per-session budget
func (s *Service) AllowSession(ctx context.Context, sessionID string) error {
	return s.allow(ctx, "guest-rl:session:"+sessionID, s.cfg.SessionLimit)
}

// allow enforces an hourly budget with a sliding window approximated
// from two fixed hour buckets: the current bucket counts in full, the
// previous one in proportion to its overlap with the trailing hour.
// Counter failures follow the fail-open policy.
func (s *Service) allow(ctx context.Context, prefix string, limit int64) error {
	if limit <= 0 {
		return nil
	}
	now := s.now().UTC()
	window := now.Truncate(time.Hour)
	key := fmt.Sprintf("%s:%d", prefix, window.Unix())
	prevKey := fmt.Sprintf("%s:%d", prefix, window.Add(-time.Hour).Unix())

	count, err := s.cache.Increment(ctx, key, 2*time.Hour)
	if err != nil {
		if s.cfg.FailOpen {
			slog.WarnContext(ctx, "rate limit counter unavailable, allowing request",
				logger.Component("guest"), logger.Error(err))
			return nil
		}
		return fmt.Errorf("%w: counter unavailable", ErrRateLimited)
	}

	var prev int64
	if val, ok, err := s.cache.Get(ctx, prevKey); err == nil && ok {
		prev, _ = strconv.ParseInt(val, 10, 64)
	}
	carry := 1 - float64(now.Sub(window))/float64(time.Hour)
	if float64(count)+float64(prev)*carry > float64(limit) {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeRateLimitExceeded,
			Resource: prefix,
			Metadata: map[string]any{"count": count, "limit": limit},
		})
		return ErrRateLimited
	}
	return nil
}

func (s *Service) store(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode guest session: %w", err)
	}
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		ttl = time.Minute
	}
	return s.cache.Set(ctx, sessionKey(session.ID), string(data), ttl)
}

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

package token

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/trustgate/trustgate/internal/cache"
	"github.com/trustgate/trustgate/internal/idp"
	"github.com/trustgate/trustgate/internal/observability/logger"
	"github.com/trustgate/trustgate/internal/realm"
)

// Domain errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")
)

// Strategy selects how a token is verified
type Strategy string

const (
	// StrategyLocal verifies the signature against the realm's cached
	// public key.
	StrategyLocal Strategy = "local"

	// StrategyIntrospection asks the provider whether the token is
	// active. Used for critical operations and revocation-sensitive
	// paths.
	StrategyIntrospection Strategy = "introspection"

	// StrategySmartFallback tries local first and falls back to
	// introspection on ambiguous failure.
	StrategySmartFallback Strategy = "smart-fallback"
)

// ParseStrategy validates a strategy name from configuration
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyLocal, StrategyIntrospection, StrategySmartFallback:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown validation strategy %q", s)
	}
}

// RealmServices is the slice of the realm registry the validator needs
type RealmServices interface {
	SigningKeyPEM(ctx context.Context, config *realm.Config) (string, error)
	AdapterFor(ctx context.Context, config *realm.Config) (*idp.RealmClient, error)
}

// Result is a verified claim set plus how it was verified
type Result struct {
	Claims *Claims
	Method string // local or introspection
}

// Validator verifies provider tokens against realm signing material or
// the provider introspection endpoint.
type Validator struct {
	realms        RealmServices
	cache         cache.Store
	clockSkew     time.Duration
	introspectTTL time.Duration
	now           func() time.Time
}

// NewValidator creates a token validator
func NewValidator(realms RealmServices, store cache.Store, clockSkew, introspectTTL time.Duration) *Validator {
	return &Validator{
		realms:        realms,
		cache:         store,
		clockSkew:     clockSkew,
		introspectTTL: introspectTTL,
		now:           time.Now,
	}
}

// ShortHash returns the cache identifier for a token. Token values are
// never used as keys or logged directly.
func ShortHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

// Validate verifies a token for a realm using the given strategy.
func (v *Validator) Validate(ctx context.Context, tokenStr string, config *realm.Config, strategy Strategy) (*Result, error) {
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}

	if v.isRevoked(ctx, tokenStr) {
		return nil, ErrTokenRevoked
	}

	switch strategy {
	case StrategyLocal:
		return v.validateLocal(ctx, tokenStr, config)
	case StrategyIntrospection:
		return v.validateIntrospection(ctx, tokenStr, config)
	case StrategySmartFallback:
		result, err := v.validateLocal(ctx, tokenStr, config)
		if err == nil {
			return result, nil
		}
		// Expiry is definitive; only ambiguous failures fall through,
		// and only when a confidential client can introspect.
		if errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenRevoked) {
			return nil, err
		}
		if config.ClientSecret == "" {
			return nil, err
		}
		result, introspectErr := v.validateIntrospection(ctx, tokenStr, config)
		if introspectErr != nil {
			return nil, err
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unknown validation strategy %q", strategy)
	}
}

// tokenHeader is the decoded JOSE header of a compact JWT
type tokenHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// peekHeader decodes the token header without verifying anything. The
// algorithm allow-list is checked before any key material is fetched.
func peekHeader(tokenStr string) (*tokenHeader, error) {
	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var header tokenHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, ErrInvalidToken
	}
	return &header, nil
}

func (v *Validator) validateLocal(ctx context.Context, tokenStr string, config *realm.Config) (*Result, error) {
	header, err := peekHeader(tokenStr)
	if err != nil {
		return nil, err
	}
	if !config.AllowsAlgorithm(header.Alg) {
		return nil, fmt.Errorf("%w: algorithm %s not permitted", ErrInvalidToken, header.Alg)
	}

	if !config.VerifySignature {
		return v.parseUnverified(tokenStr, config)
	}

	pemKey, err := v.realms.SigningKeyPEM(ctx, config)
	if err != nil {
		return nil, err
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, fmt.Errorf("%w: bad realm public key: %v", idp.ErrPublicKeyUnavailable, err)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(config.SigningAlgorithms),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithTimeFunc(v.now),
	}
	if config.VerifyIat {
		opts = append(opts, jwt.WithIssuedAt())
	}
	if config.VerifyAudience && config.ExpectedAudience != "" {
		opts = append(opts, jwt.WithAudience(config.ExpectedAudience))
	}
	if config.ExpectedIssuer != "" {
		opts = append(opts, jwt.WithIssuer(config.ExpectedIssuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return publicKey, nil
	}, opts...)
	if err != nil {
		return nil, mapJWTError(err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	// Token exactly at exp is expired; the library treats the boundary
	// as exclusive validity, which matches.
	if claims.ExpiresAt != nil && !v.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}

	return &Result{Claims: claims, Method: "local"}, nil
}

// parseUnverified extracts claims without signature verification, for
// realms explicitly configured with verify-signature off. Expiry is
// still enforced.
func (v *Validator) parseUnverified(tokenStr string, config *realm.Config) (*Result, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return nil, ErrInvalidToken
	}
	if config.VerifyExp && claims.ExpiresAt != nil && !v.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}
	return &Result{Claims: claims, Method: "local"}, nil
}

func (v *Validator) validateIntrospection(ctx context.Context, tokenStr string, config *realm.Config) (*Result, error) {
	hash := ShortHash(tokenStr)
	cacheKey := "introspect:" + hash

	var introspection *idp.Introspection
	if val, ok, err := v.cache.Get(ctx, cacheKey); err == nil && ok {
		cached := &idp.Introspection{}
		if err := json.Unmarshal([]byte(val), cached); err == nil {
			introspection = cached
		}
	}

	if introspection == nil {
		adapter, err := v.realms.AdapterFor(ctx, config)
		if err != nil {
			return nil, err
		}
		introspection, err = adapter.Introspect(ctx, tokenStr)
		if err != nil {
			return nil, err
		}
		v.cacheIntrospection(ctx, cacheKey, introspection)
	}

	if !introspection.Active {
		return nil, ErrInvalidToken
	}
	if introspection.Exp > 0 && !v.now().Before(time.Unix(introspection.Exp, 0)) {
		return nil, ErrTokenExpired
	}

	// The introspection response confirms liveness; the claim set still
	// comes from the token body.
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return nil, ErrInvalidToken
	}

	return &Result{Claims: claims, Method: "introspection"}, nil
}

// cacheIntrospection stores a response for the shorter of the
// configured TTL and the token's remaining life.
func (v *Validator) cacheIntrospection(ctx context.Context, key string, introspection *idp.Introspection) {
	ttl := v.introspectTTL
	if introspection.Exp > 0 {
		remaining := time.Until(time.Unix(introspection.Exp, 0))
		if remaining <= 0 {
			return
		}
		if remaining < ttl {
			ttl = remaining
		}
	}
	data, err := json.Marshal(introspection)
	if err != nil {
		return
	}
	if err := v.cache.Set(ctx, key, string(data), ttl); err != nil {
		slog.WarnContext(ctx, "introspection cache write failed", logger.Component("token"), logger.Error(err))
	}
}

// MarkRevoked records a token as revoked until it would have expired
// anyway. Every strategy honors the mark.
func (v *Validator) MarkRevoked(ctx context.Context, tokenStr string) error {
	ttl := time.Hour
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err == nil && claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time); remaining > 0 {
			ttl = remaining
		}
	}
	return v.cache.Set(ctx, "revoked:"+ShortHash(tokenStr), "1", ttl)
}

func (v *Validator) isRevoked(ctx context.Context, tokenStr string) bool {
	_, ok, err := v.cache.Get(ctx, "revoked:"+ShortHash(tokenStr))
	if err != nil {
		slog.WarnContext(ctx, "revocation cache read failed", logger.Component("token"), logger.Error(err))
		return false
	}
	return ok
}

// IsFresh reports whether the token was issued within maxAge. Sensitive
// operations require fresh authentication regardless of expiry.
func (v *Validator) IsFresh(claims *Claims, maxAge time.Duration) bool {
	if claims.IssuedAt == nil {
		return false
	}
	return v.now().Sub(claims.IssuedAt.Time) <= maxAge
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}

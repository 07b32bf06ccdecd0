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
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustgate/trustgate/internal/cache"
	"github.com/trustgate/trustgate/internal/idp"
	"github.com/trustgate/trustgate/internal/realm"
)

// mockRealms serves a fixed public key and no introspection adapter
type mockRealms struct {
	pem      string
	keyCalls int
}

func (m *mockRealms) SigningKeyPEM(ctx context.Context, config *realm.Config) (string, error) {
	m.keyCalls++
	return m.pem, nil
}

func (m *mockRealms) AdapterFor(ctx context.Context, config *realm.Config) (*idp.RealmClient, error) {
	return nil, idp.ErrExternalService
}

type testKeys struct {
	private *rsa.PrivateKey
	pem     string
}

func newTestKeys(t *testing.T) *testKeys {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	block := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return &testKeys{private: key, pem: string(block)}
}

func (k *testKeys) sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(k.private)
	require.NoError(t, err)
	return signed
}

func testRealmConfig() *realm.Config {
	cfg := &realm.Config{
		ID:        "realm-1",
		RealmName: "acme",
	}
	cfg.ApplyDefaults()
	return cfg
}

func newTestValidator(keys *testKeys, at time.Time) (*Validator, *cache.MemoryStore) {
	store := cache.NewMemory()
	v := NewValidator(&mockRealms{pem: keys.pem}, store, 0, 5*time.Minute)
	v.now = func() time.Time { return at }
	store.SetClock(v.now)
	return v, store
}

func TestValidateLocal(t *testing.T) {
	keys := newTestKeys(t)
	now := time.Now()
	v, _ := newTestValidator(keys, now)

	tok := keys.sign(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "sub-1",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		PreferredUsername: "jdoe",
	})

	result, err := v.Validate(context.Background(), tok, testRealmConfig(), StrategyLocal)
	require.NoError(t, err)
	assert.Equal(t, "local", result.Method)
	assert.Equal(t, "sub-1", result.Claims.Subject)
	assert.Equal(t, "jdoe", result.Claims.PreferredUsername)
}

func TestValidateExpiryBoundary(t *testing.T) {
	keys := newTestKeys(t)
	now := time.Now().Truncate(time.Second)
	v, _ := newTestValidator(keys, now)

	// exp exactly equal to the validation instant is already expired
	tok := keys.sign(t, jwt.RegisteredClaims{
		Subject:   "sub-1",
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now),
	})

	_, err := v.Validate(context.Background(), tok, testRealmConfig(), StrategyLocal)
	require.ErrorIs(t, err, ErrTokenExpired)

	// one second before exp is still valid
	tok = keys.sign(t, jwt.RegisteredClaims{
		Subject:   "sub-1",
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Second)),
	})
	_, err = v.Validate(context.Background(), tok, testRealmConfig(), StrategyLocal)
	require.NoError(t, err)
}

func TestValidateRejectsDisallowedAlgorithm(t *testing.T) {
	keys := newTestKeys(t)
	now := time.Now()
	store := cache.NewMemory()
	realms := &mockRealms{pem: keys.pem}
	v := NewValidator(realms, store, 0, 5*time.Minute)
	v.now = func() time.Time { return now }

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "sub-1",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), tok, testRealmConfig(), StrategyLocal)
	require.ErrorIs(t, err, ErrInvalidToken)
	assert.Zero(t, realms.keyCalls, "key must not be fetched for a disallowed algorithm")
}

func TestValidateRejectsWrongKey(t *testing.T) {
	signer := newTestKeys(t)
	verifier := newTestKeys(t)
	now := time.Now()
	v, _ := newTestValidator(verifier, now)

	tok := signer.sign(t, jwt.RegisteredClaims{
		Subject:   "sub-1",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})

	_, err := v.Validate(context.Background(), tok, testRealmConfig(), StrategyLocal)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRevoked(t *testing.T) {
	keys := newTestKeys(t)
	now := time.Now()
	v, _ := newTestValidator(keys, now)
	ctx := context.Background()

	tok := keys.sign(t, jwt.RegisteredClaims{
		Subject:   "sub-1",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})

	_, err := v.Validate(ctx, tok, testRealmConfig(), StrategyLocal)
	require.NoError(t, err)

	require.NoError(t, v.MarkRevoked(ctx, tok))

	_, err = v.Validate(ctx, tok, testRealmConfig(), StrategyLocal)
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestValidateAudience(t *testing.T) {
	keys := newTestKeys(t)
	now := time.Now()
	v, _ := newTestValidator(keys, now)

	cfg := testRealmConfig()
	cfg.VerifyAudience = true
	cfg.ExpectedAudience = "trustgate"

	tok := keys.sign(t, jwt.RegisteredClaims{
		Subject:   "sub-1",
		Audience:  jwt.ClaimStrings{"someone-else"},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	_, err := v.Validate(context.Background(), tok, cfg, StrategyLocal)
	require.ErrorIs(t, err, ErrInvalidToken)

	tok = keys.sign(t, jwt.RegisteredClaims{
		Subject:   "sub-1",
		Audience:  jwt.ClaimStrings{"trustgate"},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	_, err = v.Validate(context.Background(), tok, cfg, StrategyLocal)
	require.NoError(t, err)
}

func TestSmartFallbackExpiredIsDefinitive(t *testing.T) {
	keys := newTestKeys(t)
	now := time.Now()
	v, _ := newTestValidator(keys, now)

	cfg := testRealmConfig()
	cfg.ClientSecret = "confidential"

	tok := keys.sign(t, jwt.RegisteredClaims{
		Subject:   "sub-1",
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
	})

	// The expired local result must not be laundered through
	// introspection.
	_, err := v.Validate(context.Background(), tok, cfg, StrategySmartFallback)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestClockSkew(t *testing.T) {
	keys := newTestKeys(t)
	now := time.Now()
	store := cache.NewMemory()
	v := NewValidator(&mockRealms{pem: keys.pem}, store, 30*time.Second, 5*time.Minute)
	v.now = func() time.Time { return now }

	// nbf slightly in the future passes within the skew allowance
	tok := keys.sign(t, jwt.RegisteredClaims{
		Subject:   "sub-1",
		NotBefore: jwt.NewNumericDate(now.Add(10 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	_, err := v.Validate(context.Background(), tok, testRealmConfig(), StrategyLocal)
	require.NoError(t, err)
}

func TestIsFresh(t *testing.T) {
	keys := newTestKeys(t)
	now := time.Now()
	v, _ := newTestValidator(keys, now)

	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		IssuedAt: jwt.NewNumericDate(now.Add(-2 * time.Minute)),
	}}
	assert.True(t, v.IsFresh(claims, 5*time.Minute))
	assert.False(t, v.IsFresh(claims, time.Minute))
	assert.False(t, v.IsFresh(&Claims{}, time.Minute))
}

func TestShortHashStable(t *testing.T) {
	assert.Equal(t, ShortHash("abc"), ShortHash("abc"))
	assert.NotEqual(t, ShortHash("abc"), ShortHash("abd"))
	assert.Len(t, ShortHash("abc"), 32)
}

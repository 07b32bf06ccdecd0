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

package realm

import (
	"context"
	"log/slog"

	"github.com/trustgate/trustgate/internal/observability/logger"
)

// SigningKeyPEM returns the realm's RSA signing key as a PEM block.
// Pure read path: cache first, then the provider JWKS endpoint. A cache
// miss behaves identically to a cache-disabled system.
func (r *Registry) SigningKeyPEM(ctx context.Context, config *Config) (string, error) {
	key := "public-key:" + config.ID

	val, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "public key cache read failed",
			logger.Component("realm"), logger.RealmID(config.ID), logger.Error(err))
	}
	if ok {
		return val, nil
	}

	adapter, err := r.AdapterFor(ctx, config)
	if err != nil {
		return "", err
	}

	pemKey, err := adapter.PublicKeyPEM(ctx)
	if err != nil {
		return "", err
	}

	if err := r.cache.Set(ctx, key, pemKey, config.PublicKeyTTL); err != nil {
		slog.WarnContext(ctx, "public key cache write failed",
			logger.Component("realm"), logger.RealmID(config.ID), logger.Error(err))
	}
	return pemKey, nil
}

// InvalidateSigningKey drops the cached key, forcing a JWKS refetch on
// next validation. Used when the provider rotates realm keys.
func (r *Registry) InvalidateSigningKey(ctx context.Context, realmID string) {
	if err := r.cache.Delete(ctx, "public-key:"+realmID); err != nil {
		slog.WarnContext(ctx, "public key cache invalidation failed",
			logger.Component("realm"), logger.RealmID(realmID), logger.Error(err))
	}
}

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

// Package cache abstracts the key-value substrate holding non-authoritative
// copies of realm configs, identity mappings, permission sets and guest
// sessions. The database remains the source of truth; every entry carries a
// TTL and the schema is last-write-wins.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the substrate could not be reached. Read paths
// treat it as a miss; rate-limit counters apply the configured fail-open
// policy.
var ErrUnavailable = errors.New("cache unavailable")

// Store is the key-value contract consumed by all components.
type Store interface {
	// Get returns the value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores a value with a TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes the given keys.
	Delete(ctx context.Context, keys ...string) error

	// DeletePattern removes all keys matching a glob pattern.
	DeletePattern(ctx context.Context, pattern string) error

	// Increment atomically increments a counter, setting the TTL when the
	// counter is created. Returns the value after the increment.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Close releases the underlying client.
	Close() error
}

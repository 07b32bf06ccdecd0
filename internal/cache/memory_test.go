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

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTTL(t *testing.T) {
	store := NewMemory()
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))

	val, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", val)

	now = now.Add(2 * time.Minute)
	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry expires after its TTL")
}

func TestMemoryZeroTTLNeverExpires(t *testing.T) {
	store := NewMemory()
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", "v", 0))

	now = now.Add(24 * time.Hour)
	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryDeletePattern(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "perm:user-1:platform", "a", 0))
	require.NoError(t, store.Set(ctx, "perm:user-1:tenant-1", "b", 0))
	require.NoError(t, store.Set(ctx, "perm:user-2:platform", "c", 0))

	require.NoError(t, store.DeletePattern(ctx, "perm:user-1:*"))

	_, ok, _ := store.Get(ctx, "perm:user-1:platform")
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, "perm:user-1:tenant-1")
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, "perm:user-2:platform")
	assert.True(t, ok, "other users' keys untouched")
}

func TestMemoryIncrement(t *testing.T) {
	store := NewMemory()
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	ctx := context.Background()
	for want := int64(1); want <= 3; want++ {
		n, err := store.Increment(ctx, "counter", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	// the window resets once the first increment's TTL passes
	now = now.Add(2 * time.Hour)
	n, err := store.Increment(ctx, "counter", time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

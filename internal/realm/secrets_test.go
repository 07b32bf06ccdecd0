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
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) string {
	t.Helper()
	raw := make([]byte, 32)
	_, err := rand.Read(raw)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestSealOpenRoundtrip(t *testing.T) {
	cipher, err := NewSecretCipher(testKey(t), false)
	require.NoError(t, err)

	sealed, err := cipher.Seal("s3cret-value")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "v1:"))
	assert.NotContains(t, sealed, "s3cret-value")

	opened, err := cipher.Open(context.Background(), sealed)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-value", opened)
}

func TestSealEmptyIsEmpty(t *testing.T) {
	cipher, err := NewSecretCipher(testKey(t), false)
	require.NoError(t, err)

	sealed, err := cipher.Seal("")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	opened, err := cipher.Open(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, opened)
}

func TestOpenRejectsPlaintextByDefault(t *testing.T) {
	cipher, err := NewSecretCipher(testKey(t), false)
	require.NoError(t, err)

	_, err = cipher.Open(context.Background(), "legacy-plaintext")
	require.ErrorIs(t, err, ErrSealedSecret)
}

func TestOpenAllowsPlaintextWithFlag(t *testing.T) {
	cipher, err := NewSecretCipher(testKey(t), true)
	require.NoError(t, err)

	opened, err := cipher.Open(context.Background(), "legacy-plaintext")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plaintext", opened)
}

func TestOpenWrongKey(t *testing.T) {
	sealer, err := NewSecretCipher(testKey(t), false)
	require.NoError(t, err)
	opener, err := NewSecretCipher(testKey(t), false)
	require.NoError(t, err)

	sealed, err := sealer.Seal("s3cret-value")
	require.NoError(t, err)

	_, err = opener.Open(context.Background(), sealed)
	require.ErrorIs(t, err, ErrSealedSecret)
}

func TestNewSecretCipherRejectsBadKeys(t *testing.T) {
	_, err := NewSecretCipher("not-base64!!", false)
	require.Error(t, err)

	short := base64.StdEncoding.EncodeToString([]byte("too-short"))
	_, err = NewSecretCipher(short, false)
	require.Error(t, err)
}

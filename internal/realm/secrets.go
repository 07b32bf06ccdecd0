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
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/trustgate/trustgate/internal/observability/logger"
)

const sealedPrefix = "v1:"

// ErrSealedSecret indicates a stored secret could not be opened
var ErrSealedSecret = errors.New("failed to open sealed secret")

// SecretCipher seals client secrets before they reach the realms table
// and opens them on read. Values without the sealed prefix predate
// encryption at rest; they are accepted only when the migration flag is
// set, and every such read is logged.
type SecretCipher struct {
	key            [32]byte
	allowPlaintext bool
}

// NewSecretCipher creates a cipher from a base64-encoded 32-byte key
func NewSecretCipher(encodedKey string, allowPlaintext bool) (*SecretCipher, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("secret key must be 32 bytes, base64 encoded")
	}
	c := &SecretCipher{allowPlaintext: allowPlaintext}
	copy(c.key[:], raw)
	return c, nil
}

// Seal encrypts a secret for storage
func (c *SecretCipher) Seal(secret string) (string, error) {
	if secret == "" {
		return "", nil
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(secret), &nonce, &c.key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a stored secret
func (c *SecretCipher) Open(ctx context.Context, stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	if !strings.HasPrefix(stored, sealedPrefix) {
		if !c.allowPlaintext {
			return "", fmt.Errorf("%w: value is not sealed", ErrSealedSecret)
		}
		slog.WarnContext(ctx, "reading unsealed client secret; re-save the realm to seal it",
			logger.Component("realm"))
		return stored, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil || len(raw) < 24 {
		return "", fmt.Errorf("%w: malformed ciphertext", ErrSealedSecret)
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	opened, ok := secretbox.Open(nil, raw[24:], &nonce, &c.key)
	if !ok {
		return "", ErrSealedSecret
	}
	return string(opened), nil
}

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

package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString(make([]byte, 32))
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PROVIDER_SERVER_URL", "https://kc.example.com")
	t.Setenv("SECURITY_SECRET_KEY", testKey())
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "smart-fallback", cfg.Token.DefaultStrategy)
	assert.Equal(t, 100, cfg.Guest.IPPerHour)
	assert.Equal(t, 300, cfg.Guest.SessionPerHour)
	assert.True(t, cfg.Guest.FailOpen)
	assert.Equal(t, 30*time.Minute, cfg.Cache.PermissionTTL)
	assert.Equal(t, time.Hour, cfg.Cache.RoleTTL)
}

func TestEnvOverridesFile(t *testing.T) {
	setRequired(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9000\"\nguest:\n  ip_per_hour: 10\n"), 0o600))
	t.Setenv("TRUSTGATE_CONFIG", path)
	t.Setenv("SERVER_PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Server.Port, "environment wins over file")
	assert.Equal(t, 10, cfg.Guest.IPPerHour, "file wins over defaults")
}

func TestValidate(t *testing.T) {
	setRequired(t)

	t.Setenv("TOKEN_VALIDATION_DEFAULT", "guesswork")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("TOKEN_VALIDATION_DEFAULT", "local")
	_, err = Load()
	assert.NoError(t, err)
}

func TestValidateRequiresProvider(t *testing.T) {
	t.Setenv("PROVIDER_SERVER_URL", "")
	t.Setenv("SECURITY_SECRET_KEY", testKey())
	_, err := Load()
	assert.Error(t, err)
}

func TestDurationFromBareSeconds(t *testing.T) {
	setRequired(t)
	t.Setenv("GUEST_SESSION_TTL", "7200")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.Guest.SessionTTL)
}

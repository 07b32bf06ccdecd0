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

package authctx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	tenantID := "tenant-1"
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	original := &AuthContext{
		UserID:           "user-1",
		SubjectID:        "sub-1",
		RealmID:          "realm-1",
		TenantID:         &tenantID,
		Email:            "jdoe@example.com",
		Username:         "jdoe",
		AuthenticatedAt:  now,
		ExpiresAt:        now.Add(time.Hour),
		Roles:            []string{"member"},
		Permissions:      []string{"documents:read", "documents:*"},
		ValidationMethod: "local",
	}

	data, err := original.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)
}

func TestHasRole(t *testing.T) {
	a := &AuthContext{Roles: []string{"member", "tenant-admin"}}
	assert.True(t, a.HasRole("member"))
	assert.False(t, a.HasRole("platform-admin"))
}

func TestTenant(t *testing.T) {
	assert.Empty(t, (&AuthContext{}).Tenant())
	tenantID := "tenant-1"
	assert.Equal(t, "tenant-1", (&AuthContext{TenantID: &tenantID}).Tenant())
}

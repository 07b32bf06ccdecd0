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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoles(t *testing.T) {
	claims := &Claims{
		RealmAccess: RealmAccess{Roles: []string{"admin", "user"}},
		ResourceAccess: map[string]ClientAccess{
			"web-app": {Roles: []string{"editor"}},
		},
	}

	roles := claims.Roles("web-app")
	assert.ElementsMatch(t, []string{"admin", "user", "web-app:editor"}, roles)

	// client roles of other clients are excluded
	roles = claims.Roles("other-app")
	assert.ElementsMatch(t, []string{"admin", "user"}, roles)
}

func TestScopes(t *testing.T) {
	claims := &Claims{Scope: "openid profile email"}
	assert.Equal(t, []string{"openid", "profile", "email"}, claims.Scopes())
	assert.Nil(t, (&Claims{}).Scopes())
}

func TestClaimsMap(t *testing.T) {
	claims := &Claims{
		PreferredUsername: "jdoe",
		Email:             "jdoe@example.com",
		RealmAccess:       RealmAccess{Roles: []string{"admin"}},
	}

	m := claims.Map()
	assert.Equal(t, "jdoe", m["preferred_username"])
	assert.Equal(t, "jdoe@example.com", m["email"])
	assert.NotNil(t, m["realm_access"])
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Jane Doe", (&Claims{Name: "Jane Doe"}).DisplayName())
	assert.Equal(t, "Jane Doe", (&Claims{GivenName: "Jane", FamilyName: "Doe"}).DisplayName())
	assert.Equal(t, "Jane", (&Claims{GivenName: "Jane"}).DisplayName())
	assert.Equal(t, "jdoe", (&Claims{PreferredUsername: "jdoe"}).DisplayName())
}

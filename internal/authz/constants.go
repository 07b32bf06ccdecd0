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

package authz

// System role codes seeded by the initial schema migration. The codes
// are stable API; display names are not.
const (
	RolePlatformAdmin = "platform-admin"
	RoleTenantAdmin   = "tenant-admin"
	RoleMember        = "member"
)

// Well-known permission codes. Wildcards follow resource:action
// matching, so platform-admin's single "*:*" grant covers all of these.
const (
	PermRealmsRead         = "realms:read"
	PermRealmsCreate       = "realms:create"
	PermRealmsUpdate       = "realms:update"
	PermRealmsDelete       = "realms:delete"
	PermRolesGrant         = "roles:grant"
	PermRolesRevoke        = "roles:revoke"
	PermTenantAccessGrant  = "tenant-access:grant"
	PermTenantAccessRevoke = "tenant-access:revoke"
	PermUsersRead          = "users:read"
	PermUsersManage        = "users:manage"
)

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

package idp

import "errors"

// Domain errors
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token expired")
	ErrForbidden            = errors.New("forbidden")
	ErrRealmNotFound        = errors.New("realm not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrConflict             = errors.New("conflict")
	ErrPublicKeyUnavailable = errors.New("no signing key available")
	ErrExternalService      = errors.New("identity provider unavailable")
)

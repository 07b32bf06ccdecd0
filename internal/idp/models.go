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

// TokenBundle is the response of the provider token endpoint
type TokenBundle struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	IDToken          string `json:"id_token,omitempty"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in,omitempty"`
	Scope            string `json:"scope,omitempty"`
	SessionState     string `json:"session_state,omitempty"`
}

// Introspection is the response of the provider introspection endpoint
// (RFC 7662). Claims beyond the registered set are kept in Extra.
type Introspection struct {
	Active    bool           `json:"active"`
	Subject   string         `json:"sub,omitempty"`
	Username  string         `json:"username,omitempty"`
	ClientID  string         `json:"client_id,omitempty"`
	Scope     string         `json:"scope,omitempty"`
	TokenType string         `json:"token_type,omitempty"`
	Exp       int64          `json:"exp,omitempty"`
	Iat       int64          `json:"iat,omitempty"`
	Extra     map[string]any `json:"-"`
}

// WellKnown is the OpenID discovery document subset the core consumes
type WellKnown struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	IntrospectionEndpoint string `json:"introspection_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	EndSessionEndpoint    string `json:"end_session_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

// RealmRepresentation mirrors the provider admin realm resource. Only
// the settings the registry manages are modeled.
type RealmRepresentation struct {
	Realm                  string `json:"realm"`
	DisplayName            string `json:"displayName,omitempty"`
	Enabled                bool   `json:"enabled"`
	LoginWithEmailAllowed  bool   `json:"loginWithEmailAllowed"`
	DuplicateEmailsAllowed bool   `json:"duplicateEmailsAllowed"`
	ResetPasswordAllowed   bool   `json:"resetPasswordAllowed"`
	EditUsernameAllowed    bool   `json:"editUsernameAllowed"`
	BruteForceProtected    bool   `json:"bruteForceProtected"`
	PasswordPolicy         string `json:"passwordPolicy,omitempty"`
	DefaultLocale          string `json:"defaultLocale,omitempty"`
}

// DefaultRealmRepresentation returns the realm settings applied during
// tenant provisioning.
func DefaultRealmRepresentation(realmName, displayName string) RealmRepresentation {
	return RealmRepresentation{
		Realm:                  realmName,
		DisplayName:            displayName,
		Enabled:                true,
		LoginWithEmailAllowed:  true,
		DuplicateEmailsAllowed: false,
		ResetPasswordAllowed:   true,
		EditUsernameAllowed:    false,
		BruteForceProtected:    true,
		PasswordPolicy:         "length(12) and upperCase(2) and lowerCase(2) and digits(2) and specialChars(2)",
		DefaultLocale:          "en",
	}
}

// ClientRepresentation mirrors the provider admin client resource
type ClientRepresentation struct {
	ClientID                  string   `json:"clientId"`
	Name                      string   `json:"name,omitempty"`
	Secret                    string   `json:"secret,omitempty"`
	Enabled                   bool     `json:"enabled"`
	PublicClient              bool     `json:"publicClient"`
	DirectAccessGrantsEnabled bool     `json:"directAccessGrantsEnabled"`
	StandardFlowEnabled       bool     `json:"standardFlowEnabled"`
	ServiceAccountsEnabled    bool     `json:"serviceAccountsEnabled"`
	RedirectURIs              []string `json:"redirectUris,omitempty"`
	WebOrigins                []string `json:"webOrigins,omitempty"`
}

// UserRepresentation mirrors the provider admin user resource
type UserRepresentation struct {
	ID            string              `json:"id,omitempty"`
	Username      string              `json:"username"`
	Email         string              `json:"email,omitempty"`
	EmailVerified bool                `json:"emailVerified"`
	FirstName     string              `json:"firstName,omitempty"`
	LastName      string              `json:"lastName,omitempty"`
	Enabled       bool                `json:"enabled"`
	Attributes    map[string][]string `json:"attributes,omitempty"`
}

// CredentialRepresentation mirrors the provider admin credential resource
type CredentialRepresentation struct {
	ID        string `json:"id,omitempty"`
	Type      string `json:"type"`
	Value     string `json:"value,omitempty"`
	Temporary bool   `json:"temporary"`
}

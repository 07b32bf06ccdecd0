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

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/url"

	jose "github.com/go-jose/go-jose/v4"
)

// RealmClient is the per-realm OpenID Connect surface. Instances are
// cheap and safe for concurrent use; the Adapters cache keeps one per
// realm so hot realms reuse a single adapter.
type RealmClient struct {
	client       *Client
	realmName    string
	clientID     string
	clientSecret string
}

// NewRealmClient creates an adapter bound to one realm
func (c *Client) NewRealmClient(realmName, clientID, clientSecret string) *RealmClient {
	return &RealmClient{
		client:       c,
		realmName:    realmName,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// RealmName returns the realm this adapter is bound to
func (rc *RealmClient) RealmName() string {
	return rc.realmName
}

func (rc *RealmClient) clientForm() url.Values {
	form := url.Values{}
	form.Set("client_id", rc.clientID)
	if rc.clientSecret != "" {
		form.Set("client_secret", rc.clientSecret)
	}
	return form
}

// Authenticate performs the resource-owner password grant
func (rc *RealmClient) Authenticate(ctx context.Context, username, password string) (*TokenBundle, error) {
	form := rc.clientForm()
	form.Set("grant_type", "password")
	form.Set("username", username)
	form.Set("password", password)
	form.Set("scope", "openid profile email")

	var bundle TokenBundle
	if err := rc.client.doForm(ctx, rc.client.realmURL(rc.realmName, "token"), nil, form, &bundle); err != nil {
		return nil, mapStatus(err)
	}
	return &bundle, nil
}

// RefreshToken exchanges a refresh token for a new bundle
func (rc *RealmClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenBundle, error) {
	form := rc.clientForm()
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	var bundle TokenBundle
	if err := rc.client.doForm(ctx, rc.client.realmURL(rc.realmName, "token"), nil, form, &bundle); err != nil {
		return nil, mapStatus(err)
	}
	return &bundle, nil
}

// ClientCredentials obtains a service-account token for this realm's client
func (rc *RealmClient) ClientCredentials(ctx context.Context) (*TokenBundle, error) {
	form := rc.clientForm()
	form.Set("grant_type", "client_credentials")

	var bundle TokenBundle
	if err := rc.client.doForm(ctx, rc.client.realmURL(rc.realmName, "token"), nil, form, &bundle); err != nil {
		return nil, mapStatus(err)
	}
	return &bundle, nil
}

// Logout invalidates the session bound to a refresh token
func (rc *RealmClient) Logout(ctx context.Context, refreshToken string) error {
	form := rc.clientForm()
	form.Set("refresh_token", refreshToken)

	if err := rc.client.doForm(ctx, rc.client.realmURL(rc.realmName, "logout"), nil, form, nil); err != nil {
		return mapStatus(err)
	}
	return nil
}

// Userinfo fetches the userinfo claims for an access token
func (rc *RealmClient) Userinfo(ctx context.Context, accessToken string) (map[string]any, error) {
	var claims map[string]any
	err := rc.client.getWithRetry(ctx, rc.client.realmURL(rc.realmName, "userinfo"), bearer(accessToken), &claims)
	if err != nil {
		return nil, mapStatus(err)
	}
	return claims, nil
}

// Introspect asks the provider whether a token is active. Requires a
// confidential client; callers cache the result keyed by token hash.
func (rc *RealmClient) Introspect(ctx context.Context, token string) (*Introspection, error) {
	form := rc.clientForm()
	form.Set("token", token)

	var raw map[string]any
	if err := rc.client.doForm(ctx, rc.client.realmURL(rc.realmName, "token/introspect"), nil, form, &raw); err != nil {
		return nil, mapStatus(err)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode introspection: %w", err)
	}
	var result Introspection
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode introspection: %w", err)
	}
	result.Extra = raw
	return &result, nil
}

// WellKnown fetches the OpenID discovery document
func (rc *RealmClient) WellKnown(ctx context.Context) (*WellKnown, error) {
	wkURL := fmt.Sprintf("%s/realms/%s/.well-known/openid-configuration", rc.client.serverURL, url.PathEscape(rc.realmName))
	var doc WellKnown
	if err := rc.client.getWithRetry(ctx, wkURL, nil, &doc); err != nil {
		return nil, mapStatus(err)
	}
	return &doc, nil
}

// JWKS fetches the realm key set
func (rc *RealmClient) JWKS(ctx context.Context) (*jose.JSONWebKeySet, error) {
	var keySet jose.JSONWebKeySet
	if err := rc.client.getWithRetry(ctx, rc.client.realmURL(rc.realmName, "certs"), nil, &keySet); err != nil {
		return nil, mapStatus(err)
	}
	return &keySet, nil
}

// PublicKeyPEM fetches the realm JWKS and returns the first RSA signing
// key serialized as a PKIX PEM block.
func (rc *RealmClient) PublicKeyPEM(ctx context.Context) (string, error) {
	keySet, err := rc.JWKS(ctx)
	if err != nil {
		return "", err
	}
	return SigningKeyPEM(keySet)
}

// SigningKeyPEM selects the first RSA signing key of a key set and
// serializes it. Pure function of the key set.
func SigningKeyPEM(keySet *jose.JSONWebKeySet) (string, error) {
	for _, key := range keySet.Keys {
		if key.Use != "" && key.Use != "sig" {
			continue
		}
		pub, ok := key.Key.(*rsa.PublicKey)
		if !ok {
			continue
		}
		der, err := x509.MarshalPKIXPublicKey(pub)
		if err != nil {
			continue
		}
		block := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
		return string(block), nil
	}
	return "", ErrPublicKeyUnavailable
}

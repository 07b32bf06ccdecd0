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

// Package idp wraps the remote identity provider. One connection-pooled
// HTTP client is shared across all realm adapters; admin operations run
// either as the master-realm admin account or as a client-credentials
// service account, chosen at construction.
package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config holds provider connection configuration
type Config struct {
	// ServerURL is the provider base URL. A trailing /auth segment is
	// stripped; older provider layouts include it, newer ones do not.
	ServerURL string

	// AdminRealm is the realm admin credentials authenticate against,
	// normally "master".
	AdminRealm        string
	AdminClientID     string
	AdminClientSecret string
	AdminUsername     string
	AdminPassword     string

	Timeout        time.Duration
	MaxConnections int
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// Client is the shared provider client. Realm adapters borrow its HTTP
// client and admin token; construct one per process.
type Client struct {
	serverURL  string
	httpClient *http.Client
	cfg        Config

	admin *adminTokenSource
}

// NewClient creates the shared provider client
func NewClient(cfg Config) (*Client, error) {
	serverURL, err := NormalizeServerURL(cfg.ServerURL)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 100
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 200 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 2 * time.Second
	}

	c := &Client{
		serverURL: serverURL,
		cfg:       cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxConnections,
				MaxIdleConnsPerHost: cfg.MaxConnections,
				MaxConnsPerHost:     cfg.MaxConnections,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	c.admin = newAdminTokenSource(c)
	return c, nil
}

// NormalizeServerURL validates the provider URL and strips a trailing
// /auth segment. Compatibility rule: pre-quarkus provider layouts mount
// everything under /auth, newer ones at the root; accepting both lets
// configs move between provider versions unchanged.
func NormalizeServerURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("provider server URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid provider server URL %q", raw)
	}
	normalized := strings.TrimRight(raw, "/")
	normalized = strings.TrimSuffix(normalized, "/auth")
	return normalized, nil
}

// ServerURL returns the normalized provider base URL
func (c *Client) ServerURL() string {
	return c.serverURL
}

func (c *Client) realmURL(realm, suffix string) string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/%s", c.serverURL, url.PathEscape(realm), suffix)
}

func (c *Client) adminURL(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return fmt.Sprintf("%s/admin/realms/%s", c.serverURL, strings.Join(escaped, "/"))
}

// statusError carries the provider response for error mapping
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.status, e.body)
}

// mapStatus translates provider HTTP statuses to domain errors
func mapStatus(err error) error {
	se, ok := err.(*statusError)
	if !ok {
		return fmt.Errorf("%w: %v", ErrExternalService, err)
	}
	switch se.status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, se.body)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, se.body)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrRealmNotFound, se.body)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, se.body)
	default:
		return fmt.Errorf("%w: %v", ErrExternalService, se)
	}
}

// doJSON performs a request with an optional JSON body and decodes the
// JSON response into out (when non-nil). Responses are fully read and
// closed before returning.
func (c *Client) doJSON(ctx context.Context, method, rawURL string, headers map[string]string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.execute(req, out)
}

// doForm performs a form-encoded POST and decodes the JSON response
func (c *Client) doForm(ctx context.Context, rawURL string, headers map[string]string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.execute(req, out)
}

func (c *Client) execute(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternalService, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{status: resp.StatusCode, body: truncate(string(data), 512)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode provider response: %w", err)
		}
	}
	return nil
}

// getWithRetry wraps an idempotent GET in bounded exponential backoff.
// Only network failures and 5xx responses are retried; client errors
// surface immediately.
func (c *Client) getWithRetry(ctx context.Context, rawURL string, headers map[string]string, out any) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryBaseDelay
	bo.MaxInterval = c.cfg.RetryMaxDelay

	attempts := uint64(c.cfg.RetryAttempts)
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, attempts-1), ctx)

	return backoff.Retry(func() error {
		err := c.doJSON(ctx, http.MethodGet, rawURL, headers, nil, out)
		if err == nil {
			return nil
		}
		if se, ok := err.(*statusError); ok && se.status < 500 {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

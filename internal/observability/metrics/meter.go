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

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// AuthMetrics holds the counters emitted by the request pipeline.
type AuthMetrics struct {
	Validations   metric.Int64Counter
	Denials       metric.Int64Counter
	GuestSessions metric.Int64Counter
	RateLimitHits metric.Int64Counter
	CacheMisses   metric.Int64Counter
}

// New creates the pipeline metric set. When disabled it binds to the
// global no-op meter provider.
func New(ctx context.Context, cfg Config, serviceName string) (*AuthMetrics, error) {
	name := serviceName
	if !cfg.Enabled {
		name = "noop"
	}
	meter := otel.Meter(name)

	m := &AuthMetrics{}
	var err error

	if m.Validations, err = meter.Int64Counter("auth.token.validations",
		metric.WithDescription("Token validations by strategy and outcome")); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if m.Denials, err = meter.Int64Counter("auth.permission.denials",
		metric.WithDescription("Requests denied for missing permissions")); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if m.GuestSessions, err = meter.Int64Counter("auth.guest.sessions",
		metric.WithDescription("Guest sessions created")); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if m.RateLimitHits, err = meter.Int64Counter("auth.guest.ratelimit_hits",
		metric.WithDescription("Guest requests rejected by rate limiting")); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if m.CacheMisses, err = meter.Int64Counter("auth.cache.misses",
		metric.WithDescription("Cache misses by keyspace")); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	return m, nil
}

// RecordValidation counts one token validation outcome
func (m *AuthMetrics) RecordValidation(ctx context.Context, strategy string, ok bool) {
	m.Validations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("strategy", strategy),
			attribute.Bool("ok", ok),
		))
}

// RecordCacheMiss counts one cache miss for a keyspace
func (m *AuthMetrics) RecordCacheMiss(ctx context.Context, keyspace string) {
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("keyspace", keyspace)))
}

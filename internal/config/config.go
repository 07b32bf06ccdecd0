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
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Provider      ProviderConfig      `yaml:"provider"`
	Token         TokenConfig         `yaml:"token"`
	Guest         GuestConfig         `yaml:"guest"`
	Security      SecurityConfig      `yaml:"security"`
	Observability ObservabilityConfig `yaml:"observability"`
	RateLimit     RateLimitConfig     `yaml:"ratelimit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`
	TenantHeader string        `yaml:"tenant_header"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host             string        `yaml:"host"`
	Port             string        `yaml:"port"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	Database         string        `yaml:"database"`
	SSLMode          string        `yaml:"sslmode"`
	MaxConns         int           `yaml:"max_conns"`
	MinConns         int           `yaml:"min_conns"`
	ConnMaxIdleTime  time.Duration `yaml:"conn_max_idle_time"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// CacheConfig holds the cache substrate configuration and per-concern TTLs
type CacheConfig struct {
	Addr          string        `yaml:"addr"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	RealmTTL      time.Duration `yaml:"realm_ttl"`
	PublicKeyTTL  time.Duration `yaml:"public_key_ttl"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	PermissionTTL time.Duration `yaml:"permission_ttl"`
	RoleTTL       time.Duration `yaml:"role_ttl"`
	UserTTL       time.Duration `yaml:"user_ttl"`
	MappingTTL    time.Duration `yaml:"mapping_ttl"`
}

// ProviderConfig holds identity provider connection configuration
type ProviderConfig struct {
	ServerURL         string        `yaml:"server_url"`
	AdminRealm        string        `yaml:"admin_realm"`
	AdminClientID     string        `yaml:"admin_client_id"`
	AdminClientSecret string        `yaml:"admin_client_secret"`
	AdminUsername     string        `yaml:"admin_username"`
	AdminPassword     string        `yaml:"admin_password"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxConnections    int           `yaml:"max_connections"`
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
}

// TokenConfig holds token validation configuration
type TokenConfig struct {
	// DefaultStrategy is one of local, introspection, smart-fallback.
	DefaultStrategy string        `yaml:"default_strategy"`
	ClockSkew       time.Duration `yaml:"clock_skew"`
	IntrospectTTL   time.Duration `yaml:"introspect_ttl"`
}

// GuestConfig holds guest session and rate limiting configuration
type GuestConfig struct {
	SessionTTL     time.Duration `yaml:"session_ttl"`
	IPPerHour      int           `yaml:"ip_per_hour"`
	SessionPerHour int           `yaml:"session_per_hour"`
	// FailOpen controls whether rate limiting admits requests when the
	// cache substrate is unavailable. Counters are best-effort under
	// cache degradation either way.
	FailOpen bool `yaml:"fail_open"`
}

// SecurityConfig holds security policy knobs
type SecurityConfig struct {
	// SecretKey seals realm client secrets at rest; base64, 32 bytes.
	SecretKey string `yaml:"secret_key"`
	// AllowPlaintextSecrets permits reading client secrets that were
	// stored before encryption-at-rest was enabled. Every such read is
	// logged.
	AllowPlaintextSecrets bool `yaml:"allow_plaintext_secrets"`
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	OTELEnabled    bool   `yaml:"otel_enabled"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
}

// RateLimitConfig holds transport-level rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Load loads configuration from environment variables. When
// TRUSTGATE_CONFIG points at a YAML file, values from the file are
// applied first and environment variables override them.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("TRUSTGATE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         "8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
			TenantHeader: "X-Tenant-Id",
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            "5432",
			User:            "trustgate",
			Database:        "trustgate",
			SSLMode:         "disable",
			MaxConns:        50,
			MinConns:        10,
			ConnMaxIdleTime: 60 * time.Second,
		},
		Cache: CacheConfig{
			Addr:          "localhost:6379",
			RealmTTL:      time.Hour,
			PublicKeyTTL:  time.Hour,
			TokenTTL:      5 * time.Minute,
			PermissionTTL: 30 * time.Minute,
			RoleTTL:       time.Hour,
			UserTTL:       10 * time.Minute,
			MappingTTL:    30 * time.Minute,
		},
		Provider: ProviderConfig{
			AdminRealm:     "master",
			Timeout:        10 * time.Second,
			MaxConnections: 100,
			RetryAttempts:  3,
			RetryBaseDelay: 200 * time.Millisecond,
			RetryMaxDelay:  2 * time.Second,
		},
		Token: TokenConfig{
			DefaultStrategy: "smart-fallback",
			ClockSkew:       0,
			IntrospectTTL:   5 * time.Minute,
		},
		Guest: GuestConfig{
			SessionTTL:     time.Hour,
			IPPerHour:      100,
			SessionPerHour: 300,
			FailOpen:       true,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			ServiceName:    "trustgate",
			ServiceVersion: "0.1.0",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = parseDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = parseDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = parseDuration("SERVER_IDLE_TIMEOUT", cfg.Server.IdleTimeout)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnv("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnv("DB_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.MaxConns = parseInt("DB_POOL_MAX", cfg.Database.MaxConns)
	cfg.Database.MinConns = parseInt("DB_POOL_MIN", cfg.Database.MinConns)
	cfg.Database.StatementTimeout = parseDuration("DB_STATEMENT_TIMEOUT", cfg.Database.StatementTimeout)

	cfg.Cache.Addr = getEnv("CACHE_ADDR", cfg.Cache.Addr)
	cfg.Cache.Password = getEnv("CACHE_PASSWORD", cfg.Cache.Password)
	cfg.Cache.DB = parseInt("CACHE_DB", cfg.Cache.DB)
	cfg.Cache.RealmTTL = parseDuration("REALM_CACHE_TTL", cfg.Cache.RealmTTL)
	cfg.Cache.PublicKeyTTL = parseDuration("PUBLIC_KEY_CACHE_TTL", cfg.Cache.PublicKeyTTL)
	cfg.Cache.TokenTTL = parseDuration("TOKEN_CACHE_TTL", cfg.Cache.TokenTTL)
	cfg.Cache.PermissionTTL = parseDuration("PERM_CACHE_TTL", cfg.Cache.PermissionTTL)
	cfg.Cache.RoleTTL = parseDuration("ROLES_CACHE_TTL", cfg.Cache.RoleTTL)
	cfg.Cache.UserTTL = parseDuration("USER_CACHE_TTL", cfg.Cache.UserTTL)
	cfg.Cache.MappingTTL = parseDuration("MAPPING_CACHE_TTL", cfg.Cache.MappingTTL)

	cfg.Provider.ServerURL = getEnv("PROVIDER_SERVER_URL", cfg.Provider.ServerURL)
	cfg.Provider.AdminRealm = getEnv("PROVIDER_ADMIN_REALM", cfg.Provider.AdminRealm)
	cfg.Provider.AdminClientID = getEnv("PROVIDER_ADMIN_CLIENT_ID", cfg.Provider.AdminClientID)
	cfg.Provider.AdminClientSecret = getEnv("PROVIDER_ADMIN_CLIENT_SECRET", cfg.Provider.AdminClientSecret)
	cfg.Provider.AdminUsername = getEnv("PROVIDER_ADMIN_USERNAME", cfg.Provider.AdminUsername)
	cfg.Provider.AdminPassword = getEnv("PROVIDER_ADMIN_PASSWORD", cfg.Provider.AdminPassword)
	cfg.Provider.Timeout = parseDuration("PROVIDER_TIMEOUT", cfg.Provider.Timeout)
	cfg.Provider.MaxConnections = parseInt("HTTP_MAX_CONNECTIONS", cfg.Provider.MaxConnections)

	cfg.Token.DefaultStrategy = getEnv("TOKEN_VALIDATION_DEFAULT", cfg.Token.DefaultStrategy)
	cfg.Token.ClockSkew = parseDuration("TOKEN_CLOCK_SKEW", cfg.Token.ClockSkew)
	cfg.Token.IntrospectTTL = parseDuration("TOKEN_INTROSPECT_TTL", cfg.Token.IntrospectTTL)

	cfg.Guest.SessionTTL = parseDuration("GUEST_SESSION_TTL", cfg.Guest.SessionTTL)
	cfg.Guest.IPPerHour = parseInt("GUEST_RATELIMIT_IP_PER_HOUR", cfg.Guest.IPPerHour)
	cfg.Guest.SessionPerHour = parseInt("GUEST_RATELIMIT_SESSION_PER_HOUR", cfg.Guest.SessionPerHour)
	cfg.Guest.FailOpen = parseBool("GUEST_RATELIMIT_FAIL_OPEN", cfg.Guest.FailOpen)

	cfg.Security.SecretKey = getEnv("SECURITY_SECRET_KEY", cfg.Security.SecretKey)
	cfg.Security.AllowPlaintextSecrets = parseBool("SECURITY_ALLOW_PLAINTEXT_SECRETS", cfg.Security.AllowPlaintextSecrets)

	cfg.Observability.LogLevel = getEnv("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = getEnv("LOG_FORMAT", cfg.Observability.LogFormat)
	cfg.Observability.OTELEnabled = parseBool("OTEL_ENABLED", cfg.Observability.OTELEnabled)
	cfg.Observability.ServiceName = getEnv("OTEL_SERVICE_NAME", cfg.Observability.ServiceName)
	cfg.Observability.ServiceVersion = getEnv("OTEL_SERVICE_VERSION", cfg.Observability.ServiceVersion)

	cfg.RateLimit.RequestsPerSecond = float64(parseInt("RATELIMIT_RPS", int(cfg.RateLimit.RequestsPerSecond)))
	cfg.RateLimit.Burst = parseInt("RATELIMIT_BURST", cfg.RateLimit.Burst)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Provider.ServerURL == "" {
		return fmt.Errorf("PROVIDER_SERVER_URL is required")
	}
	if c.Security.SecretKey == "" {
		return fmt.Errorf("SECURITY_SECRET_KEY is required")
	}
	switch c.Token.DefaultStrategy {
	case "local", "introspection", "smart-fallback":
	default:
		return fmt.Errorf("TOKEN_VALIDATION_DEFAULT must be local, introspection or smart-fallback")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("DB_POOL_MIN must not exceed DB_POOL_MAX")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Bare integers are treated as seconds
		if i, err := strconv.Atoi(value); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return defaultValue
}

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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trustgate/trustgate/internal/audit"
	"github.com/trustgate/trustgate/internal/authz"
	"github.com/trustgate/trustgate/internal/cache"
	"github.com/trustgate/trustgate/internal/config"
	"github.com/trustgate/trustgate/internal/guest"
	"github.com/trustgate/trustgate/internal/identity"
	"github.com/trustgate/trustgate/internal/idp"
	"github.com/trustgate/trustgate/internal/observability/logger"
	"github.com/trustgate/trustgate/internal/observability/metrics"
	"github.com/trustgate/trustgate/internal/observability/tracing"
	"github.com/trustgate/trustgate/internal/realm"
	"github.com/trustgate/trustgate/internal/store/postgres"
	"github.com/trustgate/trustgate/internal/token"
	transportHTTP "github.com/trustgate/trustgate/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting trustgate auth core")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx := context.Background()

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
		os.Exit(1)
	}
	defer tracer.Shutdown(ctx)

	authMetrics, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
		os.Exit(1)
	}

	db, err := postgres.New(ctx, postgres.Config{
		Host:             cfg.Database.Host,
		Port:             cfg.Database.Port,
		User:             cfg.Database.User,
		Password:         cfg.Database.Password,
		Database:         cfg.Database.Database,
		SSLMode:          cfg.Database.SSLMode,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		StatementTimeout: cfg.Database.StatementTimeout,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	store, err := cache.NewRedis(ctx, cache.RedisConfig{
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	})
	if err != nil {
		slog.Error("failed to connect to cache", logger.Error(err))
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("connected to cache")

	provider, err := idp.NewClient(idp.Config{
		ServerURL:         cfg.Provider.ServerURL,
		AdminRealm:        cfg.Provider.AdminRealm,
		AdminClientID:     cfg.Provider.AdminClientID,
		AdminClientSecret: cfg.Provider.AdminClientSecret,
		AdminUsername:     cfg.Provider.AdminUsername,
		AdminPassword:     cfg.Provider.AdminPassword,
		Timeout:           cfg.Provider.Timeout,
		MaxConnections:    cfg.Provider.MaxConnections,
		RetryAttempts:     cfg.Provider.RetryAttempts,
		RetryBaseDelay:    cfg.Provider.RetryBaseDelay,
		RetryMaxDelay:     cfg.Provider.RetryMaxDelay,
	})
	if err != nil {
		slog.Error("failed to configure provider client", logger.Error(err))
		os.Exit(1)
	}
	adapters := idp.NewAdapters(provider)
	defer adapters.Close()

	secrets, err := realm.NewSecretCipher(cfg.Security.SecretKey, cfg.Security.AllowPlaintextSecrets)
	if err != nil {
		slog.Error("failed to initialize secret cipher", logger.Error(err))
		os.Exit(1)
	}

	// Repositories
	realmRepo := postgres.NewRealmRepository(db)
	userRepo := postgres.NewUserRepository(db)
	grantRepo := postgres.NewGrantRepository(db)
	authzRepo := postgres.NewAuthzRepository(db)

	// Services
	auditLogger := audit.NewSlogLogger()
	registry := realm.NewRegistry(realmRepo, store, provider, adapters, secrets, auditLogger, cfg.Cache.RealmTTL)
	registry.RegisterPlatformRealm(&realm.Config{
		ID:              "platform",
		RealmName:       cfg.Provider.AdminRealm,
		ServerURL:       provider.ServerURL(),
		ClientID:        cfg.Provider.AdminClientID,
		ClientSecret:    cfg.Provider.AdminClientSecret,
		PublicKeyTTL:    cfg.Cache.PublicKeyTTL,
		Status:          realm.StatusActive,
		VerifySignature: true,
		VerifyExp:       true,
		VerifyNbf:       true,
	})

	strategy, err := token.ParseStrategy(cfg.Token.DefaultStrategy)
	if err != nil {
		slog.Error("invalid token strategy", logger.Error(err))
		os.Exit(1)
	}
	validator := token.NewValidator(registry, store, cfg.Token.ClockSkew, cfg.Token.IntrospectTTL)
	mapper := identity.NewMapper(userRepo, grantRepo, store, auditLogger, cfg.Cache.MappingTTL)
	authorizer := authz.NewService(authzRepo, store, auditLogger)
	guests := guest.NewService(store, auditLogger, guest.Config{
		SessionTTL:   cfg.Guest.SessionTTL,
		IPLimit:      int64(cfg.Guest.IPPerHour),
		SessionLimit: int64(cfg.Guest.SessionPerHour),
		FailOpen:     cfg.Guest.FailOpen,
	})

	pipeline := transportHTTP.NewPipeline(
		registry, validator, mapper, authorizer, guests, store,
		authMetrics, strategy, cfg.Cache.TokenTTL,
	)
	handler := transportHTTP.NewHandler(registry, validator, mapper, authorizer, guests, pipeline, auditLogger)
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	router := transportHTTP.NewRouter(handler, pipeline, rateLimiter, transportHTTP.CORSOptions{
		AllowedOrigins: cfg.Server.CORSOrigins,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", logger.Error(err))
	}
	slog.Info("server stopped")
}

// runMigrate applies the embedded schema
func runMigrate(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := postgres.New(ctx, postgres.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: 2,
		MinConns: 1,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	slog.Info("schema applied")
	return nil
}

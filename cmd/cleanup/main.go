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

// Command cleanup prunes rows that queries already ignore: expired role
// assignments and deactivated access grants older than the retention
// window. Meant to run from cron.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/trustgate/trustgate/internal/config"
	"github.com/trustgate/trustgate/internal/store/postgres"
)

const grantRetention = 90 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
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
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	tag, err := db.Pool().Exec(ctx,
		`DELETE FROM user_roles WHERE expires_at IS NOT NULL AND expires_at < now()`)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to prune role assignments: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("pruned %d expired role assignments\n", tag.RowsAffected())

	tag, err = db.Pool().Exec(ctx,
		`DELETE FROM tenant_access_grants WHERE NOT is_active AND granted_at < now() - $1::interval`,
		fmt.Sprintf("%d hours", int(grantRetention.Hours())))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to prune access grants: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("pruned %d inactive access grants\n", tag.RowsAffected())
}

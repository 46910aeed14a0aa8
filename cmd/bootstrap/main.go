// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

// Command bootstrap seeds the very first super-admin account.
//
// It runs once against a fresh deployment, before the API server has any
// operator who could provision others. Credentials are printed to stdout
// exactly once; nothing is sent anywhere else.
//
// Usage:
//
//	bootstrap -email root@procura.market -first-name Root -last-name Operator
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/procuramarket/procura/internal/admin"
	"github.com/procuramarket/procura/internal/identity"
	"github.com/procuramarket/procura/internal/platform/config"
	"github.com/procuramarket/procura/internal/platform/constants"
	"github.com/procuramarket/procura/internal/platform/migration"
	pgstore "github.com/procuramarket/procura/internal/platform/postgres"
	"github.com/procuramarket/procura/internal/platform/sec"
	"github.com/procuramarket/procura/pkg/uuid"
)

func main() {
	email := flag.String("email", "", "email address for the super-admin account (required)")
	firstName := flag.String("first-name", "", "first name (required)")
	lastName := flag.String("last-name", "", "last name (required)")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})).With(slog.String("app", "procura-bootstrap"))

	if *email == "" || *firstName == "" || *lastName == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	must(log, err, "load configuration")

	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer pool.Close()

	// Bootstrap may run before the API ever has; bring the schema up first.
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	adminCode, err := admin.GenerateAdminCode()
	must(log, err, "generate admin code")

	tempPassword, err := sec.GenerateSecureToken(admin.TempPasswordBytes)
	must(log, err, "generate temporary password")

	hashedPassword, err := sec.HashPassword(tempPassword)
	must(log, err, "hash temporary password")

	roles, err := sec.NewRoleSet(sec.RoleSuperAdmin)
	must(log, err, "build role set")

	expiresAt := time.Now().Add(constants.TempCredentialTTL)
	record := &identity.Identity{
		ID:                  uuid.New(),
		Email:               identity.NormalizeIdentifier(*email),
		PasswordHash:        hashedPassword,
		FirstName:           *firstName,
		LastName:            *lastName,
		Roles:               roles,
		IsVerified:          true,
		IsActive:            true,
		AdminID:             adminCode,
		IsFirstLogin:        true,
		CredentialsExpireAt: &expiresAt,
	}

	repository := identity.NewIdentityRepository(pool)
	must(log, repository.Create(startupCtx, record), "create super-admin")

	// The one and only disclosure of these credentials. The first login
	// forces a password change before any session is issued.
	fmt.Println("Super-admin account created.")
	fmt.Printf("  admin_id:      %s\n", adminCode)
	fmt.Printf("  temp_password: %s\n", tempPassword)
	fmt.Printf("  expires_at:    %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println("Log in and change the password before the expiry above.")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("bootstrap failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}

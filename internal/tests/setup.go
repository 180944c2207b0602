// Package tests holds the Postgres-backed integration tests. They are skipped
// unless DATABASE_URL points at a disposable database.
package tests

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/ibhi/bitwarden-serverless/internal/auth"
	"github.com/ibhi/bitwarden-serverless/internal/db"
	httphandler "github.com/ibhi/bitwarden-serverless/internal/http"
	"github.com/ibhi/bitwarden-serverless/internal/http/handlers"
	"github.com/ibhi/bitwarden-serverless/internal/logging"
	"github.com/ibhi/bitwarden-serverless/internal/middleware"
	"github.com/ibhi/bitwarden-serverless/internal/repo"
	"github.com/ibhi/bitwarden-serverless/internal/twofactor"
)

// OpenAndMigrate connects to databaseURL and applies the embedded migrations.
func OpenAndMigrate(ctx context.Context, databaseURL string) (*sql.DB, error) {
	database, err := db.Open(ctx, databaseURL, db.DefaultPool, logging.Nop())
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return database, nil
}

// TruncateAuthTables truncates account and device tables for a clean test state.
func TruncateAuthTables(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(ctx, "TRUNCATE TABLE devices, accounts CASCADE")
	if err != nil {
		return fmt.Errorf("truncate auth tables: %w", err)
	}
	return nil
}

// NewRouter wires the full server against database, as cmd/api does.
func NewRouter(database *sql.DB, limiter middleware.Limiter) http.Handler {
	log := logging.Nop()
	accounts := repo.NewAccountRepo(database)
	devices := repo.NewDeviceRepo(database)

	authenticator := twofactor.NewAuthenticator(1, nil)
	u2f := twofactor.NewU2F(accounts, "https://vault.test")
	generic := twofactor.NewGeneric(accounts)
	registry := twofactor.NewRegistry(authenticator, u2f, twofactor.NewRemember())

	tokens := auth.NewTokenIssuer(accounts, devices, nil)
	login := auth.NewLoginService(accounts, auth.NewDeviceRegistry(devices, log), tokens, generic, registry, log)

	return httphandler.NewRouter(httphandler.Deps{
		Identity:     handlers.NewIdentityHandler(login),
		Accounts:     handlers.NewAccountsHandler(auth.NewAccountService(accounts, false, log), log),
		TwoFactor:    handlers.NewTwoFactorHandler(twofactor.NewService(accounts, generic, authenticator, u2f, log), log),
		Health:       handlers.NewHealthHandler(database),
		Tokens:       tokens,
		LoginLimiter: limiter,
		Log:          log,
	})
}

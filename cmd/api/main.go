package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ibhi/bitwarden-serverless/internal/auth"
	"github.com/ibhi/bitwarden-serverless/internal/config"
	"github.com/ibhi/bitwarden-serverless/internal/db"
	httphandler "github.com/ibhi/bitwarden-serverless/internal/http"
	"github.com/ibhi/bitwarden-serverless/internal/http/handlers"
	"github.com/ibhi/bitwarden-serverless/internal/logging"
	"github.com/ibhi/bitwarden-serverless/internal/middleware"
	"github.com/ibhi/bitwarden-serverless/internal/repo"
	"github.com/ibhi/bitwarden-serverless/internal/twofactor"
)

func main() {
	// Load .env from CWD (env vars override)
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	// Create context for startup operations and background workers
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.SlogLogger) error {
	// Storage: Postgres when configured, otherwise the in-memory store (dev mode)
	var (
		accounts repo.AccountRepo
		devices  repo.DeviceRepo
		pinger   handlers.Pinger
	)
	if cfg.DatabaseURL != "" {
		database, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultPool, logger)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer database.Close()

		if err := db.Migrate(ctx, database); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}

		accounts = repo.NewAccountRepo(database)
		devices = repo.NewDeviceRepo(database)
		pinger = database
	} else {
		logger.Warn(ctx, "DEV_MODE without DATABASE_URL, data is kept in memory only")
		store := repo.NewMemoryStore()
		accounts = store.Accounts()
		devices = store.Devices()
	}

	// Login rate limiter: Redis when configured so limits hold across instances
	var limiter middleware.Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		limiter = middleware.NewRedisLimiter(client, "login", cfg.LoginRateWindow, cfg.LoginRateLimit)
	} else {
		limiter = middleware.NewMemoryLimiter(ctx, cfg.LoginRateWindow, cfg.LoginRateLimit)
	}

	// Two-factor providers
	authenticator := twofactor.NewAuthenticator(cfg.TOTPSkew, nil)
	u2f := twofactor.NewU2F(accounts, cfg.U2FAppID)
	generic := twofactor.NewGeneric(accounts)
	registry := twofactor.NewRegistry(authenticator, u2f, twofactor.NewRemember())

	// Auth services
	tokens := auth.NewTokenIssuer(accounts, devices, nil)
	deviceRegistry := auth.NewDeviceRegistry(devices, logger)
	login := auth.NewLoginService(accounts, deviceRegistry, tokens, generic, registry, logger)
	accountService := auth.NewAccountService(accounts, cfg.DisableUserRegistration, logger)
	twoFactorService := twofactor.NewService(accounts, generic, authenticator, u2f, logger)

	// Create router
	router := httphandler.NewRouter(httphandler.Deps{
		Identity:     handlers.NewIdentityHandler(login),
		Accounts:     handlers.NewAccountsHandler(accountService, logger),
		TwoFactor:    handlers.NewTwoFactorHandler(twoFactorService, logger),
		Health:       handlers.NewHealthHandler(pinger),
		Tokens:       tokens,
		LoginLimiter: limiter,
		Log:          logger,
	})

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "server starting", "port", cfg.Port, "u2f_app_id", cfg.U2FAppID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}

	logger.Info(ctx, "shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info(ctx, "server exited")
	return nil
}

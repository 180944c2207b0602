package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL             string        `toml:"database_url"`
	Port                    string        `toml:"port"`
	DevMode                 bool          `toml:"dev_mode"`
	U2FAppID                string        `toml:"u2f_app_id"`
	DisableUserRegistration bool          `toml:"disable_user_registration"`
	TOTPSkew                uint          `toml:"totp_skew"`
	RedisURL                string        `toml:"redis_url"`
	LoginRateLimit          int           `toml:"login_rate_limit"`
	LoginRateWindow         time.Duration `toml:"login_rate_window"`
	LogLevel                string        `toml:"log_level"`
	LogFormat               string        `toml:"log_format"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Port:            "8080",
		U2FAppID:        "https://localhost:8080",
		TOTPSkew:        1,
		LoginRateLimit:  20,
		LoginRateWindow: time.Minute,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// Load resolves configuration from defaults, the optional TOML file named by
// CONFIG_FILE, and environment variables, in that order.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("CONFIG_FILE %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	// DATABASE_URL is only optional in dev mode, which uses the in-memory store
	if cfg.DatabaseURL == "" && !cfg.DevMode {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.LoginRateLimit <= 0 {
		return nil, fmt.Errorf("LOGIN_RATE_LIMIT must be positive, got %d", cfg.LoginRateLimit)
	}
	if cfg.LoginRateWindow <= 0 {
		return nil, fmt.Errorf("LOGIN_RATE_WINDOW must be positive, got %s", cfg.LoginRateWindow)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("DEV_MODE"); v != "" {
		c.DevMode = isTrue(v)
	}
	if v := os.Getenv("U2F_APP_ID"); v != "" {
		c.U2FAppID = v
	}
	if v := os.Getenv("DISABLE_USER_REGISTRATION"); v != "" {
		c.DisableUserRegistration = isTrue(v)
	}
	if v := os.Getenv("TOTP_SKEW"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("TOTP_SKEW: %w", err)
		}
		c.TOTPSkew = uint(n)
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("LOGIN_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LOGIN_RATE_LIMIT: %w", err)
		}
		c.LoginRateLimit = n
	}
	if v := os.Getenv("LOGIN_RATE_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("LOGIN_RATE_WINDOW: %w", err)
		}
		c.LoginRateWindow = d
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	return nil
}

func isTrue(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1"
}

// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// knownWeakSecrets contains default/example secrets that must be rejected in production.
var knownWeakSecrets = []string{
	"change-me-to-32-byte-secret-key!",
	"REPLACE_WITH_YOUR_OWN_SECRET_KEY!",
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath        string `env:"PORTAL_DB_PATH" envDefault:"./data/oportal.db"`
	SessionSecret string `env:"PORTAL_SESSION_SECRET,required"`
	ServerHost    string `env:"PORTAL_SERVER_HOST" envDefault:"localhost"`
	ServerPort    int    `env:"PORTAL_SERVER_PORT" envDefault:"8080"`
	Env           string `env:"PORTAL_ENV" envDefault:"development"`
	LogLevel      string `env:"PORTAL_LOG_LEVEL" envDefault:"info"`

	// Backend API
	BackendURL     string        `env:"PORTAL_BACKEND_URL,required"`
	BackendTimeout time.Duration `env:"PORTAL_BACKEND_TIMEOUT" envDefault:"15s"`

	// Cache configuration
	RedisURL    string        `env:"PORTAL_REDIS_URL"`                           // Optional Redis URL for the catalog cache
	CachePrefix string        `env:"PORTAL_CACHE_PREFIX" envDefault:"oportal:"` // Redis key prefix
	CatalogTTL  time.Duration `env:"PORTAL_CATALOG_TTL" envDefault:"10m"`
	SnapshotTTL time.Duration `env:"PORTAL_SNAPSHOT_TTL" envDefault:"5m"` // How long a cached identity is trusted
	SessionIdle time.Duration `env:"PORTAL_SESSION_IDLE" envDefault:"30m"` // Live handles unused this long are swept

	RenewalWarningDays int `env:"PORTAL_RENEWAL_WARNING_DAYS" envDefault:"7"`

	// Payments
	PaymentMinAmount  int    `env:"PORTAL_PAYMENT_MIN_AMOUNT" envDefault:"10"`
	PaymentMaxAmount  int    `env:"PORTAL_PAYMENT_MAX_AMOUNT" envDefault:"50000"`
	CheckoutScriptURL string `env:"PORTAL_CHECKOUT_SCRIPT_URL" envDefault:"https://checkout.razorpay.com/v1/checkout.js"`

	GoogleClientID string `env:"PORTAL_GOOGLE_CLIENT_ID"`

	EventRetentionDays int `env:"PORTAL_EVENT_RETENTION_DAYS" envDefault:"30"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// GoogleLoginEnabled reports whether the Google sign-in button is shown.
func (c Config) GoogleLoginEnabled() bool {
	return c.GoogleClientID != ""
}

// CheckoutOrigin returns the scheme and host serving the checkout script,
// or "" when the URL is unusable.
func (c Config) CheckoutOrigin() string {
	u, err := url.Parse(c.CheckoutScriptURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// EventRetention returns how long audit events are kept.
func (c Config) EventRetention() time.Duration {
	return time.Duration(c.EventRetentionDays) * 24 * time.Hour
}

// MinSessionSecretLength is the minimum required length for the session secret.
// It doubles as the CSRF key, which must be 32 bytes.
const MinSessionSecretLength = 32

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Validate session secret length
	if len(cfg.SessionSecret) < MinSessionSecretLength {
		return nil, fmt.Errorf("PORTAL_SESSION_SECRET must be at least %d bytes long, got %d bytes; "+
			"generate a secure secret with: openssl rand -base64 32",
			MinSessionSecretLength, len(cfg.SessionSecret))
	}

	// Reject known weak/default secrets
	for _, weak := range knownWeakSecrets {
		if cfg.SessionSecret == weak {
			return nil, fmt.Errorf("PORTAL_SESSION_SECRET is a known default value and must not be used; " +
				"generate a secure secret with: openssl rand -base64 32")
		}
	}

	// Warn about low-entropy secrets
	if !hasMinimumEntropy(cfg.SessionSecret) {
		slog.Warn("PORTAL_SESSION_SECRET has low character diversity; " +
			"consider generating a random secret with: openssl rand -base64 32")
	}

	u, err := url.Parse(cfg.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("PORTAL_BACKEND_URL must be an absolute http(s) URL, got %q", cfg.BackendURL)
	}

	if cfg.PaymentMinAmount <= 0 || cfg.PaymentMaxAmount < cfg.PaymentMinAmount {
		return nil, fmt.Errorf("invalid payment bounds: min %d, max %d", cfg.PaymentMinAmount, cfg.PaymentMaxAmount)
	}
	if cfg.RenewalWarningDays < 0 {
		return nil, fmt.Errorf("PORTAL_RENEWAL_WARNING_DAYS must not be negative")
	}

	return cfg, nil
}

// hasMinimumEntropy checks that a secret contains at least 3 character classes
// (lowercase, uppercase, digits, special characters).
func hasMinimumEntropy(s string) bool {
	charTypes := 0
	if strings.ContainsAny(s, "abcdefghijklmnopqrstuvwxyz") {
		charTypes++
	}
	if strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		charTypes++
	}
	if strings.ContainsAny(s, "0123456789") {
		charTypes++
	}
	if strings.ContainsAny(s, "!@#$%^&*()-_=+[]{}|;:,.<>?/~`'\"\\") {
		charTypes++
	}
	return charTypes >= 3
}

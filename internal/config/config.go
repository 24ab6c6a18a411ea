// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SessionCacheMode selects how sessions are accelerated in the cache store.
type SessionCacheMode string

const (
	// SessionCacheModeCookie caches sessionID -> userID pointers; used when the
	// client holds an opaque session cookie.
	SessionCacheModeCookie SessionCacheMode = "cookie"
	// SessionCacheModeBearer caches only revocation markers; used when the
	// client holds stateless access tokens.
	SessionCacheModeBearer SessionCacheMode = "bearer"
)

// minPasswordResetCodeTTL is the floor for PASSWORD_RESET_CODE_TTL. Shorter
// windows make reset codes unusable over slow delivery channels.
const minPasswordResetCodeTTL = 5 * time.Minute

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN for the durable session and code stores.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the host:port of the Redis cache store.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional Redis AUTH password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// SessionCacheMode is "cookie" or "bearer"; selects the cache strategy.
	SessionCacheMode string `mapstructure:"SESSION_CACHE_MODE"`
	// MaxSessionsPerUser caps live sessions per user; oldest are evicted at issuance.
	MaxSessionsPerUser int `mapstructure:"MAX_SESSIONS_PER_USER"`
	// StaleRefreshAfter is how long a session may sit unused before refresh is
	// refused (e.g. "720h").
	StaleRefreshAfter string `mapstructure:"STALE_REFRESH_AFTER"`
	// CacheExpiration is the TTL for cached session pointers (e.g. "30m").
	CacheExpiration string `mapstructure:"CACHE_EXPIRATION"`
	// AccessTokenTTL is the access token lifetime (e.g. "15m"); also bounds
	// revocation marker TTLs.
	AccessTokenTTL string `mapstructure:"ACCESS_TOKEN_TTL"`
	// RevocationOffset pads revocation marker TTLs against clock skew (e.g. "15s").
	RevocationOffset string `mapstructure:"REVOCATION_OFFSET"`
	// ResendLimit is how many resends of a confirmation/reset code are allowed
	// after the initial send.
	ResendLimit int `mapstructure:"RESEND_LIMIT"`
	// ResendTimeLimit is the minimum interval between code sends (e.g. "60s").
	ResendTimeLimit string `mapstructure:"RESEND_TIME_LIMIT"`
	// PasswordResetCodeTTL is the reset code lifetime (e.g. "15m"); must be >= 5m.
	PasswordResetCodeTTL string `mapstructure:"PASSWORD_RESET_CODE_TTL"`
	// BcryptCost is the bcrypt cost factor (4-31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim on issued access tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim on issued access tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint for telemetry; empty
	// disables export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// BlockedEmailDomains is a comma-separated list of disposable email domains
	// refused for confirmation codes; merged with the built-in list.
	BlockedEmailDomains string `mapstructure:"BLOCKED_EMAIL_DOMAINS"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields
// are invalid; callers must treat an error as fatal before accepting traffic.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("SESSION_CACHE_MODE", string(SessionCacheModeCookie))
	v.SetDefault("MAX_SESSIONS_PER_USER", 5)
	v.SetDefault("STALE_REFRESH_AFTER", "720h") // 30d
	v.SetDefault("CACHE_EXPIRATION", "30m")
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("REVOCATION_OFFSET", "15s")
	v.SetDefault("RESEND_LIMIT", 3)
	v.SetDefault("RESEND_TIME_LIMIT", "60s")
	v.SetDefault("PASSWORD_RESET_CODE_TTL", "15m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("JWT_ISSUER", "acp-auth")
	v.SetDefault("JWT_AUDIENCE", "acp-api")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("BLOCKED_EMAIL_DOMAINS", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	switch SessionCacheMode(cfg.SessionCacheMode) {
	case SessionCacheModeCookie, SessionCacheModeBearer:
	default:
		return nil, fmt.Errorf("config: SESSION_CACHE_MODE must be cookie or bearer, got %q", cfg.SessionCacheMode)
	}

	if cfg.MaxSessionsPerUser < 1 {
		return nil, errors.New("config: MAX_SESSIONS_PER_USER must be at least 1")
	}
	if cfg.ResendLimit < 0 {
		return nil, errors.New("config: RESEND_LIMIT must not be negative")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	for _, d := range []struct {
		name  string
		value string
	}{
		{"STALE_REFRESH_AFTER", cfg.StaleRefreshAfter},
		{"CACHE_EXPIRATION", cfg.CacheExpiration},
		{"ACCESS_TOKEN_TTL", cfg.AccessTokenTTL},
		{"REVOCATION_OFFSET", cfg.RevocationOffset},
		{"RESEND_TIME_LIMIT", cfg.ResendTimeLimit},
		{"PASSWORD_RESET_CODE_TTL", cfg.PasswordResetCodeTTL},
	} {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("config: %s is not a valid duration: %q", d.name, d.value)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("config: %s must be positive, got %q", d.name, d.value)
		}
	}

	if ttl, _ := time.ParseDuration(cfg.PasswordResetCodeTTL); ttl < minPasswordResetCodeTTL {
		return nil, fmt.Errorf("config: PASSWORD_RESET_CODE_TTL must be at least %s, got %q", minPasswordResetCodeTTL, cfg.PasswordResetCodeTTL)
	}

	return &cfg, nil
}

// CacheMode returns the parsed session cache mode. Load guarantees validity.
func (c *Config) CacheMode() SessionCacheMode {
	return SessionCacheMode(c.SessionCacheMode)
}

// StaleRefreshAfterDuration parses StaleRefreshAfter. Returns 720h if unset or invalid.
func (c *Config) StaleRefreshAfterDuration() time.Duration {
	return durationOr(c.StaleRefreshAfter, 720*time.Hour)
}

// CacheExpirationDuration parses CacheExpiration. Returns 30m if unset or invalid.
func (c *Config) CacheExpirationDuration() time.Duration {
	return durationOr(c.CacheExpiration, 30*time.Minute)
}

// AccessTokenTTLDuration parses AccessTokenTTL. Returns 15m if unset or invalid.
func (c *Config) AccessTokenTTLDuration() time.Duration {
	return durationOr(c.AccessTokenTTL, 15*time.Minute)
}

// RevocationOffsetDuration parses RevocationOffset. Returns 15s if unset or invalid.
func (c *Config) RevocationOffsetDuration() time.Duration {
	return durationOr(c.RevocationOffset, 15*time.Second)
}

// ResendTimeLimitDuration parses ResendTimeLimit. Returns 60s if unset or invalid.
func (c *Config) ResendTimeLimitDuration() time.Duration {
	return durationOr(c.ResendTimeLimit, time.Minute)
}

// PasswordResetCodeTTLDuration parses PasswordResetCodeTTL. Returns 15m if unset or invalid.
func (c *Config) PasswordResetCodeTTLDuration() time.Duration {
	return durationOr(c.PasswordResetCodeTTL, 15*time.Minute)
}

// BlockedEmailDomainList splits BlockedEmailDomains on commas, dropping blanks.
func (c *Config) BlockedEmailDomainList() []string {
	var out []string
	for _, d := range strings.Split(c.BlockedEmailDomains, ",") {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

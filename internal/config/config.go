// Package config loads and validates service configuration from the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the API server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the PostgreSQL DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment ("development", "production").
	Env string `mapstructure:"APP_ENV"`

	// SessionTTL is the lifetime of an issued session (e.g. "12h").
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// BcryptCost is the bcrypt cost factor (4-31).
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// TwoFactorIssuer is the issuer label embedded in otpauth provisioning URLs.
	TwoFactorIssuer string `mapstructure:"TWO_FACTOR_ISSUER"`
	// StepUpRoles is a comma-separated list of roles requiring a verified
	// second factor before any permissioned route is served.
	StepUpRoles string `mapstructure:"STEP_UP_ROLES"`

	// AuditQueueSize bounds the in-process audit outbox.
	AuditQueueSize int `mapstructure:"AUDIT_QUEUE_SIZE"`
	// AuditRetentionYears sets the retention window stamped on audit records.
	AuditRetentionYears int `mapstructure:"AUDIT_RETENTION_YEARS"`

	// RateLimitPerSecond and RateLimitBurst tune the per-IP token bucket.
	RateLimitPerSecond int `mapstructure:"RATE_LIMIT_PER_SECOND"`
	RateLimitBurst     int `mapstructure:"RATE_LIMIT_BURST"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Missing .env is ignored; real env vars win over file values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("TWO_FACTOR_ISSUER", "opticore")
	v.SetDefault("STEP_UP_ROLES", "optometrist,contact_lens_optician,tenant_admin,platform_admin")
	v.SetDefault("AUDIT_QUEUE_SIZE", 1024)
	v.SetDefault("AUDIT_RETENTION_YEARS", 6)
	v.SetDefault("RATE_LIMIT_PER_SECOND", 25)
	v.SetDefault("RATE_LIMIT_BURST", 50)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, fmt.Errorf("config: BCRYPT_COST must be between 4 and 31, got %d", cfg.BcryptCost)
	}
	if cfg.AuditQueueSize <= 0 {
		return nil, errors.New("config: AUDIT_QUEUE_SIZE must be positive")
	}
	if cfg.AuditRetentionYears < 6 {
		return nil, errors.New("config: AUDIT_RETENTION_YEARS must be at least 6")
	}

	return &cfg, nil
}

// SessionLifetime parses SessionTTL, falling back to 12h when unset or invalid.
func (c *Config) SessionLifetime() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil || d <= 0 {
		return 12 * time.Hour
	}
	return d
}

// StepUpRoleSet splits StepUpRoles into a set of normalized role names.
func (c *Config) StepUpRoleSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, role := range strings.Split(c.StepUpRoles, ",") {
		role = strings.TrimSpace(strings.ToLower(role))
		if role != "" {
			set[role] = struct{}{}
		}
	}
	return set
}

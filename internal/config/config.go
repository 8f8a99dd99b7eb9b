// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvProduction is the APP_ENV value that turns on production-only checks.
const EnvProduction = "production"

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty outside production runs on in-memory stores.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// DBTimeout bounds every datastore call (e.g. "3s").
	DBTimeout string `mapstructure:"DB_TIMEOUT"`

	// JWTSecret is the HS256 shared secret (at least 32 bytes). Ignored when a key pair is set.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token and session lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// HashConcurrency caps simultaneous bcrypt operations; 0 means NumCPU.
	HashConcurrency int `mapstructure:"HASH_CONCURRENCY"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// CookieSecure forces the Secure attribute outside production.
	CookieSecure   bool   `mapstructure:"COOKIE_SECURE"`
	CookieDomain   string `mapstructure:"COOKIE_DOMAIN"`
	CookieSameSite string `mapstructure:"COOKIE_SAMESITE"`
	// LoginPath is where unauthenticated page requests are redirected.
	LoginPath string `mapstructure:"LOGIN_PATH"`

	// RateLimitBackend is "memory" (per process) or "redis" (shared across instances).
	RateLimitBackend string `mapstructure:"RATE_LIMIT_BACKEND"`
	// RedisURL is the redis:// URL used when RateLimitBackend is redis.
	RedisURL               string `mapstructure:"REDIS_URL"`
	RateLimitSweepInterval string `mapstructure:"RATE_LIMIT_SWEEP_INTERVAL"`
	SessionPurgeInterval   string `mapstructure:"SESSION_PURGE_INTERVAL"`
	// UserCacheTTL is how long a loaded user is reused by current-user checks; "0s" disables the cache.
	UserCacheTTL string `mapstructure:"USER_CACHE_TTL"`
	// RefreshReuseRevokesAll revokes every session of a user when a spent refresh token is presented.
	RefreshReuseRevokesAll bool   `mapstructure:"REFRESH_REUSE_REVOKES_ALL"`
	PasswordResetTTL       string `mapstructure:"PASSWORD_RESET_TTL"`
	// DevResetLinksInLog writes raw password reset tokens to the log. Must not be true in production.
	DevResetLinksInLog bool `mapstructure:"DEV_RESET_LINKS_IN_LOG"`

	// OTLPEndpoint enables trace, metric and log export when set (e.g. localhost:4317).
	OTLPEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout string `mapstructure:"SHUTDOWN_TIMEOUT"`

	// Seed-only: the admin account created by cmd/seed.
	SeedAdminEmail    string `mapstructure:"SEED_ADMIN_EMAIL"`
	SeedAdminUsername string `mapstructure:"SEED_ADMIN_USERNAME"`
	SeedAdminPassword string `mapstructure:"SEED_ADMIN_PASSWORD"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_TIMEOUT", "3s")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "botdash-auth")
	v.SetDefault("JWT_AUDIENCE", "botdash-dashboard")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("HASH_CONCURRENCY", 0)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_SAMESITE", "lax")
	v.SetDefault("LOGIN_PATH", "/login")
	v.SetDefault("RATE_LIMIT_BACKEND", "memory")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("RATE_LIMIT_SWEEP_INTERVAL", "1m")
	v.SetDefault("SESSION_PURGE_INTERVAL", "1h")
	v.SetDefault("USER_CACHE_TTL", "30s")
	v.SetDefault("REFRESH_REUSE_REVOKES_ALL", false)
	v.SetDefault("PASSWORD_RESET_TTL", "1h")
	v.SetDefault("DEV_RESET_LINKS_IN_LOG", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "botdash-auth")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("SEED_ADMIN_EMAIL", "admin@example.com")
	v.SetDefault("SEED_ADMIN_USERNAME", "admin")
	v.SetDefault("SEED_ADMIN_PASSWORD", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}

	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.HashConcurrency < 0 {
		return errors.New("config: HASH_CONCURRENCY must not be negative")
	}

	if (c.JWTPrivateKey == "") != (c.JWTPublicKey == "") {
		return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set together")
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return errors.New("config: JWT_SECRET must be at least 32 bytes")
	}

	c.CookieSameSite = strings.ToLower(strings.TrimSpace(c.CookieSameSite))
	switch c.CookieSameSite {
	case "", "lax", "strict", "none":
	default:
		return fmt.Errorf("config: COOKIE_SAMESITE must be lax, strict or none, got %q", c.CookieSameSite)
	}

	c.RateLimitBackend = strings.ToLower(strings.TrimSpace(c.RateLimitBackend))
	switch c.RateLimitBackend {
	case "", "memory":
		c.RateLimitBackend = "memory"
	case "redis":
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL must be set when RATE_LIMIT_BACKEND=redis")
		}
	default:
		return fmt.Errorf("config: RATE_LIMIT_BACKEND must be memory or redis, got %q", c.RateLimitBackend)
	}

	if c.IsProduction() {
		if c.DevResetLinksInLog {
			return errors.New("config: DEV_RESET_LINKS_IN_LOG must not be true when APP_ENV=production")
		}
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when APP_ENV=production")
		}
		if c.JWTSecret == "" && c.JWTPrivateKey == "" {
			return errors.New("config: JWT_SECRET or JWT_PRIVATE_KEY/JWT_PUBLIC_KEY must be set when APP_ENV=production")
		}
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, EnvProduction)
}

// SecureCookies reports whether cookies carry the Secure attribute.
func (c *Config) SecureCookies() bool {
	return c.CookieSecure || c.IsProduction()
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// DBTimeoutDuration returns DBTimeout, or 3s if unset or invalid.
func (c *Config) DBTimeoutDuration() time.Duration {
	return parseDuration(c.DBTimeout, 3*time.Second)
}

// RateLimitSweep returns RateLimitSweepInterval, or 1m if unset or invalid.
func (c *Config) RateLimitSweep() time.Duration {
	return parseDuration(c.RateLimitSweepInterval, time.Minute)
}

// SessionPurge returns SessionPurgeInterval, or 1h if unset or invalid.
func (c *Config) SessionPurge() time.Duration {
	return parseDuration(c.SessionPurgeInterval, time.Hour)
}

// UserCache returns UserCacheTTL. An explicit "0s" disables the cache; unset or invalid means 30s.
func (c *Config) UserCache() time.Duration {
	d, err := time.ParseDuration(c.UserCacheTTL)
	if err != nil || d < 0 {
		return 30 * time.Second
	}
	return d
}

// PasswordResetLifetime returns PasswordResetTTL, or 1h if unset or invalid.
func (c *Config) PasswordResetLifetime() time.Duration {
	return parseDuration(c.PasswordResetTTL, time.Hour)
}

// ShutdownGrace returns ShutdownTimeout, or 15s if unset or invalid.
func (c *Config) ShutdownGrace() time.Duration {
	return parseDuration(c.ShutdownTimeout, 15*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

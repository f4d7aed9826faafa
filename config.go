package goToken

import (
	"errors"
	"strings"
	"time"
)

// Config is the complete engine configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	JWT       JWTConfig
	OneTime   OneTimeConfig
	Rotation  RotationConfig
	Blacklist BlacklistConfig
	Store     StoreConfig
	RateLimit RateLimitConfig
	Cleanup   CleanupConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls signing keys, lifetimes and claim validation.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
	// KeyID is written to the kid header. VerifyKeys holds additional public keys
	// (or HMAC secrets) by kid so tokens signed before a key rotation still verify.
	KeyID      string
	VerifyKeys map[string][]byte
}

/*
====================================
ONE-TIME TOKEN CONFIG
====================================
*/

// OneTimeConfig sets the lifetime of each one-time token purpose. A zero TTL
// disables that purpose.
type OneTimeConfig struct {
	EmailVerificationTTL time.Duration
	PasswordResetTTL     time.Duration
	AccountActivationTTL time.Duration
}

/*
====================================
ROTATION / REVOCATION CONFIG
====================================
*/

// RotationConfig controls refresh token redemption.
type RotationConfig struct {
	// SerializeLocally runs each redemption under an in-process per-token lock.
	// Only useful for single-instance deployments on a store without a conditional update.
	SerializeLocally bool
	// RevokeFamilyOnReplay revokes every refresh token of the user when a used or
	// revoked refresh token is presented again.
	RevokeFamilyOnReplay bool
}

// BlacklistConfig controls the revocation cache.
type BlacklistConfig struct {
	RedisPrefix string
	// RevokeIssuedAccess makes Revoke/RevokeAll also reject access tokens issued
	// before the revocation, for one access TTL.
	RevokeIssuedAccess bool
}

// StoreConfig controls the default Redis record store.
type StoreConfig struct {
	RedisPrefix string
	// Retention keeps expired records around this long past expiry before Redis
	// evicts them on its own.
	Retention time.Duration
}

// RateLimitConfig throttles redemptions per user. Requires a Redis client.
type RateLimitConfig struct {
	RedisPrefix           string
	EnableRefreshThrottle bool
	MaxRefreshAttempts    int
	RefreshWindow         time.Duration
	EnableOneTimeThrottle bool
	MaxOneTimeAttempts    int
	OneTimeWindow         time.Duration
}

// CleanupConfig controls the background sweeper started by [Engine.StartCleanup].
type CleanupConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			MaxFutureIAT:  10 * time.Minute,
		},
		OneTime: OneTimeConfig{
			EmailVerificationTTL: 24 * time.Hour,
			PasswordResetTTL:     30 * time.Minute,
			AccountActivationTTL: 72 * time.Hour,
		},
		Rotation: RotationConfig{
			SerializeLocally:     false,
			RevokeFamilyOnReplay: false,
		},
		Blacklist: BlacklistConfig{
			RedisPrefix:        "gt:bl",
			RevokeIssuedAccess: false,
		},
		Store: StoreConfig{
			RedisPrefix: "gt",
			Retention:   24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			RedisPrefix:           "gt:rl",
			EnableRefreshThrottle: false,
			MaxRefreshAttempts:    20,
			RefreshWindow:         time.Minute,
			EnableOneTimeThrottle: false,
			MaxOneTimeAttempts:    10,
			OneTimeWindow:         15 * time.Minute,
		},
		Cleanup: CleanupConfig{
			Interval: time.Hour,
			Timeout:  30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the configuration used by [New] before WithConfig.
// Keys must still be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error, if any.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.MaxFutureIAT < 0 || c.JWT.MaxFutureIAT > 24*time.Hour {
		return errors.New("JWT MaxFutureIAT must be between 0 and 24h")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}
	if c.JWT.Issuer != "" && strings.TrimSpace(c.JWT.Issuer) == "" {
		return errors.New("JWT Issuer must not be blank")
	}
	for kid, key := range c.JWT.VerifyKeys {
		if strings.TrimSpace(kid) == "" || len(key) == 0 {
			return errors.New("JWT VerifyKeys entries need a kid and a key")
		}
	}

	// One-time
	if c.OneTime.EmailVerificationTTL < 0 ||
		c.OneTime.PasswordResetTTL < 0 ||
		c.OneTime.AccountActivationTTL < 0 {
		return errors.New("OneTime TTLs must be >= 0")
	}

	// Store
	if strings.TrimSpace(c.Store.RedisPrefix) == "" {
		return errors.New("Store RedisPrefix must not be empty")
	}
	if c.Store.Retention < 0 {
		return errors.New("Store Retention must be >= 0")
	}
	if strings.TrimSpace(c.Blacklist.RedisPrefix) == "" {
		return errors.New("Blacklist RedisPrefix must not be empty")
	}

	// Rate limiting
	if c.RateLimit.EnableRefreshThrottle {
		if c.RateLimit.MaxRefreshAttempts <= 0 || c.RateLimit.RefreshWindow <= 0 {
			return errors.New("RateLimit refresh throttle needs MaxRefreshAttempts > 0 and RefreshWindow > 0")
		}
	}
	if c.RateLimit.EnableOneTimeThrottle {
		if c.RateLimit.MaxOneTimeAttempts <= 0 || c.RateLimit.OneTimeWindow <= 0 {
			return errors.New("RateLimit one-time throttle needs MaxOneTimeAttempts > 0 and OneTimeWindow > 0")
		}
	}

	// Cleanup
	if c.Cleanup.Interval < 0 {
		return errors.New("Cleanup Interval must be >= 0")
	}
	if c.Cleanup.Timeout < 0 {
		return errors.New("Cleanup Timeout must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func (c *Config) oneTimeTTLs() map[Purpose]time.Duration {
	out := make(map[Purpose]time.Duration, 3)
	if c.OneTime.EmailVerificationTTL > 0 {
		out[PurposeEmailVerification] = c.OneTime.EmailVerificationTTL
	}
	if c.OneTime.PasswordResetTTL > 0 {
		out[PurposePasswordReset] = c.OneTime.PasswordResetTTL
	}
	if c.OneTime.AccountActivationTTL > 0 {
		out[PurposeAccountActivation] = c.OneTime.AccountActivationTTL
	}
	return out
}

func (c *Config) rateLimitEnabled() bool {
	return c.RateLimit.EnableRefreshThrottle || c.RateLimit.EnableOneTimeThrottle
}

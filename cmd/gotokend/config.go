package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	goToken "github.com/MrEthical07/goToken"
)

// serverConfig is the daemon environment. Engine settings map onto
// goToken.Config in engineConfig.
type serverConfig struct {
	Addr        string `env:"GOTOKEN_ADDR"          envDefault:":8080"`
	MetricsAddr string `env:"GOTOKEN_METRICS_ADDR"  envDefault:""`
	LogLevel    string `env:"GOTOKEN_LOG_LEVEL"     envDefault:"info"`
	LogPretty   bool   `env:"GOTOKEN_LOG_PRETTY"    envDefault:"false"`
	IssueKey    string `env:"GOTOKEN_ISSUE_KEY"`
	UsersFile   string `env:"GOTOKEN_USERS_FILE"`
	Backend     string `env:"GOTOKEN_BACKEND"       envDefault:"memory"`
	RedisAddr   string `env:"GOTOKEN_REDIS_ADDR"    envDefault:"localhost:6379"`
	RedisDB     int    `env:"GOTOKEN_REDIS_DB"      envDefault:"0"`
	PostgresDSN string `env:"GOTOKEN_POSTGRES_DSN"`
	MongoURI    string `env:"GOTOKEN_MONGO_URI"`
	MongoDB     string `env:"GOTOKEN_MONGO_DB"      envDefault:"gotoken"`
	AuditLog    bool   `env:"GOTOKEN_AUDIT_LOG"     envDefault:"false"`

	ShutdownWait time.Duration `env:"GOTOKEN_SHUTDOWN_WAIT" envDefault:"10s"`

	SigningMethod  string        `env:"GOTOKEN_SIGNING_METHOD"   envDefault:"ed25519"`
	PrivateKeyFile string        `env:"GOTOKEN_PRIVATE_KEY_FILE"`
	PublicKeyFile  string        `env:"GOTOKEN_PUBLIC_KEY_FILE"`
	HMACSecret     string        `env:"GOTOKEN_HMAC_SECRET"`
	KeyID          string        `env:"GOTOKEN_KEY_ID"`
	Issuer         string        `env:"GOTOKEN_ISSUER"`
	Audience       string        `env:"GOTOKEN_AUDIENCE"`
	AccessTTL      time.Duration `env:"GOTOKEN_ACCESS_TTL"       envDefault:"15m"`
	RefreshTTL     time.Duration `env:"GOTOKEN_REFRESH_TTL"      envDefault:"168h"`
	Leeway         time.Duration `env:"GOTOKEN_LEEWAY"           envDefault:"0s"`

	EmailVerificationTTL time.Duration `env:"GOTOKEN_EMAIL_VERIFICATION_TTL" envDefault:"24h"`
	PasswordResetTTL     time.Duration `env:"GOTOKEN_PASSWORD_RESET_TTL"     envDefault:"30m"`
	AccountActivationTTL time.Duration `env:"GOTOKEN_ACCOUNT_ACTIVATION_TTL" envDefault:"72h"`

	RevokeFamilyOnReplay bool          `env:"GOTOKEN_REVOKE_FAMILY_ON_REPLAY" envDefault:"false"`
	RevokeIssuedAccess   bool          `env:"GOTOKEN_REVOKE_ISSUED_ACCESS"    envDefault:"false"`
	RefreshThrottle      int           `env:"GOTOKEN_REFRESH_THROTTLE"        envDefault:"0"`
	CleanupInterval      time.Duration `env:"GOTOKEN_CLEANUP_INTERVAL"        envDefault:"1h"`
}

func loadConfig() (serverConfig, error) {
	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		return serverConfig{}, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.Backend {
	case "memory", "redis", "postgres", "mongo":
	default:
		return serverConfig{}, fmt.Errorf("unknown GOTOKEN_BACKEND %q", cfg.Backend)
	}
	if cfg.Backend == "postgres" && cfg.PostgresDSN == "" {
		return serverConfig{}, errors.New("GOTOKEN_POSTGRES_DSN is required for the postgres backend")
	}
	if cfg.Backend == "mongo" && cfg.MongoURI == "" {
		return serverConfig{}, errors.New("GOTOKEN_MONGO_URI is required for the mongo backend")
	}
	return cfg, nil
}

// usesRedis reports whether the daemon needs a Redis client. Only the memory
// backend runs without one.
func (c serverConfig) usesRedis() bool {
	return c.Backend != "memory"
}

func (c serverConfig) engineConfig() (goToken.Config, error) {
	cfg := goToken.DefaultConfig()
	cfg.JWT.SigningMethod = strings.ToLower(c.SigningMethod)
	cfg.JWT.AccessTTL = c.AccessTTL
	cfg.JWT.RefreshTTL = c.RefreshTTL
	cfg.JWT.Leeway = c.Leeway
	cfg.JWT.Issuer = c.Issuer
	cfg.JWT.Audience = c.Audience
	cfg.JWT.KeyID = c.KeyID

	switch cfg.JWT.SigningMethod {
	case "hs256":
		if c.HMACSecret == "" {
			return goToken.Config{}, errors.New("GOTOKEN_HMAC_SECRET is required for hs256")
		}
		cfg.JWT.PrivateKey = []byte(c.HMACSecret)
	default:
		pub, err := os.ReadFile(c.PublicKeyFile)
		if err != nil {
			return goToken.Config{}, fmt.Errorf("read public key: %w", err)
		}
		priv, err := os.ReadFile(c.PrivateKeyFile)
		if err != nil {
			return goToken.Config{}, fmt.Errorf("read private key: %w", err)
		}
		cfg.JWT.PublicKey = pub
		cfg.JWT.PrivateKey = priv
		if c.KeyID != "" {
			cfg.JWT.VerifyKeys = map[string][]byte{c.KeyID: pub}
		}
	}

	cfg.OneTime.EmailVerificationTTL = c.EmailVerificationTTL
	cfg.OneTime.PasswordResetTTL = c.PasswordResetTTL
	cfg.OneTime.AccountActivationTTL = c.AccountActivationTTL

	cfg.Rotation.RevokeFamilyOnReplay = c.RevokeFamilyOnReplay
	// Only the memory backend runs as a single process.
	cfg.Rotation.SerializeLocally = c.Backend == "memory"
	cfg.Blacklist.RevokeIssuedAccess = c.RevokeIssuedAccess

	if c.RefreshThrottle > 0 && c.usesRedis() {
		cfg.RateLimit.EnableRefreshThrottle = true
		cfg.RateLimit.MaxRefreshAttempts = c.RefreshThrottle
	}
	cfg.Cleanup.Interval = c.CleanupInterval
	cfg.Audit.Enabled = c.AuditLog
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	return cfg, cfg.Validate()
}

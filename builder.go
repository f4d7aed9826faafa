package goToken

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/goToken/blacklist"
	internalaudit "github.com/MrEthical07/goToken/internal/audit"
	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/internal/keylock"
	"github.com/MrEthical07/goToken/internal/rate"
	"github.com/MrEthical07/goToken/internal/tokens"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/records"
)

// Builder wires an [Engine]. A Builder can build exactly one Engine.
//
// Without an explicit record store or cache, Build uses Redis when a client was
// supplied and in-memory implementations otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     records.Store
	oneTime   records.OneTimeStore
	cache     blacklist.Cache
	directory Directory

	logger    zerolog.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder holding the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client used for the default record store,
// blacklist cache and rate limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRecordStore sets the refresh record store. If store also implements
// records.OneTimeStore it backs one-time tokens too, unless WithOneTimeStore is used.
func (b *Builder) WithRecordStore(store records.Store) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithOneTimeStore(store records.OneTimeStore) *Builder {
	b.oneTime = store
	return b
}

// WithCache sets the blacklist cache.
func (b *Builder) WithCache(cache blacklist.Cache) *Builder {
	b.cache = cache
	return b
}

// WithDirectory sets the user directory consulted on every refresh. Without one,
// refreshed tokens carry the identity of the redeemed token.
func (b *Builder) WithDirectory(dir Directory) *Builder {
	b.directory = dir
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides time.Now for issuance, validation and record state.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.rateLimitEnabled() && b.redis == nil {
		return nil, errors.New("RateLimit requires redis client")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- TOKENS --------
	codec, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		RequireIAT:    cfg.JWT.RequireIAT,
		MaxFutureIAT:  cfg.JWT.MaxFutureIAT,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	factory, err := tokens.NewFactory(codec,
		tokens.AccessSpec{TTL: cfg.JWT.AccessTTL},
		tokens.RefreshSpec{TTL: cfg.JWT.RefreshTTL},
		tokens.OneTimeSpec{TTLs: cfg.oneTimeTTLs()},
		now,
	)
	if err != nil {
		return nil, err
	}
	validator := tokens.NewValidator(codec)

	engine := &Engine{
		config:    cfg,
		factory:   factory,
		validator: validator,
		directory: b.directory,
		logger:    b.logger,
		now:       now,
		done:      make(chan struct{}),
	}

	// -------- STORES --------
	switch {
	case b.store != nil:
		engine.store = b.store
	case b.redis != nil:
		engine.store = records.NewRedisStore(b.redis, cfg.Store.RedisPrefix, cfg.Store.Retention)
	default:
		engine.store = records.NewMemoryStore()
	}
	switch {
	case b.oneTime != nil:
		engine.oneTime = b.oneTime
	default:
		if ots, ok := engine.store.(records.OneTimeStore); ok {
			engine.oneTime = ots
		} else {
			engine.oneTime = records.NewMemoryStore()
		}
	}

	// -------- BLACKLIST --------
	cache := b.cache
	if cache == nil {
		if b.redis != nil {
			cache = blacklist.NewRedisCache(b.redis, cfg.Blacklist.RedisPrefix)
		} else {
			mem := blacklist.NewMemoryCache()
			engine.ownedCache = mem
			cache = mem
		}
	}
	engine.blacklist = blacklist.New(cache, now)

	if b.redis != nil && cfg.rateLimitEnabled() {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			Prefix:                cfg.RateLimit.RedisPrefix,
			EnableRefreshThrottle: cfg.RateLimit.EnableRefreshThrottle,
			MaxRefreshAttempts:    cfg.RateLimit.MaxRefreshAttempts,
			RefreshWindow:         cfg.RateLimit.RefreshWindow,
			EnableOneTimeThrottle: cfg.RateLimit.EnableOneTimeThrottle,
			MaxOneTimeAttempts:    cfg.RateLimit.MaxOneTimeAttempts,
			OneTimeWindow:         cfg.RateLimit.OneTimeWindow,
		})
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Now:        now,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	engine.flows = flows.New(engine.flowDeps())

	b.built = true

	return engine, nil
}

func (e *Engine) flowDeps() flows.Deps {
	var limiter flows.RedemptionLimiter
	if e.rateLimiter != nil {
		limiter = e.rateLimiter
	}
	var locker *keylock.Locker
	if e.config.Rotation.SerializeLocally {
		locker = keylock.New()
	}
	var lookup flows.UserLookup
	if e.directory != nil {
		lookup = e.lookupUser
	}

	return flows.Deps{
		Issue: flows.IssueDeps{
			Factory: e.factory,
			Store:   e.store,
			Now:     e.now,
		},
		Refresh: flows.RefreshDeps{
			Validator:            e.validator,
			Factory:              e.factory,
			Store:                e.store,
			Blacklist:            e.blacklist,
			RateLimiter:          limiter,
			LookupUser:           lookup,
			UserNotFound:         ErrUserNotFound,
			Locker:               locker,
			RevokeFamilyOnReplay: e.config.Rotation.RevokeFamilyOnReplay,
			Now:                  e.now,
			Warn:                 e.warn,
		},
		Validate: flows.ValidateDeps{
			Validator: e.validator,
			Blacklist: e.blacklist,
		},
		Revoke: flows.RevokeDeps{
			Validator:          e.validator,
			Store:              e.store,
			OneTime:            e.oneTime,
			Blacklist:          e.blacklist,
			RevokeIssuedAccess: e.config.Blacklist.RevokeIssuedAccess,
			AccessTTL:          e.config.JWT.AccessTTL,
			Now:                e.now,
		},
		OneTime: flows.OneTimeDeps{
			Factory:     e.factory,
			Validator:   e.validator,
			Store:       e.oneTime,
			Blacklist:   e.blacklist,
			RateLimiter: limiter,
			Now:         e.now,
		},
		Cleanup: flows.CleanupDeps{
			Store:   e.store,
			OneTime: e.oneTime,
			Now:     e.now,
		},
		Introspection: flows.IntrospectionDeps{
			Validator: e.validator,
			Store:     e.store,
			OneTime:   e.oneTime,
			Blacklist: e.blacklist,
			Now:       e.now,
		},
	}
}

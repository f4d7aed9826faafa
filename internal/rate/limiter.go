package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	Prefix                string
	EnableRefreshThrottle bool
	MaxRefreshAttempts    int
	RefreshWindow         time.Duration
	EnableOneTimeThrottle bool
	MaxOneTimeAttempts    int
	OneTimeWindow         time.Duration
}

// Limiter enforces per-user redemption budgets using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "gt"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckRefresh counts one refresh attempt for userID and fails once the window budget is spent.
func (l *Limiter) CheckRefresh(ctx context.Context, userID int64) error {
	if l == nil || !l.config.EnableRefreshThrottle {
		return nil
	}
	return l.hit(ctx, l.key("rr", userID), l.config.MaxRefreshAttempts, l.config.RefreshWindow)
}

// CheckOneTime counts one one-time redemption attempt for userID.
func (l *Limiter) CheckOneTime(ctx context.Context, userID int64) error {
	if l == nil || !l.config.EnableOneTimeThrottle {
		return nil
	}
	return l.hit(ctx, l.key("ro", userID), l.config.MaxOneTimeAttempts, l.config.OneTimeWindow)
}

// Attempts returns the current counter for kind ("rr" or "ro") and userID.
// Missing keys return zero.
func (l *Limiter) Attempts(ctx context.Context, kind string, userID int64) (int, error) {
	count, err := l.redis.Get(ctx, l.key(kind, userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) key(kind string, userID int64) string {
	return l.config.Prefix + ":" + kind + ":" + strconv.FormatInt(userID, 10)
}

func (l *Limiter) hit(ctx context.Context, key string, maxAttempts int, window time.Duration) error {
	count, err := l.incrementWithTTL(ctx, key, window)
	if err != nil {
		return err
	}
	if count > int64(maxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

package blacklist

import (
	"context"
	"strconv"
	"time"

	"github.com/MrEthical07/goToken/records"
)

const (
	jtiPrefix   = "jti:"
	tokenPrefix = "tok:"
	userPrefix  = "user:"
)

// Subject identifies what to look up for one presented token.
type Subject struct {
	Token    string
	JTI      string
	UserID   int64
	HasUser  bool
	IssuedAt time.Time
}

// List is the blacklist service over a Cache.
type List struct {
	cache Cache
	now   func() time.Time
}

// New returns a List. now defaults to time.Now.
func New(cache Cache, now func() time.Time) *List {
	if now == nil {
		now = time.Now
	}
	return &List{cache: cache, now: now}
}

// AddToken blacklists one token value until expiresAt. Tokens with a jti are
// keyed by it; others by the token hash. Already-expired tokens are skipped.
func (l *List) AddToken(ctx context.Context, token, jti, reason string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	return l.cache.Set(ctx, tokenKey(token, jti), reason, ttl)
}

// AddJTI blacklists a jti until expiresAt.
func (l *List) AddJTI(ctx context.Context, jti, reason string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.now())
	if ttl <= 0 || jti == "" {
		return nil
	}
	return l.cache.Set(ctx, jtiPrefix+jti, reason, ttl)
}

// RevokeUserBefore rejects every token of userID issued at or before cutoff, for ttl.
func (l *List) RevokeUserBefore(ctx context.Context, userID int64, cutoff time.Time, ttl time.Duration) error {
	return l.cache.Set(ctx, userKey(userID), strconv.FormatInt(cutoff.Unix(), 10), ttl)
}

// UserCutoff returns the active not-before cutoff for userID, if any.
func (l *List) UserCutoff(ctx context.Context, userID int64) (time.Time, bool, error) {
	v, ok, err := l.cache.Get(ctx, userKey(userID))
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.Unix(sec, 0), true, nil
}

// Contains reports whether s is blacklisted by token, jti or user cutoff.
func (l *List) Contains(ctx context.Context, s Subject) (bool, error) {
	if s.Token != "" || s.JTI != "" {
		hit, err := l.cache.Exists(ctx, tokenKey(s.Token, s.JTI))
		if err != nil || hit {
			return hit, err
		}
	}
	if !s.HasUser {
		return false, nil
	}
	cutoff, ok, err := l.UserCutoff(ctx, s.UserID)
	if err != nil || !ok {
		return false, err
	}
	return !s.IssuedAt.After(cutoff), nil
}

func tokenKey(token, jti string) string {
	if jti != "" {
		return jtiPrefix + jti
	}
	return tokenPrefix + records.HashToken(token)
}

func userKey(userID int64) string {
	return userPrefix + strconv.FormatInt(userID, 10)
}

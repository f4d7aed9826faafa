package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/blacklist"
	"github.com/MrEthical07/goToken/internal/tokens"
)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Issue         IssueDeps
	Refresh       RefreshDeps
	Validate      ValidateDeps
	Revoke        RevokeDeps
	OneTime       OneTimeDeps
	Cleanup       CleanupDeps
	Introspection IntrospectionDeps
}

// Blacklist is the subset of *blacklist.List used by flows.
type Blacklist interface {
	Contains(ctx context.Context, s blacklist.Subject) (bool, error)
	AddToken(ctx context.Context, token, jti, reason string, expiresAt time.Time) error
	RevokeUserBefore(ctx context.Context, userID int64, cutoff time.Time, ttl time.Duration) error
}

// UserLookup resolves the current identity of userID and whether the account may
// hold credentials. It returns the notFound sentinel configured on the deps when
// the user does not exist.
type UserLookup func(ctx context.Context, userID int64) (tokens.Identity, bool, error)

type RedemptionLimiter interface {
	CheckRefresh(ctx context.Context, userID int64) error
	CheckOneTime(ctx context.Context, userID int64) error
}

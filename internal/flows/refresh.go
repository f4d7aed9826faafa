package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goToken/blacklist"
	"github.com/MrEthical07/goToken/internal/keylock"
	"github.com/MrEthical07/goToken/internal/tokens"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/records"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureWrongType
	RefreshFailureClaimMissing
	RefreshFailureRateLimited
	RefreshFailureBlacklisted
	RefreshFailureNotFound
	RefreshFailureReplay
	RefreshFailureUserNotFound
	RefreshFailureAccountNotUsable
	RefreshFailureIssue
	RefreshFailureLostRace
	RefreshFailureUnavailable
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	UserID  int64
	JTI     string
	// State is the redeemed record's state when the failure is a replay.
	State        records.State
	FamilyCount  int
	Identity     tokens.Identity
	Access       tokens.Issued
	Refresh      tokens.Issued
	RedeemedFrom *records.Record
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Validator            *tokens.Validator
	Factory              *tokens.Factory
	Store                records.Store
	Blacklist            Blacklist
	RateLimiter          RedemptionLimiter
	LookupUser           UserLookup
	UserNotFound         error
	Locker               *keylock.Locker
	RevokeFamilyOnReplay bool
	Now                  func() time.Time
	Warn                 func(string, ...any)
}

// RunRefresh redeems refreshToken and returns a new access/refresh pair.
//
// At most one call succeeds per refresh token value. The old record is flipped to
// used by the store's conditional update; the new pair is returned only after that
// commit succeeded.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.Validator.ClaimsOfType(refreshToken, jwt.TypeRefresh)
	if err != nil {
		if errors.Is(err, tokens.ErrWrongType) {
			return RefreshResult{Failure: RefreshFailureWrongType, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}
	userID, ok := claims.UserIDValue()
	if !ok || claims.Subject == "" || claims.ID == "" {
		return RefreshResult{Failure: RefreshFailureClaimMissing, Err: tokens.ErrClaimMissing}
	}
	res := RefreshResult{UserID: userID, JTI: claims.ID}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, userID); err != nil {
			return res.fail(RefreshFailureRateLimited, err)
		}
	}
	if deps.Blacklist != nil {
		hit, err := deps.Blacklist.Contains(ctx, blacklist.Subject{Token: refreshToken, JTI: claims.ID})
		if err != nil {
			return res.fail(RefreshFailureUnavailable, err)
		}
		if hit {
			return res.fail(RefreshFailureBlacklisted, records.ErrNotValid)
		}
	}

	hash := records.HashToken(refreshToken)
	if deps.Locker != nil {
		unlock := deps.Locker.Lock(hash)
		defer unlock()
	}

	now := deps.Now()
	rec, err := deps.Store.FindByToken(ctx, hash)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return res.fail(RefreshFailureNotFound, err)
		}
		return res.fail(RefreshFailureUnavailable, err)
	}
	if !rec.Valid(now) {
		res.State = rec.State(now)
		res.RedeemedFrom = rec
		res.FamilyCount = handleReplay(ctx, rec, deps)
		return res.fail(RefreshFailureReplay, records.ErrNotValid)
	}

	identity, failure, err := resolveIdentity(ctx, rec.UserID, claims, deps)
	if failure != RefreshFailureNone {
		return res.fail(failure, err)
	}
	res.Identity = identity

	access, refresh, next, err := issuePair(deps.Factory, identity, now)
	if err != nil {
		return res.fail(RefreshFailureIssue, err)
	}

	if err := commitRotation(ctx, deps.Store, hash, next, now, deps.Warn); err != nil {
		switch {
		case errors.Is(err, records.ErrNotValid):
			return res.fail(RefreshFailureLostRace, err)
		case errors.Is(err, records.ErrNotFound):
			return res.fail(RefreshFailureNotFound, err)
		default:
			return res.fail(RefreshFailureUnavailable, err)
		}
	}

	res.Access = access
	res.Refresh = refresh
	res.RedeemedFrom = rec
	return res
}

func (r RefreshResult) fail(kind RefreshFailureKind, err error) RefreshResult {
	r.Failure = kind
	r.Err = err
	return r
}

func resolveIdentity(ctx context.Context, userID int64, claims *jwt.Claims, deps RefreshDeps) (tokens.Identity, RefreshFailureKind, error) {
	if deps.LookupUser == nil {
		id, err := tokens.IdentityFromClaims(claims)
		if err != nil {
			return tokens.Identity{}, RefreshFailureClaimMissing, err
		}
		return id, RefreshFailureNone, nil
	}
	id, usable, err := deps.LookupUser(ctx, userID)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			return tokens.Identity{}, RefreshFailureUserNotFound, err
		}
		return tokens.Identity{}, RefreshFailureUnavailable, err
	}
	if !usable {
		return tokens.Identity{}, RefreshFailureAccountNotUsable, errors.New("account not usable")
	}
	return id, RefreshFailureNone, nil
}

// commitRotation flips oldHash to used and persists next. Without a Rotator the
// successor is written first and discarded again if the conditional update loses.
// A failed discard leaves an orphaned successor and is reported through warn.
func commitRotation(ctx context.Context, store records.Store, oldHash string, next *records.Record, now time.Time, warn func(string, ...any)) error {
	if rot, ok := store.(records.Rotator); ok {
		return rot.Rotate(ctx, oldHash, next, now)
	}
	if err := store.Insert(ctx, next); err != nil {
		return err
	}
	won, err := store.ConditionalMarkUsed(ctx, oldHash, now)
	if err != nil || !won {
		if delErr := store.Delete(ctx, next.TokenHash); delErr != nil && warn != nil {
			warn("goToken: orphaned successor refresh record", "user_id", next.UserID, "jti", next.JTI, "error", delErr.Error())
		}
		if err != nil {
			return err
		}
		return records.ErrNotValid
	}
	return nil
}

func handleReplay(ctx context.Context, rec *records.Record, deps RefreshDeps) int {
	if deps.Warn != nil {
		deps.Warn("goToken: refresh token replay detected", "user_id", rec.UserID, "jti", rec.JTI)
	}
	if !deps.RevokeFamilyOnReplay {
		return 0
	}
	n, err := deps.Store.RevokeAllForUser(ctx, rec.UserID)
	if err != nil && deps.Warn != nil {
		deps.Warn("goToken: replay family revocation failed", "user_id", rec.UserID, "error", err.Error())
	}
	return n
}

package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goToken/blacklist"
	"github.com/MrEthical07/goToken/internal/tokens"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/records"
)

const revokeReason = "revoked"

// RevokeFailureKind classifies revoke flow failures.
type RevokeFailureKind int

const (
	RevokeFailureNone RevokeFailureKind = iota
	RevokeFailureDecode
	RevokeFailureClaimMissing
	RevokeFailureUnavailable
)

// RevokeResult reports whether the revoke changed anything.
type RevokeResult struct {
	Failure RevokeFailureKind
	Err     error
	Found   bool
	Type    jwt.TokenType
	UserID  int64
	// Count is the number of refresh records revoked as a side effect.
	Count int
}

// RevokeAllResult carries the number of records revoked for a user.
type RevokeAllResult struct {
	Failure RevokeFailureKind
	Err     error
	Count   int
}

// RevokeDeps captures revoke flow dependencies.
type RevokeDeps struct {
	Validator          *tokens.Validator
	Store              records.Store
	OneTime            records.OneTimeStore
	Blacklist          Blacklist
	RevokeIssuedAccess bool
	AccessTTL          time.Duration
	Now                func() time.Time
}

// RunRevoke revokes a single token. A second call for the same token reports
// Found=false without error.
//
// Refresh tokens are revoked in the record store. One-time tokens are burned.
// Access tokens are not persisted, so revoking one revokes every refresh record of
// its user and blacklists that access token until it expires.
func RunRevoke(ctx context.Context, token string, deps RevokeDeps) RevokeResult {
	hash := records.HashToken(token)
	claims, err := deps.Validator.Claims(token)
	if err != nil {
		if !errors.Is(err, jwt.ErrExpired) {
			return RevokeResult{Failure: RevokeFailureDecode, Err: err}
		}
		// Expired but genuine: its record may still be waiting for cleanup.
		found, err := deps.Store.MarkRevoked(ctx, hash)
		if err != nil {
			return RevokeResult{Failure: RevokeFailureUnavailable, Err: err}
		}
		return RevokeResult{Found: found}
	}

	uid, ok := claims.UserIDValue()
	if !ok {
		return RevokeResult{Failure: RevokeFailureClaimMissing, Err: tokens.ErrClaimMissing, Type: claims.Type}
	}
	res := RevokeResult{Type: claims.Type, UserID: uid}
	expiresAt := deps.Now()
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	switch claims.Type {
	case jwt.TypeRefresh:
		found, err := deps.Store.MarkRevoked(ctx, hash)
		if err != nil {
			return res.fail(RevokeFailureUnavailable, err)
		}
		res.Found = found
		if err := deps.blacklist(ctx, token, claims.ID, expiresAt); err != nil {
			return res.fail(RevokeFailureUnavailable, err)
		}
		return res

	case jwt.TypeOneTime:
		if deps.OneTime != nil {
			_, err := deps.OneTime.ConsumeOneTime(ctx, hash, string(claims.Purpose), deps.Now())
			switch {
			case err == nil:
				res.Found = true
			case errors.Is(err, records.ErrNotFound), errors.Is(err, records.ErrNotValid), errors.Is(err, records.ErrPurposeMismatch):
			default:
				return res.fail(RevokeFailureUnavailable, err)
			}
		}
		if err := deps.blacklist(ctx, token, claims.ID, expiresAt); err != nil {
			return res.fail(RevokeFailureUnavailable, err)
		}
		return res

	case jwt.TypeAccess:
		already := false
		if deps.Blacklist != nil {
			hit, err := deps.Blacklist.Contains(ctx, blacklist.Subject{Token: token, JTI: claims.ID})
			if err != nil {
				return res.fail(RevokeFailureUnavailable, err)
			}
			already = hit
		}
		n, err := deps.Store.RevokeAllForUser(ctx, uid)
		if err != nil {
			return res.fail(RevokeFailureUnavailable, err)
		}
		res.Count = n
		if err := deps.blacklist(ctx, token, claims.ID, expiresAt); err != nil {
			return res.fail(RevokeFailureUnavailable, err)
		}
		if err := deps.cutoff(ctx, uid); err != nil {
			return res.fail(RevokeFailureUnavailable, err)
		}
		if deps.Blacklist != nil {
			res.Found = !already
		} else {
			res.Found = n > 0
		}
		return res

	default:
		return res.fail(RevokeFailureDecode, tokens.ErrWrongType)
	}
}

// RunRevokeAll revokes every refresh record of userID.
func RunRevokeAll(ctx context.Context, userID int64, deps RevokeDeps) RevokeAllResult {
	n, err := deps.Store.RevokeAllForUser(ctx, userID)
	if err != nil {
		return RevokeAllResult{Failure: RevokeFailureUnavailable, Err: err}
	}
	if err := deps.cutoff(ctx, userID); err != nil {
		return RevokeAllResult{Failure: RevokeFailureUnavailable, Err: err, Count: n}
	}
	return RevokeAllResult{Count: n}
}

func (r RevokeResult) fail(kind RevokeFailureKind, err error) RevokeResult {
	r.Failure = kind
	r.Err = err
	return r
}

func (d RevokeDeps) blacklist(ctx context.Context, token, jti string, expiresAt time.Time) error {
	if d.Blacklist == nil {
		return nil
	}
	return d.Blacklist.AddToken(ctx, token, jti, revokeReason, expiresAt)
}

// cutoff writes the user's not-before entry when issued access tokens must die too.
func (d RevokeDeps) cutoff(ctx context.Context, userID int64) error {
	if !d.RevokeIssuedAccess || d.Blacklist == nil || d.AccessTTL <= 0 {
		return nil
	}
	return d.Blacklist.RevokeUserBefore(ctx, userID, d.Now(), d.AccessTTL)
}

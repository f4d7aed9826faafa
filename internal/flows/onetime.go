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

// OneTimeFailureKind classifies one-time issue and redemption failures.
type OneTimeFailureKind int

const (
	OneTimeFailureNone OneTimeFailureKind = iota
	OneTimeFailureUnknownPurpose
	OneTimeFailureIssue
	OneTimeFailurePersist
	OneTimeFailureDecode
	OneTimeFailureWrongType
	OneTimeFailureClaimMissing
	OneTimeFailurePurposeMismatch
	OneTimeFailureRateLimited
	OneTimeFailureBlacklisted
	OneTimeFailureNotFound
	OneTimeFailureAlreadyUsed
	OneTimeFailureUnavailable
)

// OneTimeRequest describes the one-time token to mint.
type OneTimeRequest struct {
	UserID  int64
	Subject string
	Purpose jwt.Purpose
}

// OneTimeIssueResult carries the minted token or failure metadata.
type OneTimeIssueResult struct {
	Failure OneTimeFailureKind
	Err     error
	Issued  tokens.Issued
	Record  *records.OneTimeRecord
}

// OneTimeRedeemResult carries the consumed record or failure metadata.
type OneTimeRedeemResult struct {
	Failure OneTimeFailureKind
	Err     error
	UserID  int64
	JTI     string
	Record  *records.OneTimeRecord
}

// OneTimeDeps captures one-time token dependencies.
type OneTimeDeps struct {
	Factory     *tokens.Factory
	Validator   *tokens.Validator
	Store       records.OneTimeStore
	Blacklist   Blacklist
	RateLimiter RedemptionLimiter
	Now         func() time.Time
}

// RunIssueOneTime mints a purpose-scoped token and persists its record.
func RunIssueOneTime(ctx context.Context, req OneTimeRequest, deps OneTimeDeps) OneTimeIssueResult {
	issued, err := deps.Factory.IssueOneTimeToken(req.UserID, req.Subject, req.Purpose)
	if err != nil {
		if errors.Is(err, tokens.ErrUnknownPurpose) {
			return OneTimeIssueResult{Failure: OneTimeFailureUnknownPurpose, Err: err}
		}
		return OneTimeIssueResult{Failure: OneTimeFailureIssue, Err: err}
	}
	rec := &records.OneTimeRecord{
		TokenHash: records.HashToken(issued.Token),
		JTI:       issued.JTI,
		UserID:    req.UserID,
		Subject:   req.Subject,
		Purpose:   string(req.Purpose),
		ExpiresAt: issued.ExpiresAt,
		CreatedAt: deps.Now(),
	}
	if err := deps.Store.InsertOneTime(ctx, rec); err != nil {
		return OneTimeIssueResult{Failure: OneTimeFailurePersist, Err: err}
	}
	return OneTimeIssueResult{Issued: issued, Record: rec}
}

// RunRedeemOneTime consumes token for purpose. Only the first redemption succeeds.
func RunRedeemOneTime(ctx context.Context, token string, purpose jwt.Purpose, deps OneTimeDeps) OneTimeRedeemResult {
	claims, err := deps.Validator.ClaimsOfType(token, jwt.TypeOneTime)
	if err != nil {
		if errors.Is(err, tokens.ErrWrongType) {
			return OneTimeRedeemResult{Failure: OneTimeFailureWrongType, Err: err}
		}
		return OneTimeRedeemResult{Failure: OneTimeFailureDecode, Err: err}
	}
	uid, ok := claims.UserIDValue()
	if !ok || claims.ID == "" || claims.Purpose == "" {
		return OneTimeRedeemResult{Failure: OneTimeFailureClaimMissing, Err: tokens.ErrClaimMissing}
	}
	res := OneTimeRedeemResult{UserID: uid, JTI: claims.ID}
	if claims.Purpose != purpose {
		return res.fail(OneTimeFailurePurposeMismatch, records.ErrPurposeMismatch)
	}
	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckOneTime(ctx, uid); err != nil {
			return res.fail(OneTimeFailureRateLimited, err)
		}
	}
	if deps.Blacklist != nil {
		hit, err := deps.Blacklist.Contains(ctx, blacklist.Subject{Token: token, JTI: claims.ID})
		if err != nil {
			return res.fail(OneTimeFailureUnavailable, err)
		}
		if hit {
			return res.fail(OneTimeFailureBlacklisted, records.ErrNotValid)
		}
	}

	rec, err := deps.Store.ConsumeOneTime(ctx, records.HashToken(token), string(purpose), deps.Now())
	if err != nil {
		switch {
		case errors.Is(err, records.ErrNotFound):
			return res.fail(OneTimeFailureNotFound, err)
		case errors.Is(err, records.ErrPurposeMismatch):
			return res.fail(OneTimeFailurePurposeMismatch, err)
		case errors.Is(err, records.ErrNotValid):
			return res.fail(OneTimeFailureAlreadyUsed, err)
		default:
			return res.fail(OneTimeFailureUnavailable, err)
		}
	}
	res.Record = rec
	return res
}

func (r OneTimeRedeemResult) fail(kind OneTimeFailureKind, err error) OneTimeRedeemResult {
	r.Failure = kind
	r.Err = err
	return r
}

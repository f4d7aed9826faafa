package goToken

import (
	"context"

	"github.com/MrEthical07/goToken/internal/flows"
)

// IssueOneTime mints a single-use token for purpose. Purposes with no configured
// lifetime fail with [ErrTokenInvalid].
func (e *Engine) IssueOneTime(ctx context.Context, userID int64, subject string, purpose Purpose) (OneTimeToken, error) {
	if !e.ready() {
		return OneTimeToken{}, ErrEngineNotReady
	}
	if subject == "" {
		return OneTimeToken{}, ErrClaimMissing
	}
	res := e.flows.IssueOneTime(ctx, flows.OneTimeRequest{UserID: userID, Subject: subject, Purpose: purpose})
	switch res.Failure {
	case flows.OneTimeFailureNone:
	case flows.OneTimeFailurePersist:
		return OneTimeToken{}, e.backendFailure("issue_one_time", res.Err)
	default:
		return OneTimeToken{}, ErrTokenInvalid
	}

	e.metricInc(MetricOneTimeIssued)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventOneTimeIssued,
		success:   true,
		userID:    userID,
		subject:   subject,
		tokenID:   res.Issued.JTI,
		tokenType: TokenOneTime,
		metadata: func() map[string]string {
			return map[string]string{"purpose": string(purpose)}
		},
	})
	return OneTimeToken{
		Token:     res.Issued.Token,
		JTI:       res.Issued.JTI,
		Purpose:   purpose,
		ExpiresAt: res.Issued.ExpiresAt,
	}, nil
}

// RedeemOneTime consumes token for purpose. A token is redeemable once; a
// purpose mismatch fails with [ErrTokenInvalid] without consuming it.
func (e *Engine) RedeemOneTime(ctx context.Context, token string, purpose Purpose) (OneTimeRedemption, error) {
	if !e.ready() {
		return OneTimeRedemption{}, ErrEngineNotReady
	}
	res := e.flows.RedeemOneTime(ctx, token, purpose)
	if res.Failure == flows.OneTimeFailureNone {
		e.metricInc(MetricOneTimeRedeemed)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventOneTimeRedeemed,
			success:   true,
			userID:    res.UserID,
			subject:   res.Record.Subject,
			tokenID:   res.JTI,
			tokenType: TokenOneTime,
			metadata: func() map[string]string {
				return map[string]string{"purpose": string(purpose)}
			},
		})
		return OneTimeRedemption{
			UserID:  res.UserID,
			Subject: res.Record.Subject,
			Purpose: purpose,
			JTI:     res.JTI,
		}, nil
	}

	e.metricInc(MetricOneTimeFailure)
	var err error
	switch res.Failure {
	case flows.OneTimeFailureDecode:
		err = decodeError(res.Err)
	case flows.OneTimeFailureClaimMissing:
		err = ErrClaimMissing
	case flows.OneTimeFailureWrongType, flows.OneTimeFailurePurposeMismatch:
		err = ErrTokenInvalid
	case flows.OneTimeFailureNotFound:
		err = ErrTokenNotFound
	case flows.OneTimeFailureAlreadyUsed:
		err = ErrTokenAlreadyUsedOrRevoked
	case flows.OneTimeFailureBlacklisted:
		e.metricInc(MetricBlacklistHit)
		err = ErrTokenAlreadyUsedOrRevoked
	case flows.OneTimeFailureRateLimited:
		err = e.backendFailure("redeem_one_time", res.Err)
		if KindOf(err) == KindRateLimited {
			e.metricInc(MetricOneTimeRateLimited)
			e.emitRateLimit(ctx, "one_time", res.UserID)
		}
	default:
		err = e.backendFailure("redeem_one_time", res.Err)
	}
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventOneTimeFailure,
		userID:    res.UserID,
		tokenID:   res.JTI,
		tokenType: TokenOneTime,
		err:       err,
		metadata: func() map[string]string {
			return map[string]string{"purpose": string(purpose)}
		},
	})
	return OneTimeRedemption{}, err
}

package goToken

import (
	"context"
	"strconv"
	"time"

	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/internal/tokens"
)

// Issue mints an access/refresh pair for id and persists the refresh record.
// Callers have already authenticated the account; Issue does not consult the
// directory.
func (e *Engine) Issue(ctx context.Context, id Identity) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	res := e.flows.Issue(ctx, id)
	switch res.Failure {
	case flows.IssueFailureNone:
	case flows.IssueFailureIdentity:
		e.metricInc(MetricIssueFailure)
		return TokenPair{}, ErrClaimMissing
	case flows.IssueFailurePersist:
		e.metricInc(MetricIssueFailure)
		return TokenPair{}, e.backendFailure("issue", res.Err)
	default:
		e.metricInc(MetricIssueFailure)
		e.logger.Error().Err(res.Err).Int64("user_id", id.UserID).Msg("goToken: token issuance failed")
		return TokenPair{}, ErrTokenInvalid
	}

	e.metricInc(MetricIssueSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventTokenIssued,
		success:   true,
		userID:    id.UserID,
		subject:   id.Subject,
		tokenID:   res.Refresh.JTI,
		tokenType: TokenRefresh,
	})
	return pairOf(res.Access, res.Refresh), nil
}

// Refresh redeems a refresh token and returns a new pair built from the current
// directory identity. Each refresh token value succeeds at most once; later or
// concurrent presentations fail with [ErrTokenAlreadyUsedOrRevoked].
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observe(MetricRefreshLatency, start)

	res := e.flows.Refresh(ctx, refreshToken)
	if res.Failure == flows.RefreshFailureNone {
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventRefreshSuccess,
			success:   true,
			userID:    res.UserID,
			subject:   res.Identity.Subject,
			tokenID:   res.JTI,
			tokenType: TokenRefresh,
			metadata: func() map[string]string {
				return map[string]string{"next_jti": res.Refresh.JTI}
			},
		})
		return pairOf(res.Access, res.Refresh), nil
	}

	e.metricInc(MetricRefreshFailure)
	err := e.refreshError(ctx, res)
	eventType := auditEventRefreshFailure
	switch res.Failure {
	case flows.RefreshFailureReplay:
		eventType = auditEventRefreshReplay
	case flows.RefreshFailureAccountNotUsable, flows.RefreshFailureUserNotFound:
		eventType = auditEventRefreshAccountDenied
	}
	e.emitAudit(ctx, auditRecord{
		eventType: eventType,
		userID:    res.UserID,
		tokenID:   res.JTI,
		tokenType: TokenRefresh,
		err:       err,
		metadata: func() map[string]string {
			md := map[string]string{}
			if res.State != "" {
				md["state"] = string(res.State)
			}
			if res.FamilyCount > 0 {
				md["family_revoked"] = strconv.Itoa(res.FamilyCount)
			}
			return md
		},
	})
	return TokenPair{}, err
}

func (e *Engine) refreshError(ctx context.Context, res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureDecode:
		return decodeError(res.Err)
	case flows.RefreshFailureWrongType:
		return ErrTokenInvalid
	case flows.RefreshFailureClaimMissing:
		return ErrClaimMissing
	case flows.RefreshFailureRateLimited:
		err := e.backendFailure("refresh", res.Err)
		if KindOf(err) == KindRateLimited {
			e.metricInc(MetricRefreshRateLimited)
			e.emitRateLimit(ctx, "refresh", res.UserID)
		}
		return err
	case flows.RefreshFailureBlacklisted:
		e.metricInc(MetricBlacklistHit)
		return ErrTokenAlreadyUsedOrRevoked
	case flows.RefreshFailureNotFound:
		return ErrTokenNotFound
	case flows.RefreshFailureReplay:
		e.metricInc(MetricReplayDetected)
		return ErrTokenAlreadyUsedOrRevoked
	case flows.RefreshFailureLostRace:
		e.metricInc(MetricRefreshLostRace)
		return ErrTokenAlreadyUsedOrRevoked
	case flows.RefreshFailureUserNotFound:
		e.metricInc(MetricRefreshAccountRejected)
		e.logger.Info().Int64("user_id", res.UserID).Str("reason", "user_not_found").Msg("goToken: refresh rejected")
		return ErrUserNotFound
	case flows.RefreshFailureAccountNotUsable:
		e.metricInc(MetricRefreshAccountRejected)
		e.logger.Info().Int64("user_id", res.UserID).Str("reason", "account_not_usable").Msg("goToken: refresh rejected")
		return ErrAccountNotUsable
	case flows.RefreshFailureUnavailable:
		return e.backendFailure("refresh", res.Err)
	default:
		e.logger.Error().Err(res.Err).Int64("user_id", res.UserID).Msg("goToken: refresh issuance failed")
		return ErrTokenInvalid
	}
}

// Validate verifies token and checks the revocation cache. It does not read
// refresh or one-time records.
func (e *Engine) Validate(ctx context.Context, token string) (*Claims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observe(MetricValidateLatency, start)

	res := e.flows.Validate(ctx, token)
	switch res.Failure {
	case flows.ValidateFailureNone:
		e.metricInc(MetricValidateSuccess)
		return res.Claims, nil
	case flows.ValidateFailureBlacklisted:
		e.metricInc(MetricValidateFailure)
		e.metricInc(MetricBlacklistHit)
		return nil, ErrTokenAlreadyUsedOrRevoked
	case flows.ValidateFailureUnavailable:
		e.metricInc(MetricValidateFailure)
		return nil, e.backendFailure("validate", res.Err)
	default:
		e.metricInc(MetricValidateFailure)
		return nil, decodeError(res.Err)
	}
}

// IdentityOf validates token and returns the identity it carries.
func (e *Engine) IdentityOf(ctx context.Context, token string) (Identity, error) {
	claims, err := e.Validate(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	return IdentityFromClaims(claims)
}

// IdentityFromClaims extracts the identity carried by verified claims. Claims
// without a subject or userId fail with [ErrClaimMissing].
func IdentityFromClaims(c *Claims) (Identity, error) {
	id, err := tokens.IdentityFromClaims(c)
	if err != nil {
		return Identity{}, ErrClaimMissing
	}
	return id, nil
}

func pairOf(access, refresh tokens.Issued) TokenPair {
	return TokenPair{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.ExpiresAt,
	}
}

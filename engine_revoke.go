package goToken

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/jwt"
)

// Revoke revokes one token and reports whether anything changed. It is
// idempotent: the second call for the same token returns false and no error.
//
// Revoking an access token revokes every refresh token of its user and
// blacklists that access token. Other access tokens already issued to the user
// stay valid until they expire unless Blacklist.RevokeIssuedAccess is set.
func (e *Engine) Revoke(ctx context.Context, token string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	res := e.flows.Revoke(ctx, token)
	switch res.Failure {
	case flows.RevokeFailureNone:
	case flows.RevokeFailureDecode:
		return false, decodeError(res.Err)
	case flows.RevokeFailureClaimMissing:
		return false, ErrClaimMissing
	default:
		return false, e.backendFailure("revoke", res.Err)
	}

	if res.Found {
		e.metricInc(MetricRevoke)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventTokenRevoked,
			success:   true,
			userID:    res.UserID,
			tokenType: res.Type,
			metadata: func() map[string]string {
				return map[string]string{"refresh_revoked": strconv.Itoa(res.Count)}
			},
		})
	}
	return res.Found, nil
}

// RevokeAll revokes every refresh token of userID and returns how many records
// changed state.
func (e *Engine) RevokeAll(ctx context.Context, userID int64) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	res := e.flows.RevokeAll(ctx, userID)
	if res.Failure != flows.RevokeFailureNone {
		return res.Count, e.backendFailure("revoke_all", res.Err)
	}

	e.metricInc(MetricRevokeAll)
	e.logger.Info().Int64("user_id", userID).Int("revoked", res.Count).Msg("goToken: user tokens revoked")
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventUserTokensRevoked,
		success:   true,
		userID:    userID,
		metadata: func() map[string]string {
			return map[string]string{"revoked": strconv.Itoa(res.Count)}
		},
	})
	return res.Count, nil
}

// Blacklist rejects token until its natural expiry regardless of type. Expired
// tokens need no entry and return nil.
func (e *Engine) Blacklist(ctx context.Context, token, reason string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	claims, err := e.validator.Claims(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil
		}
		return decodeError(err)
	}
	if claims.ExpiresAt == nil {
		return ErrClaimMissing
	}
	if reason == "" {
		reason = "blacklisted"
	}
	if err := e.blacklist.AddToken(ctx, token, claims.ID, reason, claims.ExpiresAt.Time); err != nil {
		return e.backendFailure("blacklist", err)
	}

	uid, _ := claims.UserIDValue()
	e.metricInc(MetricBlacklistAdd)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventTokenBlacklisted,
		success:   true,
		userID:    uid,
		tokenID:   claims.ID,
		tokenType: claims.Type,
		metadata: func() map[string]string {
			return map[string]string{"reason": reason}
		},
	})
	return nil
}

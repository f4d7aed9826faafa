package goToken

import (
	"context"
	"errors"
)

const (
	auditEventTokenIssued          = "token_issued"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshFailure       = "refresh_failure"
	auditEventRefreshReplay        = "refresh_replay_detected"
	auditEventRefreshAccountDenied = "refresh_account_denied"
	auditEventTokenRevoked         = "token_revoked"
	auditEventUserTokensRevoked    = "user_tokens_revoked"
	auditEventTokenBlacklisted     = "token_blacklisted"
	auditEventOneTimeIssued        = "one_time_issued"
	auditEventOneTimeRedeemed      = "one_time_redeemed"
	auditEventOneTimeFailure       = "one_time_failure"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
	auditEventCleanup              = "cleanup"
)

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrMalformed        AuditErrorCode = "token_malformed"
	auditErrSignature        AuditErrorCode = "token_signature_invalid"
	auditErrExpired          AuditErrorCode = "token_expired"
	auditErrInvalidToken     AuditErrorCode = "invalid_token"
	auditErrNotFound         AuditErrorCode = "token_not_found"
	auditErrReplay           AuditErrorCode = "token_already_used_or_revoked"
	auditErrClaimMissing     AuditErrorCode = "claim_missing"
	auditErrAccountNotUsable AuditErrorCode = "account_not_usable"
	auditErrUserNotFound     AuditErrorCode = "user_not_found"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrUnavailable      AuditErrorCode = "backend_unavailable"
	auditErrInternal         AuditErrorCode = "internal_error"
)

type auditRecord struct {
	eventType string
	success   bool
	userID    int64
	subject   string
	tokenID   string
	tokenType TokenType
	err       error
	metadata  func() map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, r auditRecord) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if r.metadata != nil {
		metadata = r.metadata()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: r.eventType,
		UserID:    r.userID,
		Subject:   r.subject,
		TokenID:   r.tokenID,
		TokenType: string(r.tokenType),
		IP:        clientIPFromContext(ctx),
		Success:   r.success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(r.err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, userID int64) {
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventRateLimitTriggered,
		userID:    userID,
		err:       ErrRateLimited,
		metadata: func() map[string]string {
			return map[string]string{"scope": scope}
		},
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return auditErrInternal
	}
	switch e.Kind {
	case KindTokenMalformed:
		return auditErrMalformed
	case KindTokenSignatureInvalid:
		return auditErrSignature
	case KindTokenExpired:
		return auditErrExpired
	case KindTokenInvalid:
		return auditErrInvalidToken
	case KindTokenNotFound:
		return auditErrNotFound
	case KindTokenAlreadyUsedOrRevoked:
		return auditErrReplay
	case KindClaimMissing:
		return auditErrClaimMissing
	case KindAccountNotUsable:
		return auditErrAccountNotUsable
	case KindUserNotFound:
		return auditErrUserNotFound
	case KindRateLimited:
		return auditErrRateLimited
	case KindUnavailable:
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

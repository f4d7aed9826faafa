package goToken

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/goToken/internal/rate"
	"github.com/MrEthical07/goToken/internal/tokens"
	"github.com/MrEthical07/goToken/jwt"
)

// ErrorKind classifies every failure returned by [Engine]. Transport layers map
// kinds to status codes; see middleware.StatusFor.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTokenMalformed
	KindTokenSignatureInvalid
	KindTokenExpired
	KindTokenInvalid
	KindTokenNotFound
	KindTokenAlreadyUsedOrRevoked
	KindClaimMissing
	KindAccountNotUsable
	KindUserNotFound
	KindUnavailable
	KindRateLimited
	KindEngineNotReady
)

var kindNames = [...]string{
	KindUnknown:                   "unknown",
	KindTokenMalformed:            "token_malformed",
	KindTokenSignatureInvalid:     "token_signature_invalid",
	KindTokenExpired:              "token_expired",
	KindTokenInvalid:              "token_invalid",
	KindTokenNotFound:             "token_not_found",
	KindTokenAlreadyUsedOrRevoked: "token_already_used_or_revoked",
	KindClaimMissing:              "claim_missing",
	KindAccountNotUsable:          "account_not_usable",
	KindUserNotFound:              "user_not_found",
	KindUnavailable:               "unavailable",
	KindRateLimited:               "rate_limited",
	KindEngineNotReady:            "engine_not_ready",
}

// String returns the snake_case name of k.
func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// Error is the sentinel type behind every exported Err* value.
type Error struct {
	Kind ErrorKind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Is makes ErrTokenMalformed and ErrTokenSignatureInvalid also match ErrTokenInvalid.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindTokenInvalid &&
		(e.Kind == KindTokenMalformed || e.Kind == KindTokenSignatureInvalid)
}

var (
	// ErrTokenMalformed is returned when a token is not a well-formed signed token.
	ErrTokenMalformed = &Error{Kind: KindTokenMalformed, msg: "token malformed"}
	// ErrTokenSignatureInvalid is returned when the signature, algorithm or key id does not verify.
	ErrTokenSignatureInvalid = &Error{Kind: KindTokenSignatureInvalid, msg: "token signature invalid"}
	// ErrTokenExpired is returned for a genuine token past its exp.
	ErrTokenExpired = &Error{Kind: KindTokenExpired, msg: "token expired"}
	// ErrTokenInvalid covers wrong token type, wrong purpose and failed iss/aud/iat checks.
	ErrTokenInvalid = &Error{Kind: KindTokenInvalid, msg: "invalid token"}
	// ErrTokenNotFound is returned for a verified stateful token without a stored record.
	ErrTokenNotFound = &Error{Kind: KindTokenNotFound, msg: "token not found"}
	// ErrTokenAlreadyUsedOrRevoked signals replay or revocation of a single-use token.
	ErrTokenAlreadyUsedOrRevoked = &Error{Kind: KindTokenAlreadyUsedOrRevoked, msg: "token already used or revoked"}
	// ErrClaimMissing is returned when a verified token lacks a required claim.
	ErrClaimMissing = &Error{Kind: KindClaimMissing, msg: "claim missing"}
	// ErrAccountNotUsable is returned when the directory reports a non-active account.
	ErrAccountNotUsable = &Error{Kind: KindAccountNotUsable, msg: "account not usable"}
	// ErrUserNotFound is returned by Directory implementations and surfaced by Engine.
	ErrUserNotFound = &Error{Kind: KindUserNotFound, msg: "user not found"}
	// ErrUnavailable wraps store, cache and directory failures.
	ErrUnavailable = &Error{Kind: KindUnavailable, msg: "token backend unavailable"}
	// ErrRateLimited is returned when a redemption budget is exhausted.
	ErrRateLimited = &Error{Kind: KindRateLimited, msg: "rate limited"}
	// ErrEngineNotReady is returned by a nil or zero-value Engine.
	ErrEngineNotReady = &Error{Kind: KindEngineNotReady, msg: "engine not initialized"}
)

// KindOf returns the kind of err, or KindUnknown when err is nil or foreign.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// decodeError maps codec and validator errors to public sentinels.
func decodeError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrSignatureInvalid):
		return ErrTokenSignatureInvalid
	case errors.Is(err, jwt.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, tokens.ErrClaimMissing):
		return ErrClaimMissing
	default:
		return ErrTokenInvalid
	}
}

func unavailable(err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		return ErrRateLimited
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

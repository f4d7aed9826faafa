package flows

import (
	"context"

	"github.com/MrEthical07/goToken/blacklist"
	"github.com/MrEthical07/goToken/internal/tokens"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/records"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureDecode
	ValidateFailureBlacklisted
	ValidateFailureUnavailable
)

// ValidateResult returns either verified claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.Claims
}

// ValidateDeps captures validation dependencies.
type ValidateDeps struct {
	Validator *tokens.Validator
	Blacklist Blacklist
}

// RunValidate verifies token and consults the blacklist. Stateful records are not
// read; that is the job of refresh and redemption.
func RunValidate(ctx context.Context, token string, deps ValidateDeps) ValidateResult {
	claims, err := deps.Validator.Claims(token)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureDecode, Err: err}
	}
	if deps.Blacklist == nil {
		return ValidateResult{Claims: claims}
	}
	hit, err := deps.Blacklist.Contains(ctx, subjectOf(token, claims))
	if err != nil {
		return ValidateResult{Failure: ValidateFailureUnavailable, Err: err, Claims: claims}
	}
	if hit {
		return ValidateResult{Failure: ValidateFailureBlacklisted, Err: records.ErrNotValid, Claims: claims}
	}
	return ValidateResult{Claims: claims}
}

// subjectOf builds the blacklist lookup for claims. User not-before cutoffs only
// apply to access tokens; refresh and one-time tokens are governed by their records.
func subjectOf(token string, claims *jwt.Claims) blacklist.Subject {
	s := blacklist.Subject{Token: token, JTI: claims.ID}
	if claims.Type != jwt.TypeAccess {
		return s
	}
	if uid, ok := claims.UserIDValue(); ok && claims.IssuedAt != nil {
		s.UserID = uid
		s.HasUser = true
		s.IssuedAt = claims.IssuedAt.Time
	}
	return s
}

package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goToken/internal/tokens"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/records"
)

// IntrospectionFailureKind classifies introspection failures.
type IntrospectionFailureKind int

const (
	IntrospectionFailureNone IntrospectionFailureKind = iota
	IntrospectionFailureDecode
	IntrospectionFailureUnavailable
)

// IntrospectionResult describes a token and, for stateful tokens, its record.
type IntrospectionResult struct {
	Failure     IntrospectionFailureKind
	Err         error
	Claims      *jwt.Claims
	Blacklisted bool
	Stateful    bool
	RecordFound bool
	State       records.State
}

// IntrospectionDeps captures introspection dependencies.
type IntrospectionDeps struct {
	Validator *tokens.Validator
	Store     records.Store
	OneTime   records.OneTimeStore
	Blacklist Blacklist
	Now       func() time.Time
}

// RunIntrospect reports what the engine knows about token without changing it.
func RunIntrospect(ctx context.Context, token string, deps IntrospectionDeps) IntrospectionResult {
	claims, err := deps.Validator.Claims(token)
	if err != nil {
		return IntrospectionResult{Failure: IntrospectionFailureDecode, Err: err}
	}
	res := IntrospectionResult{Claims: claims}
	if deps.Blacklist != nil {
		hit, err := deps.Blacklist.Contains(ctx, subjectOf(token, claims))
		if err != nil {
			return IntrospectionResult{Failure: IntrospectionFailureUnavailable, Err: err, Claims: claims}
		}
		res.Blacklisted = hit
	}

	now := deps.Now()
	hash := records.HashToken(token)
	switch claims.Type {
	case jwt.TypeRefresh:
		res.Stateful = true
		rec, err := deps.Store.FindByToken(ctx, hash)
		if err != nil {
			if errors.Is(err, records.ErrNotFound) {
				return res
			}
			return IntrospectionResult{Failure: IntrospectionFailureUnavailable, Err: err, Claims: claims}
		}
		res.RecordFound = true
		res.State = rec.State(now)

	case jwt.TypeOneTime:
		res.Stateful = true
		if deps.OneTime == nil {
			return res
		}
		rec, err := deps.OneTime.FindOneTime(ctx, hash)
		if err != nil {
			if errors.Is(err, records.ErrNotFound) {
				return res
			}
			return IntrospectionResult{Failure: IntrospectionFailureUnavailable, Err: err, Claims: claims}
		}
		res.RecordFound = true
		switch {
		case rec.Used:
			res.State = records.StateUsed
		case !now.Before(rec.ExpiresAt):
			res.State = records.StateExpired
		default:
			res.State = records.StateActive
		}
	}
	return res
}

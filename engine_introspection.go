package goToken

import (
	"context"

	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/records"
)

// Introspect reports what the engine knows about token: its claims, whether it
// is blacklisted and, for stateful types, the state of its record.
//
// Tokens that fail verification return TokenInfo{Active: false} and a nil
// error. Only backend failures are returned as errors.
func (e *Engine) Introspect(ctx context.Context, token string) (TokenInfo, error) {
	if !e.ready() {
		return TokenInfo{}, ErrEngineNotReady
	}
	res := e.flows.Introspect(ctx, token)
	switch res.Failure {
	case flows.IntrospectionFailureNone:
	case flows.IntrospectionFailureDecode:
		return TokenInfo{}, nil
	default:
		return TokenInfo{}, e.backendFailure("introspect", res.Err)
	}

	c := res.Claims
	info := TokenInfo{
		Active:      !res.Blacklisted,
		Type:        c.Type,
		Subject:     c.Subject,
		Roles:       []string(c.Roles),
		Permissions: []string(c.Permissions),
		Purpose:     c.Purpose,
		JTI:         c.ID,
		Blacklisted: res.Blacklisted,
		Stateful:    res.Stateful,
		RecordFound: res.RecordFound,
	}
	info.UserID, info.HasUserID = c.UserIDValue()
	if c.IssuedAt != nil {
		info.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		info.ExpiresAt = c.ExpiresAt.Time
	}
	if res.RecordFound {
		info.State = string(res.State)
		if res.State != records.StateActive {
			info.Active = false
		}
	}
	if res.Stateful && !res.RecordFound {
		info.Active = false
	}
	return info, nil
}

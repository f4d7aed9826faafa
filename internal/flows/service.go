package flows

import (
	"context"

	"github.com/MrEthical07/goToken/internal/tokens"
	"github.com/MrEthical07/goToken/jwt"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.Validator != nil && s.deps.Refresh.Store != nil
}

func (s Service) Issue(ctx context.Context, id tokens.Identity) IssueResult {
	return RunIssue(ctx, id, s.deps.Issue)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Validate(ctx context.Context, token string) ValidateResult {
	return RunValidate(ctx, token, s.deps.Validate)
}

func (s Service) Revoke(ctx context.Context, token string) RevokeResult {
	return RunRevoke(ctx, token, s.deps.Revoke)
}

func (s Service) RevokeAll(ctx context.Context, userID int64) RevokeAllResult {
	return RunRevokeAll(ctx, userID, s.deps.Revoke)
}

func (s Service) IssueOneTime(ctx context.Context, req OneTimeRequest) OneTimeIssueResult {
	return RunIssueOneTime(ctx, req, s.deps.OneTime)
}

func (s Service) RedeemOneTime(ctx context.Context, token string, purpose jwt.Purpose) OneTimeRedeemResult {
	return RunRedeemOneTime(ctx, token, purpose, s.deps.OneTime)
}

func (s Service) Cleanup(ctx context.Context) CleanupResult {
	return RunCleanup(ctx, s.deps.Cleanup)
}

func (s Service) Introspect(ctx context.Context, token string) IntrospectionResult {
	return RunIntrospect(ctx, token, s.deps.Introspection)
}

package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goToken/internal/tokens"
	"github.com/MrEthical07/goToken/records"
)

// IssueFailureKind classifies issue flow failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureIdentity
	IssueFailureIssue
	IssueFailurePersist
)

// IssueResult carries the freshly issued pair or failure metadata.
type IssueResult struct {
	Failure IssueFailureKind
	Err     error
	Access  tokens.Issued
	Refresh tokens.Issued
	Record  *records.Record
}

// IssueDeps captures issue flow dependencies.
type IssueDeps struct {
	Factory *tokens.Factory
	Store   records.Store
	Now     func() time.Time
}

// RunIssue mints an access/refresh pair for id and persists the refresh record.
func RunIssue(ctx context.Context, id tokens.Identity, deps IssueDeps) IssueResult {
	if id.Subject == "" {
		return IssueResult{Failure: IssueFailureIdentity, Err: errors.New("identity subject is required")}
	}
	access, refresh, rec, err := issuePair(deps.Factory, id, deps.Now())
	if err != nil {
		return IssueResult{Failure: IssueFailureIssue, Err: err}
	}
	if err := deps.Store.Insert(ctx, rec); err != nil {
		return IssueResult{Failure: IssueFailurePersist, Err: err}
	}
	return IssueResult{Access: access, Refresh: refresh, Record: rec}
}

// issuePair mints both tokens and the not-yet-persisted record for the refresh token.
func issuePair(f *tokens.Factory, id tokens.Identity, now time.Time) (tokens.Issued, tokens.Issued, *records.Record, error) {
	access, err := f.IssueAccessToken(id)
	if err != nil {
		return tokens.Issued{}, tokens.Issued{}, nil, err
	}
	refresh, err := f.IssueRefreshToken(id)
	if err != nil {
		return tokens.Issued{}, tokens.Issued{}, nil, err
	}
	rec := &records.Record{
		TokenHash: records.HashToken(refresh.Token),
		JTI:       refresh.JTI,
		UserID:    id.UserID,
		Subject:   id.Subject,
		ExpiresAt: refresh.ExpiresAt,
		CreatedAt: now,
	}
	return access, refresh, rec, nil
}

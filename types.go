package goToken

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/internal/tokens"
	"github.com/MrEthical07/goToken/jwt"
)

// Identity is the account snapshot embedded in issued tokens.
type Identity = tokens.Identity

// Claims is the decoded claim set of a verified token.
type Claims = jwt.Claims

// TokenType is the value of the type claim.
type TokenType = jwt.TokenType

const (
	TokenAccess  = jwt.TypeAccess
	TokenRefresh = jwt.TypeRefresh
	TokenOneTime = jwt.TypeOneTime
)

// Purpose scopes a one-time token.
type Purpose = jwt.Purpose

const (
	PurposeEmailVerification = jwt.PurposeEmailVerification
	PurposePasswordReset     = jwt.PurposePasswordReset
	PurposeAccountActivation = jwt.PurposeAccountActivation
)

// AccountStatus represents the lifecycle state of a user account.
type AccountStatus uint8

const (
	AccountActive AccountStatus = iota
	AccountPendingVerification
	AccountDisabled
	AccountLocked
	AccountDeleted
)

func (s AccountStatus) String() string {
	switch s {
	case AccountActive:
		return "ACTIVE"
	case AccountPendingVerification:
		return "PENDING_VERIFICATION"
	case AccountDisabled:
		return "DISABLED"
	case AccountLocked:
		return "LOCKED"
	case AccountDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// Usable reports whether an account in this state may hold credentials.
func (s AccountStatus) Usable() bool {
	return s == AccountActive
}

// UserRecord is what a [Directory] knows about an account.
type UserRecord struct {
	UserID      int64
	Subject     string
	Roles       []string
	Permissions []string
	Status      AccountStatus
}

// Identity returns the token identity for u.
func (u UserRecord) Identity() Identity {
	return Identity{
		UserID:      u.UserID,
		Subject:     u.Subject,
		Roles:       append([]string(nil), u.Roles...),
		Permissions: append([]string(nil), u.Permissions...),
	}
}

// Directory resolves accounts by id. Implementations return an error matching
// [ErrUserNotFound] for unknown ids; any other error is treated as unavailability.
type Directory interface {
	FindUser(ctx context.Context, userID int64) (UserRecord, error)
}

// TokenPair is the result of Issue and Refresh.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// OneTimeToken is a freshly issued purpose-scoped token.
type OneTimeToken struct {
	Token     string
	JTI       string
	Purpose   Purpose
	ExpiresAt time.Time
}

// OneTimeRedemption describes a successfully consumed one-time token.
type OneTimeRedemption struct {
	UserID  int64
	Subject string
	Purpose Purpose
	JTI     string
}

// TokenInfo is the result of [Engine.Introspect]. Active is false for tokens
// that fail verification; the remaining fields are then zero.
type TokenInfo struct {
	Active      bool
	Type        TokenType
	Subject     string
	UserID      int64
	HasUserID   bool
	Roles       []string
	Permissions []string
	Purpose     Purpose
	JTI         string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Blacklisted bool
	// Stateful is true for refresh and one-time tokens, which have store records.
	Stateful    bool
	RecordFound bool
	// State is ACTIVE, USED, REVOKED or EXPIRED when RecordFound is true.
	State string
}

package jwt

import (
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType is the value of the "type" claim.
type TokenType string

const (
	// TypeAccess marks short-lived bearer credentials. Access tokens are never persisted.
	TypeAccess TokenType = "ACCESS"
	// TypeRefresh marks single-use rotation credentials backed by a stored record.
	TypeRefresh TokenType = "REFRESH"
	// TypeOneTime marks purpose-scoped single-use tokens (email links and similar).
	TypeOneTime TokenType = "ONE_TIME"
)

// Valid reports whether t is one of the known token types.
func (t TokenType) Valid() bool {
	switch t {
	case TypeAccess, TypeRefresh, TypeOneTime:
		return true
	default:
		return false
	}
}

// Purpose scopes a ONE_TIME token to a single flow.
type Purpose string

const (
	PurposeEmailVerification Purpose = "EMAIL_VERIFICATION"
	PurposePasswordReset     Purpose = "PASSWORD_RESET"
	PurposeAccountActivation Purpose = "ACCOUNT_ACTIVATION"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeEmailVerification, PurposePasswordReset, PurposeAccountActivation:
		return true
	default:
		return false
	}
}

// ClaimList is a string set claim (roles, permissions).
//
// It always encodes as a JSON array, an empty list as []. Decoding accepts either
// an array or a comma-joined string. A nil ClaimList after decoding means the claim
// was absent from the token.
type ClaimList []string

// MarshalJSON encodes the list as an array, never null.
func (l ClaimList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// UnmarshalJSON accepts ["a","b"] or "a,b".
func (l *ClaimList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = ClaimList{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var joined string
		if err := json.Unmarshal(data, &joined); err != nil {
			return err
		}
		out := ClaimList{}
		for _, part := range strings.Split(joined, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
		*l = out
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	if items == nil {
		items = []string{}
	}
	*l = ClaimList(items)
	return nil
}

// Claims is the full claim set carried by every goToken token.
type Claims struct {
	UserID      *int64    `json:"userId,omitempty"`
	Type        TokenType `json:"type"`
	Roles       ClaimList `json:"roles"`
	Permissions ClaimList `json:"permissions"`
	Purpose     Purpose   `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// UserIDValue returns the userId claim and whether it was present.
func (c *Claims) UserIDValue() (int64, bool) {
	if c == nil || c.UserID == nil {
		return 0, false
	}
	return *c.UserID, true
}

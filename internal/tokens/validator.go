package tokens

import (
	"errors"
	"time"

	"github.com/MrEthical07/goToken/jwt"
)

var (
	// ErrClaimMissing is returned by strict accessors when a valid token lacks the claim.
	ErrClaimMissing = errors.New("claim missing")
	// ErrWrongType is returned when a token of one class is presented where another is required.
	ErrWrongType = errors.New("unexpected token type")
)

// Validator verifies tokens and extracts claims. It never mutates state.
type Validator struct {
	codec *jwt.Manager
}

// NewValidator returns a Validator backed by codec.
func NewValidator(codec *jwt.Manager) *Validator {
	return &Validator{codec: codec}
}

// Validate reports whether token verifies and is unexpired. It never errors.
func (v *Validator) Validate(token string) bool {
	_, err := v.codec.Decode(token)
	return err == nil
}

// Claims decodes and verifies token.
func (v *Validator) Claims(token string) (*jwt.Claims, error) {
	return v.codec.Decode(token)
}

// ClaimsOfType decodes token and requires its type claim to equal want.
func (v *Validator) ClaimsOfType(token string, want jwt.TokenType) (*jwt.Claims, error) {
	claims, err := v.codec.Decode(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != want {
		return nil, ErrWrongType
	}
	return claims, nil
}

// Subject returns the sub claim.
func (v *Validator) Subject(token string) (string, error) {
	claims, err := v.codec.Decode(token)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", ErrClaimMissing
	}
	return claims.Subject, nil
}

// UserID returns the userId claim. A valid token without the claim yields (0, false, nil).
func (v *Validator) UserID(token string) (int64, bool, error) {
	claims, err := v.codec.Decode(token)
	if err != nil {
		return 0, false, err
	}
	id, ok := claims.UserIDValue()
	return id, ok, nil
}

// Roles returns the roles claim; an explicit empty list is returned as an empty slice.
func (v *Validator) Roles(token string) ([]string, error) {
	claims, err := v.codec.Decode(token)
	if err != nil {
		return nil, err
	}
	if claims.Roles == nil {
		return nil, ErrClaimMissing
	}
	return cloneList(claims.Roles), nil
}

// Permissions returns the permissions claim.
func (v *Validator) Permissions(token string) ([]string, error) {
	claims, err := v.codec.Decode(token)
	if err != nil {
		return nil, err
	}
	if claims.Permissions == nil {
		return nil, ErrClaimMissing
	}
	return cloneList(claims.Permissions), nil
}

// TokenType returns the type claim.
func (v *Validator) TokenType(token string) (jwt.TokenType, error) {
	claims, err := v.codec.Decode(token)
	if err != nil {
		return "", err
	}
	if !claims.Type.Valid() {
		return "", ErrClaimMissing
	}
	return claims.Type, nil
}

// Purpose returns the purpose claim of a one-time token.
func (v *Validator) Purpose(token string) (jwt.Purpose, error) {
	claims, err := v.codec.Decode(token)
	if err != nil {
		return "", err
	}
	if claims.Purpose == "" {
		return "", ErrClaimMissing
	}
	return claims.Purpose, nil
}

// Expiration returns the exp claim.
func (v *Validator) Expiration(token string) (time.Time, error) {
	claims, err := v.codec.Decode(token)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrClaimMissing
	}
	return claims.ExpiresAt.Time, nil
}

// Identity extracts the full identity snapshot. sub and userId are required;
// absent role or permission claims yield empty sets.
func (v *Validator) Identity(token string) (Identity, error) {
	claims, err := v.codec.Decode(token)
	if err != nil {
		return Identity{}, err
	}
	return IdentityFromClaims(claims)
}

// IdentityFromClaims builds an Identity from already verified claims.
func IdentityFromClaims(claims *jwt.Claims) (Identity, error) {
	if claims.Subject == "" {
		return Identity{}, ErrClaimMissing
	}
	uid, ok := claims.UserIDValue()
	if !ok {
		return Identity{}, ErrClaimMissing
	}
	return Identity{
		UserID:      uid,
		Subject:     claims.Subject,
		Roles:       cloneList(claims.Roles),
		Permissions: cloneList(claims.Permissions),
	}, nil
}

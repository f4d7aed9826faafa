package tokens

import (
	"errors"
	"fmt"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MrEthical07/goToken/jwt"
)

// ErrUnknownPurpose is returned when a one-time token is requested for a purpose
// without a configured lifetime.
var ErrUnknownPurpose = errors.New("unknown one-time token purpose")

// AccessSpec configures access token issuance.
type AccessSpec struct {
	TTL time.Duration
}

// RefreshSpec configures refresh token issuance.
type RefreshSpec struct {
	TTL time.Duration
}

// OneTimeSpec configures one-time token issuance. TTLs maps each accepted purpose
// to its lifetime; purposes absent from the table are rejected.
type OneTimeSpec struct {
	TTLs map[jwt.Purpose]time.Duration
}

// Issued is a freshly minted token together with the facts needed to persist it.
type Issued struct {
	Token     string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Factory mints signed tokens. It is safe for concurrent use.
type Factory struct {
	codec   *jwt.Manager
	access  AccessSpec
	refresh RefreshSpec
	oneTime OneTimeSpec
	now     func() time.Time
	newID   func() string
}

// NewFactory validates the specs and returns a Factory. now defaults to time.Now.
func NewFactory(codec *jwt.Manager, access AccessSpec, refresh RefreshSpec, oneTime OneTimeSpec, now func() time.Time) (*Factory, error) {
	if codec == nil {
		return nil, errors.New("codec is required")
	}
	if !codec.CanSign() {
		return nil, errors.New("codec cannot sign")
	}
	if access.TTL <= 0 {
		return nil, errors.New("access TTL must be > 0")
	}
	if refresh.TTL <= 0 {
		return nil, errors.New("refresh TTL must be > 0")
	}
	if refresh.TTL < access.TTL {
		return nil, errors.New("refresh TTL must be >= access TTL")
	}
	ttls := make(map[jwt.Purpose]time.Duration, len(oneTime.TTLs))
	for purpose, ttl := range oneTime.TTLs {
		if !purpose.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPurpose, purpose)
		}
		if ttl <= 0 {
			return nil, fmt.Errorf("one-time TTL for %s must be > 0", purpose)
		}
		ttls[purpose] = ttl
	}
	if now == nil {
		now = time.Now
	}
	return &Factory{
		codec:   codec,
		access:  access,
		refresh: refresh,
		oneTime: OneTimeSpec{TTLs: ttls},
		now:     now,
		newID:   func() string { return uuid.NewString() },
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (f *Factory) AccessTTL() time.Duration { return f.access.TTL }

// IssueAccessToken signs an ACCESS token for id. Access tokens carry no jti.
func (f *Factory) IssueAccessToken(id Identity) (Issued, error) {
	return f.issue(identityClaims(id, jwt.TypeAccess), f.access.TTL, "")
}

// IssueRefreshToken signs a REFRESH token for id with a fresh jti.
func (f *Factory) IssueRefreshToken(id Identity) (Issued, error) {
	return f.issue(identityClaims(id, jwt.TypeRefresh), f.refresh.TTL, f.newID())
}

// IssueOneTimeToken signs a ONE_TIME token scoped to purpose.
func (f *Factory) IssueOneTimeToken(userID int64, subject string, purpose jwt.Purpose) (Issued, error) {
	ttl, ok := f.oneTime.TTLs[purpose]
	if !ok {
		return Issued{}, fmt.Errorf("%w: %q", ErrUnknownPurpose, purpose)
	}
	claims := identityClaims(Identity{UserID: userID, Subject: subject}, jwt.TypeOneTime)
	claims.Purpose = purpose
	return f.issue(claims, ttl, f.newID())
}

func (f *Factory) issue(claims jwt.Claims, ttl time.Duration, jti string) (Issued, error) {
	if claims.Subject == "" {
		return Issued{}, errors.New("subject is required")
	}
	issuedAt := f.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl)

	claims.ID = jti
	claims.IssuedAt = gjwt.NewNumericDate(issuedAt)
	claims.ExpiresAt = gjwt.NewNumericDate(expiresAt)

	token, err := f.codec.Encode(claims)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: token, JTI: jti, IssuedAt: issuedAt, ExpiresAt: expiresAt}, nil
}

func identityClaims(id Identity, typ jwt.TokenType) jwt.Claims {
	uid := id.UserID
	return jwt.Claims{
		UserID:      &uid,
		Type:        typ,
		Roles:       jwt.ClaimList(cloneList(id.Roles)),
		Permissions: jwt.ClaimList(cloneList(id.Permissions)),
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject: id.Subject,
		},
	}
}

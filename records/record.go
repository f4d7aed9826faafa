package records

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for the given key.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a record with the same token hash already exists.
	ErrDuplicate = errors.New("record already exists")
	// ErrNotValid is returned when a record exists but is used, revoked or expired.
	ErrNotValid = errors.New("record used, revoked or expired")
	// ErrPurposeMismatch is returned when a one-time token is redeemed for another purpose.
	ErrPurposeMismatch = errors.New("one-time token purpose mismatch")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("record store unavailable")
)

// State is the lifecycle position of a refresh record.
type State string

const (
	StateActive  State = "ACTIVE"
	StateUsed    State = "USED"
	StateRevoked State = "REVOKED"
	StateExpired State = "EXPIRED"
)

// Record is the durable state of one refresh token.
type Record struct {
	ID        int64
	TokenHash string
	JTI       string
	UserID    int64
	Subject   string
	ExpiresAt time.Time
	Used      bool
	Revoked   bool
	CreatedAt time.Time
}

// Valid reports whether the record can still be redeemed at now.
func (r *Record) Valid(now time.Time) bool {
	return !r.Used && !r.Revoked && now.Before(r.ExpiresAt)
}

// State returns the record's state at now. Revocation wins over use, use over expiry.
func (r *Record) State(now time.Time) State {
	switch {
	case r.Revoked:
		return StateRevoked
	case r.Used:
		return StateUsed
	case !now.Before(r.ExpiresAt):
		return StateExpired
	default:
		return StateActive
	}
}

// OneTimeRecord is the durable state of one purpose-scoped one-time token.
type OneTimeRecord struct {
	ID        int64
	TokenHash string
	JTI       string
	UserID    int64
	Subject   string
	Purpose   string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Valid reports whether the record can still be consumed at now.
func (r *OneTimeRecord) Valid(now time.Time) bool {
	return !r.Used && now.Before(r.ExpiresAt)
}

// Store persists refresh token records.
type Store interface {
	// Insert persists rec and assigns rec.ID.
	Insert(ctx context.Context, rec *Record) error
	FindByToken(ctx context.Context, tokenHash string) (*Record, error)
	FindByID(ctx context.Context, id int64) (*Record, error)
	// ConditionalMarkUsed flips used from false to true only if the record exists,
	// is not revoked and is unexpired at now. It reports whether this call won.
	ConditionalMarkUsed(ctx context.Context, tokenHash string, now time.Time) (bool, error)
	// MarkRevoked reports true only when the record existed and was not yet revoked.
	MarkRevoked(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID int64) (int, error)
	// DeleteExpired removes records whose ExpiresAt is at or before before.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
	// Delete removes a record unconditionally. Used to discard records whose
	// token was never handed out.
	Delete(ctx context.Context, tokenHash string) error
}

// Rotator is implemented by stores that can mark a record used and insert its
// successor in a single atomic step. It returns ErrNotFound or ErrNotValid when
// the old record cannot be redeemed, in which case next is not persisted.
type Rotator interface {
	Rotate(ctx context.Context, oldHash string, next *Record, now time.Time) error
}

// OneTimeStore persists one-time token records.
type OneTimeStore interface {
	InsertOneTime(ctx context.Context, rec *OneTimeRecord) error
	FindOneTime(ctx context.Context, tokenHash string) (*OneTimeRecord, error)
	// ConsumeOneTime atomically marks an unused, unexpired record with the given
	// purpose as used and returns it. It fails with ErrNotFound, ErrPurposeMismatch
	// or ErrNotValid.
	ConsumeOneTime(ctx context.Context, tokenHash, purpose string, now time.Time) (*OneTimeRecord, error)
	DeleteExpiredOneTime(ctx context.Context, before time.Time) (int, error)
}

// HashToken returns the storage key for a token value.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

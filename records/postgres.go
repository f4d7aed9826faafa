package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const refreshColumns = `id, token_hash, jti, user_id, subject, expires_at, used, revoked, created_at`

const oneTimeColumns = `id, token_hash, jti, user_id, subject, purpose, expires_at, used, created_at`

// PostgresStore is a Store, Rotator and OneTimeStore over database/sql.
// Conditional updates rely on row-level locking of a single UPDATE statement.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore returns a store bound to db. Run Migrate first.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	rec := &Record{}
	err := row.Scan(&rec.ID, &rec.TokenHash, &rec.JTI, &rec.UserID, &rec.Subject,
		&rec.ExpiresAt, &rec.Used, &rec.Revoked, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func scanOneTime(row rowScanner) (*OneTimeRecord, error) {
	rec := &OneTimeRecord{}
	err := row.Scan(&rec.ID, &rec.TokenHash, &rec.JTI, &rec.UserID, &rec.Subject,
		&rec.Purpose, &rec.ExpiresAt, &rec.Used, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func mapReadError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func affected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertRecord(ctx context.Context, db queryRower, rec *Record) error {
	query := `
		INSERT INTO refresh_tokens (token_hash, jti, user_id, subject, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := db.QueryRowContext(ctx, query, rec.TokenHash, rec.JTI, rec.UserID, rec.Subject, rec.ExpiresAt, rec.CreatedAt).
		Scan(&rec.ID)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec *Record) error {
	return insertRecord(ctx, s.db, rec)
}

func (s *PostgresStore) FindByToken(ctx context.Context, tokenHash string) (*Record, error) {
	query := `SELECT ` + refreshColumns + ` FROM refresh_tokens WHERE token_hash = $1`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		return nil, mapReadError(err)
	}
	return rec, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*Record, error) {
	query := `SELECT ` + refreshColumns + ` FROM refresh_tokens WHERE id = $1`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapReadError(err)
	}
	return rec, nil
}

const markUsedQuery = `
		UPDATE refresh_tokens
		SET used = TRUE
		WHERE token_hash = $1 AND used = FALSE AND revoked = FALSE AND expires_at > $2
	`

func (s *PostgresStore) ConditionalMarkUsed(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, markUsedQuery, tokenHash, now)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := affected(res)
	return n == 1, err
}

// Rotate marks oldHash used and inserts next inside one transaction.
func (s *PostgresStore) Rotate(ctx context.Context, oldHash string, next *Record, now time.Time) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, markUsedQuery, oldHash, now)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token_hash = $1)`, oldHash).Scan(&exists); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrNotValid
	}

	if err = insertRecord(ctx, tx, next); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) MarkRevoked(ctx context.Context, tokenHash string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token_hash = $1 AND revoked = FALSE`, tokenHash)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := affected(res)
	return n == 1, err
}

func (s *PostgresStore) RevokeAllForUser(ctx context.Context, userID int64) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND revoked = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return affected(res)
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return affected(res)
}

func (s *PostgresStore) Delete(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) InsertOneTime(ctx context.Context, rec *OneTimeRecord) error {
	query := `
		INSERT INTO one_time_tokens (token_hash, jti, user_id, subject, purpose, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query, rec.TokenHash, rec.JTI, rec.UserID, rec.Subject, rec.Purpose, rec.ExpiresAt, rec.CreatedAt).
		Scan(&rec.ID)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *PostgresStore) FindOneTime(ctx context.Context, tokenHash string) (*OneTimeRecord, error) {
	query := `SELECT ` + oneTimeColumns + ` FROM one_time_tokens WHERE token_hash = $1`
	rec, err := scanOneTime(s.db.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		return nil, mapReadError(err)
	}
	return rec, nil
}

func (s *PostgresStore) ConsumeOneTime(ctx context.Context, tokenHash, purpose string, now time.Time) (*OneTimeRecord, error) {
	query := `
		UPDATE one_time_tokens
		SET used = TRUE
		WHERE token_hash = $1 AND purpose = $2 AND used = FALSE AND expires_at > $3
		RETURNING ` + oneTimeColumns
	rec, err := scanOneTime(s.db.QueryRowContext(ctx, query, tokenHash, purpose, now))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	existing, err := s.FindOneTime(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if existing.Purpose != purpose {
		return nil, ErrPurposeMismatch
	}
	return nil, ErrNotValid
}

func (s *PostgresStore) DeleteExpiredOneTime(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM one_time_tokens WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return affected(res)
}

var (
	_ Store        = (*PostgresStore)(nil)
	_ Rotator      = (*PostgresStore)(nil)
	_ OneTimeStore = (*PostgresStore)(nil)
)

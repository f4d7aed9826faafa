package records

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

var refreshCols = []string{"id", "token_hash", "jti", "user_id", "subject", "expires_at", "used", "revoked", "created_at"}

func TestPostgresInsert(t *testing.T) {
	store, mock := newStoreWithMock(t)
	rec := newRecord(42, 1, base.Add(time.Hour))

	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+refresh_tokens\b.*RETURNING\s+id\s*$`).
		WithArgs(rec.TokenHash, rec.JTI, int64(42), rec.Subject, rec.ExpiresAt, rec.CreatedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	require.NoError(t, store.Insert(context.Background(), rec))
	assert.Equal(t, int64(11), rec.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertDuplicate(t *testing.T) {
	store, mock := newStoreWithMock(t)
	rec := newRecord(42, 1, base.Add(time.Hour))

	mock.ExpectQuery(`INSERT\s+INTO\s+refresh_tokens`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	assert.ErrorIs(t, store.Insert(context.Background(), rec), ErrDuplicate)
}

func TestPostgresFindByToken(t *testing.T) {
	store, mock := newStoreWithMock(t)
	expires := base.Add(time.Hour)

	mock.ExpectQuery(`^SELECT .* FROM refresh_tokens WHERE token_hash = \$1$`).
		WithArgs("h1").
		WillReturnRows(sqlmock.NewRows(refreshCols).AddRow(int64(3), "h1", "j1", int64(42), "alice", expires, false, false, base))

	got, err := store.FindByToken(context.Background(), "h1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ID)
	assert.Equal(t, int64(42), got.UserID)
	assert.True(t, got.ExpiresAt.Equal(expires))

	mock.ExpectQuery(`FROM refresh_tokens WHERE token_hash`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = store.FindByToken(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery(`FROM refresh_tokens WHERE id`).
		WithArgs(int64(9)).
		WillReturnError(errors.New("conn reset"))
	_, err = store.FindByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPostgresConditionalMarkUsed(t *testing.T) {
	store, mock := newStoreWithMock(t)
	q := `(?s)UPDATE\s+refresh_tokens\s+SET\s+used\s*=\s*TRUE\s+WHERE\s+token_hash\s*=\s*\$1\s+AND\s+used\s*=\s*FALSE\s+AND\s+revoked\s*=\s*FALSE\s+AND\s+expires_at\s*>\s*\$2`

	mock.ExpectExec(q).WithArgs("h1", base).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("h1", base).WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := store.ConditionalMarkUsed(context.Background(), "h1", base)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = store.ConditionalMarkUsed(context.Background(), "h1", base)
	require.NoError(t, err)
	assert.False(t, won)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRotateCommits(t *testing.T) {
	store, mock := newStoreWithMock(t)
	next := newRecord(42, 2, base.Add(time.Hour))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE\s+refresh_tokens\s+SET\s+used`).WithArgs("old", base).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT\s+INTO\s+refresh_tokens`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))
	mock.ExpectCommit()

	require.NoError(t, store.Rotate(context.Background(), "old", next, base))
	assert.Equal(t, int64(12), next.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRotateLostRaceRollsBack(t *testing.T) {
	store, mock := newStoreWithMock(t)
	next := newRecord(42, 2, base.Add(time.Hour))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE\s+refresh_tokens\s+SET\s+used`).WithArgs("old", base).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("old").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	assert.ErrorIs(t, store.Rotate(context.Background(), "old", next, base), ErrNotValid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRevocationAndCleanup(t *testing.T) {
	store, mock := newStoreWithMock(t)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE refresh_tokens SET revoked = TRUE WHERE token_hash = \$1 AND revoked = FALSE`).
		WithArgs("h1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = \$1 AND revoked = FALSE`).
		WithArgs(int64(42)).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE expires_at <= \$1`).
		WithArgs(base).WillReturnResult(sqlmock.NewResult(0, 5))

	ok, err := store.MarkRevoked(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := store.RevokeAllForUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = store.DeleteExpired(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresConsumeOneTimePurposeMismatch(t *testing.T) {
	store, mock := newStoreWithMock(t)
	cols := []string{"id", "token_hash", "jti", "user_id", "subject", "purpose", "expires_at", "used", "created_at"}

	mock.ExpectQuery(`(?s)UPDATE\s+one_time_tokens\s+SET\s+used\s*=\s*TRUE.*RETURNING`).
		WithArgs("h1", "EMAIL_VERIFICATION", base).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM one_time_tokens WHERE token_hash = \$1`).
		WithArgs("h1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(1), "h1", "j", int64(42), "alice", "PASSWORD_RESET", base.Add(time.Hour), false, base))

	_, err := store.ConsumeOneTime(context.Background(), "h1", "EMAIL_VERIFICATION", base)
	assert.ErrorIs(t, err, ErrPurposeMismatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

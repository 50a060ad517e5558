package authentication

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestHashToken(t *testing.T) {
	h := HashToken("abc")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashToken("abc"))
	assert.NotEqual(t, h, HashToken("abd"))
}

func TestRecordRepository_Put(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRecordRepository(db)
	expiresAt := time.Now().Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "refresh_tokens"`)).
		WithArgs(uint(3), HashToken("tok"), expiresAt, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	require.NoError(t, repo.Put(context.Background(), "tok", 3, expiresAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepository_PutDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "refresh_tokens"`)).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Put(context.Background(), "tok", 3, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrTokenConflict)
}

func TestRecordRepository_PutDatabaseDown(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "refresh_tokens"`)).
		WillReturnError(errors.New("connection refused"))

	err := repo.Put(context.Background(), "tok", 3, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrUnresponsiveDatabase)
}

func TestRecordRepository_Consume(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRecordRepository(db)
	expiresAt := time.Now().Add(time.Hour).UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM "refresh_tokens" WHERE token_hash = $1 RETURNING *`)).
		WithArgs(HashToken("tok")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "created_at"}).
			AddRow(9, 3, HashToken("tok"), expiresAt, time.Now()))

	rec, err := repo.Consume(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, uint(9), rec.ID)
	assert.Equal(t, uint(3), rec.UserID)
	assert.Equal(t, expiresAt, rec.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepository_ConsumeMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM "refresh_tokens"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "created_at"}))

	_, err := repo.Consume(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRecordRepository_ConsumeDatabaseDown(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM "refresh_tokens"`)).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.Consume(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrUnresponsiveDatabase)
}

func TestRecordRepository_RevokeIsIdempotent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRecordRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "refresh_tokens" WHERE token_hash = $1`)).
		WithArgs(HashToken("tok")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.Revoke(context.Background(), "tok"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepository_RevokeAll(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRecordRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "refresh_tokens" WHERE user_id = $1`)).
		WithArgs(uint(3)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.RevokeAll(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepository_PurgeExpired(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRecordRepository(db)
	before := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "refresh_tokens" WHERE expires_at <= $1`)).
		WithArgs(before).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.PurgeExpired(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "refresh_tokens"`)).
		WillReturnError(errors.New("connection reset"))
	_, err = repo.PurgeExpired(context.Background(), before)
	assert.ErrorIs(t, err, ErrUnresponsiveDatabase)
}

package authentication

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTokenNotFound        = errors.New("refresh token not found")
	ErrTokenConflict        = errors.New("refresh token already stored")
	ErrUnresponsiveDatabase = errors.New("error occurred while accessing refresh_tokens table")
)

// Store persists refresh sessions. Every method is independently atomic.
type Store interface {
	// Put stores a new session for token.
	Put(ctx context.Context, token string, userID uint, expiresAt time.Time) error
	// Consume deletes the session for token and returns it. Of several callers
	// racing on the same token at most one succeeds; the rest get ErrTokenNotFound.
	Consume(ctx context.Context, token string) (*RefreshTokenRecord, error)
	// Revoke deletes the session for token if present.
	Revoke(ctx context.Context, token string) error
	// RevokeAll deletes every session of userID and reports how many were removed.
	RevokeAll(ctx context.Context, userID uint) (int64, error)
	// PurgeExpired deletes sessions that expired at or before the given time.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

type recordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) Store {
	return &recordRepository{db: db}
}

// HashToken derives the lookup key stored in place of the raw token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (r *recordRepository) Put(ctx context.Context, token string, userID uint, expiresAt time.Time) error {
	rec := &RefreshTokenRecord{
		UserID:    userID,
		TokenHash: HashToken(token),
		ExpiresAt: expiresAt,
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.Is(err, gorm.ErrDuplicatedKey) || (errors.As(err, &pgErr) && pgErr.Code == "23505") {
			return ErrTokenConflict
		}
		return fmt.Errorf("%w: %v", ErrUnresponsiveDatabase, err)
	}
	return nil
}

func (r *recordRepository) Consume(ctx context.Context, token string) (*RefreshTokenRecord, error) {
	var deleted []RefreshTokenRecord
	res := r.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("token_hash = ?", HashToken(token)).
		Delete(&deleted)
	if res.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresponsiveDatabase, res.Error)
	}
	if res.RowsAffected == 0 || len(deleted) == 0 {
		return nil, ErrTokenNotFound
	}
	return &deleted[0], nil
}

func (r *recordRepository) Revoke(ctx context.Context, token string) error {
	res := r.db.WithContext(ctx).
		Where("token_hash = ?", HashToken(token)).
		Delete(&RefreshTokenRecord{})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrUnresponsiveDatabase, res.Error)
	}
	return nil
}

func (r *recordRepository) RevokeAll(ctx context.Context, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&RefreshTokenRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnresponsiveDatabase, res.Error)
	}
	return res.RowsAffected, nil
}

func (r *recordRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", before).
		Delete(&RefreshTokenRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnresponsiveDatabase, res.Error)
	}
	return res.RowsAffected, nil
}

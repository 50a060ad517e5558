package authentication

import "time"

// RefreshTokenRecord is a live refresh session. Its existence is the only
// authority for refreshing: deleting the row ends the session.
type RefreshTokenRecord struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	TokenHash string    `gorm:"uniqueIndex;size:64;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

func (RefreshTokenRecord) TableName() string {
	return "refresh_tokens"
}

package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost keeps a single verification well under a request budget
// on commodity hardware.
const DefaultBcryptCost = 12

var (
	ErrCorruptDigest         = errors.New("corrupt password digest")
	ErrHashingPasswordFailed = errors.New("hashing password failed")
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) (bool, error)
}

type bcryptHasher struct {
	cost int
}

// NewPasswordHasher returns a bcrypt hasher with a fixed work factor. Costs
// outside bcrypt's accepted range are clamped.
func NewPasswordHasher(cost int) PasswordHasher {
	switch {
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &bcryptHasher{cost: cost}
}

func (h *bcryptHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", errors.Join(ErrHashingPasswordFailed, err)
	}
	return string(digest), nil
}

func (h *bcryptHasher) Verify(plaintext, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, errors.Join(ErrCorruptDigest, err)
	}
}

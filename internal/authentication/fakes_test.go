package authentication

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mehmetcc/calibration-auth-service/internal/user"
)

var errDatabaseDown = errors.New("database down")

// memStore is an in-memory Store keyed like the SQL store.
type memStore struct {
	mu      sync.Mutex
	records map[string]RefreshTokenRecord
	nextID  uint
	failing bool
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]RefreshTokenRecord)}
}

func (s *memStore) Put(_ context.Context, token string, userID uint, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errDatabaseDown
	}
	key := HashToken(token)
	if _, ok := s.records[key]; ok {
		return ErrTokenConflict
	}
	s.nextID++
	s.records[key] = RefreshTokenRecord{
		ID:        s.nextID,
		UserID:    userID,
		TokenHash: key,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	return nil
}

func (s *memStore) Consume(_ context.Context, token string) (*RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errDatabaseDown
	}
	key := HashToken(token)
	rec, ok := s.records[key]
	if !ok {
		return nil, ErrTokenNotFound
	}
	delete(s.records, key)
	return &rec, nil
}

func (s *memStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errDatabaseDown
	}
	delete(s.records, HashToken(token))
	return nil
}

func (s *memStore) RevokeAll(_ context.Context, userID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, errDatabaseDown
	}
	var n int64
	for k, rec := range s.records {
		if rec.UserID == userID {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}

func (s *memStore) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, errDatabaseDown
	}
	var n int64
	for k, rec := range s.records {
		if !rec.ExpiresAt.After(before) {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *memStore) only() RefreshTokenRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		return rec
	}
	return RefreshTokenRecord{}
}

func (s *memStore) has(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[HashToken(token)]
	return ok
}

// memUsers is an in-memory user.Repository.
type memUsers struct {
	mu     sync.Mutex
	byID   map[uint]user.User
	nextID uint
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[uint]user.User)}
}

func (r *memUsers) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Email == u.Email {
			return user.ErrEmailAlreadyExists
		}
	}
	r.nextID++
	u.ID = r.nextID
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	r.byID[u.ID] = *u
	return nil
}

func (r *memUsers) ReadByEmail(_ context.Context, email string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = user.NormalizeEmail(email)
	for _, u := range r.byID {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (r *memUsers) ReadByID(_ context.Context, id uint) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return &u, nil
}

func (r *memUsers) update(id uint, fn func(*user.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return user.ErrUserNotFound
	}
	fn(&u)
	r.byID[id] = u
	return nil
}

func (r *memUsers) UpdateLastLogin(_ context.Context, id uint, at time.Time) error {
	return r.update(id, func(u *user.User) { u.LastLoginAt = &at })
}

func (r *memUsers) UpdateRole(_ context.Context, id uint, role user.Role) error {
	return r.update(id, func(u *user.User) { u.Role = role })
}

func (r *memUsers) UpdateActive(_ context.Context, id uint, active bool) error {
	return r.update(id, func(u *user.User) { u.IsActive = active })
}

func (r *memUsers) UpdatePasswordHash(_ context.Context, id uint, hash string) error {
	return r.update(id, func(u *user.User) { u.PasswordHash = hash })
}

func (r *memUsers) Delete(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return user.ErrUserNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *memUsers) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

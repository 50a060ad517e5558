package user

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mehmetcc/calibration-auth-service/internal/utils"
)

// SessionRevoker drops every refresh session a user holds. The refresh token
// store implements it.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, userID uint) (int64, error)
}

var ErrInvalidRole = errors.New("invalid role")

// Service is the administrative side of user management.
type Service interface {
	ReadUserByID(ctx context.Context, id uint) (*User, error)
	UpdateRole(ctx context.Context, id uint, role Role) (*User, error)
	SetActive(ctx context.Context, id uint, active bool) (*User, error)
	ChangePassword(ctx context.Context, id uint, password string) error
	DeleteUser(ctx context.Context, id uint) error
}

type userService struct {
	repo    Repository
	hasher  utils.PasswordHasher
	revoker SessionRevoker
	logger  *zap.Logger
}

func NewUserService(repo Repository, hasher utils.PasswordHasher, revoker SessionRevoker, logger *zap.Logger) Service {
	return &userService{
		repo:    repo,
		hasher:  hasher,
		revoker: revoker,
		logger:  logger,
	}
}

func (s *userService) ReadUserByID(ctx context.Context, id uint) (*User, error) {
	user, err := s.repo.ReadByID(ctx, id)
	if err != nil {
		s.logReadFailure("failed to get user by ID", id, err)
		return nil, err
	}
	return user, nil
}

func (s *userService) UpdateRole(ctx context.Context, id uint, role Role) (*User, error) {
	if _, ok := ParseRole(string(role)); !ok {
		return nil, ErrInvalidRole
	}
	if err := s.repo.UpdateRole(ctx, id, role); err != nil {
		s.logReadFailure("failed to update role", id, err)
		return nil, err
	}
	s.logger.Info("user role changed", zap.Uint("userID", id), zap.String("role", string(role)))
	return s.ReadUserByID(ctx, id)
}

// SetActive toggles the account flag. Deactivation also ends every session so
// that existing refresh tokens cannot outlive the account.
func (s *userService) SetActive(ctx context.Context, id uint, active bool) (*User, error) {
	if err := s.repo.UpdateActive(ctx, id, active); err != nil {
		s.logReadFailure("failed to update active flag", id, err)
		return nil, err
	}
	if !active {
		if err := s.revokeSessions(ctx, id); err != nil {
			return nil, err
		}
	}
	return s.ReadUserByID(ctx, id)
}

func (s *userService) ChangePassword(ctx context.Context, id uint, password string) error {
	if err := CheckPassword(password); err != nil {
		s.logger.Warn("invalid password format", zap.Uint("userID", id), zap.Error(err))
		return err
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error("failed to hash password", zap.Error(err))
		return utils.ErrHashingPasswordFailed
	}

	if err := s.repo.UpdatePasswordHash(ctx, id, hashed); err != nil {
		s.logReadFailure("failed to update password", id, err)
		return err
	}
	return s.revokeSessions(ctx, id)
}

func (s *userService) DeleteUser(ctx context.Context, id uint) error {
	if err := s.revokeSessions(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logReadFailure("failed to delete user", id, err)
		return err
	}
	return nil
}

func (s *userService) revokeSessions(ctx context.Context, id uint) error {
	n, err := s.revoker.RevokeAll(ctx, id)
	if err != nil {
		s.logger.Error("failed to revoke sessions", zap.Uint("userID", id), zap.Error(err))
		return err
	}
	s.logger.Info("sessions revoked", zap.Uint("userID", id), zap.Int64("count", n))
	return nil
}

func (s *userService) logReadFailure(msg string, id uint, err error) {
	if errors.Is(err, ErrUserNotFound) {
		s.logger.Warn(msg, zap.Uint("userID", id), zap.Error(err))
		return
	}
	s.logger.Error(msg, zap.Uint("userID", id), zap.Error(err))
}

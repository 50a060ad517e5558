package authentication

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mehmetcc/calibration-auth-service/internal/apierror"
	"github.com/mehmetcc/calibration-auth-service/internal/metrics"
	"github.com/mehmetcc/calibration-auth-service/internal/user"
	"github.com/mehmetcc/calibration-auth-service/internal/utils"
)

const nameMaximumLength = 100

// RegisterInput is the validated shape of a registration request.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// TokenPair is the result of a successful refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// LoginResult is the result of a successful login.
type LoginResult struct {
	TokenPair
	User user.Profile
}

type SessionService interface {
	Register(ctx context.Context, in RegisterInput) (*user.Profile, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID uint) error
	Profile(ctx context.Context, userID uint) (*user.Profile, error)
}

type sessionService struct {
	users   user.Repository
	hasher  utils.PasswordHasher
	issuer  *TokenIssuer
	store   Store
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	// dummyDigest is verified against when the email is unknown so that the
	// response time does not reveal whether the account exists.
	dummyDigest string
}

func NewSessionService(
	users user.Repository,
	hasher utils.PasswordHasher,
	issuer *TokenIssuer,
	store Store,
	m *metrics.Metrics,
	logger *zap.Logger,
) SessionService {
	dummy, err := hasher.Hash("timing-equalizer-Pa55!")
	if err != nil {
		logger.Warn("could not precompute dummy digest", zap.Error(err))
	}
	return &sessionService{
		users:       users,
		hasher:      hasher,
		issuer:      issuer,
		store:       store,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
		dummyDigest: dummy,
	}
}

func (s *sessionService) Register(ctx context.Context, in RegisterInput) (*user.Profile, error) {
	if verr := validateRegistration(in); verr != nil {
		s.metrics.ObserveRegistration(metrics.ResultRejected)
		s.logger.Warn("registration rejected", zap.Error(verr))
		return nil, verr
	}

	email := user.NormalizeEmail(in.Email)
	_, err := s.users.ReadByEmail(ctx, email)
	switch {
	case err == nil:
		s.metrics.ObserveRegistration(metrics.ResultRejected)
		return nil, ErrConflict
	case !errors.Is(err, user.ErrUserNotFound):
		return nil, s.internal("failed to look up email", err)
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.internal("failed to hash password", err)
	}

	u := user.NewUser(email, hashed, in.Name)
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrEmailAlreadyExists) {
			s.metrics.ObserveRegistration(metrics.ResultRejected)
			return nil, ErrConflict
		}
		return nil, s.internal("failed to create user", err)
	}

	s.metrics.ObserveRegistration(metrics.ResultSuccess)
	s.logger.Info("user registered", zap.Uint("userID", u.ID))
	profile := u.Profile()
	return &profile, nil
}

func (s *sessionService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.users.ReadByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			_, _ = s.hasher.Verify(password, s.dummyDigest)
			s.metrics.ObserveLogin(metrics.ResultRejected)
			return nil, ErrInvalidCredentials
		}
		s.metrics.ObserveLogin(metrics.ResultError)
		return nil, s.internal("failed to look up user", err)
	}

	ok, err := s.hasher.Verify(password, u.PasswordHash)
	if err != nil {
		s.logger.Error("stored password digest is corrupt", zap.Uint("userID", u.ID), zap.Error(err))
	}
	if !ok {
		s.metrics.ObserveLogin(metrics.ResultRejected)
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		s.metrics.ObserveLogin(metrics.ResultRejected)
		return nil, ErrAccountInactive
	}

	pair, err := s.issuePair(ctx, u)
	if err != nil {
		s.metrics.ObserveLogin(metrics.ResultError)
		return nil, err
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, u.ID, now); err != nil {
		s.logger.Warn("failed to record last login", zap.Uint("userID", u.ID), zap.Error(err))
	} else {
		u.LastLoginAt = &now
	}

	s.metrics.ObserveLogin(metrics.ResultSuccess)
	return &LoginResult{TokenPair: *pair, User: u.Profile()}, nil
}

func (s *sessionService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	pair, err := s.refresh(ctx, refreshToken)
	switch {
	case err == nil:
		s.metrics.ObserveRefresh(metrics.ResultSuccess)
	case errors.Is(err, ErrInternal):
		s.metrics.ObserveRefresh(metrics.ResultError)
	default:
		s.metrics.ObserveRefresh(metrics.ResultRejected)
	}
	return pair, err
}

func (s *sessionService) refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	subject, err := s.issuer.DecodeRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, ErrJWTExpired) {
			// The signature verified, so the row is ours to drop.
			if rerr := s.store.Revoke(ctx, refreshToken); rerr != nil {
				return nil, s.internal("failed to revoke expired refresh token", rerr)
			}
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	rec, err := s.store.Consume(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			s.logger.Warn("refresh token not live", zap.Uint("userID", subject))
			return nil, ErrInvalidToken
		}
		return nil, s.internal("failed to consume refresh token", err)
	}
	if !s.now().Before(rec.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	if rec.UserID != subject {
		s.logger.Warn("refresh token subject mismatch", zap.Uint("subject", subject), zap.Uint("owner", rec.UserID))
		return nil, ErrInvalidToken
	}

	u, err := s.users.ReadByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, s.internal("failed to load token owner", err)
	}
	if !u.IsActive {
		return nil, ErrAccountInactive
	}

	return s.issuePair(ctx, u)
}

func (s *sessionService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.store.Revoke(ctx, refreshToken); err != nil {
		return s.internal("failed to revoke refresh token", err)
	}
	return nil
}

func (s *sessionService) LogoutAll(ctx context.Context, userID uint) error {
	n, err := s.store.RevokeAll(ctx, userID)
	if err != nil {
		return s.internal("failed to revoke sessions", err)
	}
	s.logger.Info("all sessions revoked", zap.Uint("userID", userID), zap.Int64("count", n))
	return nil
}

func (s *sessionService) Profile(ctx context.Context, userID uint) (*user.Profile, error) {
	u, err := s.users.ReadByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.internal("failed to load profile", err)
	}
	profile := u.Profile()
	return &profile, nil
}

// issuePair mints an access token and a refresh token for u and persists the
// refresh session.
func (s *sessionService) issuePair(ctx context.Context, u *user.User) (*TokenPair, error) {
	access, err := s.issuer.IssueAccess(Claims{UserID: u.ID, Email: u.Email, Role: u.Role})
	if err != nil {
		return nil, s.internal("failed to sign access token", err)
	}
	refresh, expiresAt, err := s.issuer.IssueRefresh(u.ID)
	if err != nil {
		return nil, s.internal("failed to sign refresh token", err)
	}
	if err := s.store.Put(ctx, refresh, u.ID, expiresAt); err != nil {
		return nil, s.internal("failed to store refresh token", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, RefreshExpiresAt: expiresAt}, nil
}

// internal logs the cause and returns an opaque ErrInternal.
func (s *sessionService) internal(msg string, err error) error {
	s.logger.Error(msg, zap.Error(err))
	return fmt.Errorf("%w: %s", ErrInternal, msg)
}

func validateRegistration(in RegisterInput) error {
	var fields []apierror.FieldError

	email := strings.TrimSpace(in.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		fields = append(fields, apierror.FieldError{Field: "email", Message: "must be a valid email address"})
	}
	if err := user.CheckPassword(in.Password); err != nil {
		fields = append(fields, apierror.FieldError{Field: "password", Message: err.Error()})
	}
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		fields = append(fields, apierror.FieldError{Field: "name", Message: "is required"})
	case len([]rune(name)) > nameMaximumLength:
		fields = append(fields, apierror.FieldError{Field: "name", Message: fmt.Sprintf("must be at most %d characters", nameMaximumLength)})
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

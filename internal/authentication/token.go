package authentication

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/mehmetcc/calibration-auth-service/internal/user"
)

const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

var (
	ErrJWTMalformed = errors.New("token malformed")
	ErrJWTSignature = errors.New("token signature invalid")
	ErrJWTExpired   = errors.New("token expired")

	ErrMissingSecret  = errors.New("token secret must not be empty")
	ErrSharedSecret   = errors.New("access and refresh secrets must differ")
	ErrNonPositiveTTL = errors.New("token ttl must be positive")
)

// TokenConfig carries everything the issuer needs; nothing is read from the
// environment after construction.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Claims is the fixed identity set embedded in an access token.
type Claims struct {
	UserID uint
	Email  string
	Role   user.Role
}

type accessClaims struct {
	Email string    `json:"email"`
	Role  user.Role `json:"role"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies access and refresh tokens. Verification is
// pure computation; it never touches the refresh token store.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, ErrMissingSecret
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, ErrSharedSecret
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTokenTTL
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, ErrNonPositiveTTL
	}
	return &TokenIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}, nil
}

func (t *TokenIssuer) RefreshTTL() time.Duration {
	return t.refreshTTL
}

func (t *TokenIssuer) IssueAccess(c Claims) (string, error) {
	now := t.now()
	claims := accessClaims{
		Email: c.Email,
		Role:  c.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(c.UserID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.accessSecret)
}

func (t *TokenIssuer) VerifyAccess(tokenString string) (*Claims, error) {
	var claims accessClaims
	if err := t.parse(tokenString, &claims, &claims.RegisteredClaims, t.accessSecret); err != nil {
		return nil, err
	}
	userID, err := parseSubject(claims.Subject)
	if err != nil {
		return nil, err
	}
	role, ok := user.ParseRole(string(claims.Role))
	if !ok {
		return nil, ErrJWTMalformed
	}
	return &Claims{UserID: userID, Email: claims.Email, Role: role}, nil
}

// IssueRefresh returns a signed refresh token for userID and its expiry. A
// random jti makes every token unique, even for the same user and second.
func (t *TokenIssuer) IssueRefresh(userID uint) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.refreshTTL)
	claims := refreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.refreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (t *TokenIssuer) DecodeRefresh(tokenString string) (uint, error) {
	var claims refreshClaims
	if err := t.parse(tokenString, &claims, &claims.RegisteredClaims, t.refreshSecret); err != nil {
		return 0, err
	}
	if claims.ID == "" {
		return 0, ErrJWTMalformed
	}
	return parseSubject(claims.Subject)
}

// parse checks the signature with jwt and the expiry against the issuer's
// clock, so tests can move time without touching jwt globals.
func (t *TokenIssuer) parse(tokenString string, claims jwt.Claims, registered *jwt.RegisteredClaims, secret []byte) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return ErrJWTSignature
		default:
			return ErrJWTMalformed
		}
	}
	if registered.ExpiresAt == nil {
		return ErrJWTMalformed
	}
	if !registered.VerifyExpiresAt(t.now(), true) {
		return ErrJWTExpired
	}
	return nil
}

func parseSubject(sub string) (uint, error) {
	id, err := strconv.ParseUint(sub, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrJWTMalformed
	}
	return uint(id), nil
}

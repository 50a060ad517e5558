package authentication

import (
	"errors"
	"net/http"
	"strings"

	"github.com/mehmetcc/calibration-auth-service/internal/apierror"
)

// Error kinds returned by SessionService. Handlers map them to HTTP statuses
// with StatusFor; credential and token errors never say more than their kind.
var (
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrNotFound           = errors.New("user not found")
	ErrInternal           = errors.New("internal server error")
)

// ValidationError lists every rejected input field.
type ValidationError struct {
	Fields []apierror.FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field+" "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(names, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StatusFor maps an error to its HTTP status and the message safe to expose.
// A duplicate email is reported as 400 to match the registration contract.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, ErrValidation.Error()
	case errors.Is(err, ErrConflict):
		return http.StatusBadRequest, ErrConflict.Error()
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrInvalidCredentials.Error()
	case errors.Is(err, ErrAccountInactive):
		return http.StatusUnauthorized, ErrAccountInactive.Error()
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized, ErrInvalidToken.Error()
	case errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized, ErrTokenExpired.Error()
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, ErrNotFound.Error()
	default:
		return http.StatusInternalServerError, ErrInternal.Error()
	}
}

// Package apierror renders the uniform error body shared by every endpoint:
//
//	{"error": "...", "details": [{"field": "...", "message": "..."}]}
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// FieldError describes a single rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Body is the JSON shape of every error response.
type Body struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
}

// Abort writes the error body and stops the gin handler chain.
func Abort(c *gin.Context, status int, message string, details ...FieldError) {
	c.AbortWithStatusJSON(status, Body{Error: message, Details: details})
}

// FromBinding turns a gin binding error into field details. Syntax errors in
// the JSON document yield a single "body" entry.
func FromBinding(err error) []FieldError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, FieldError{
				Field:   jsonFieldName(fe.Field()),
				Message: messageFor(fe),
			})
		}
		return details
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return []FieldError{{Field: typeErr.Field, Message: "has an invalid type"}}
	}
	return []FieldError{{Field: "body", Message: "must be a valid JSON object"}}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "is invalid"
	}
}

// jsonFieldName maps a Go field name to the lowerCamel JSON key used by the
// request types ("RefreshToken" -> "refreshToken").
func jsonFieldName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToLower(r)) + name[size:]
}

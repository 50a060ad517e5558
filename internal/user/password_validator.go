package user

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	PasswordMinimumLength = 8
	// PasswordMaximumLength is bcrypt's input limit in bytes.
	PasswordMaximumLength = 72
)

var (
	ErrPasswordNotAlphanumeric             = errors.New("password must contain both letters and digits")
	ErrPasswordDoesNotHaveSpecialCharacter = errors.New("password must contain a special character")
	ErrPasswordShouldBeNCharacters         = fmt.Errorf("password should be at least %d characters", PasswordMinimumLength)
	ErrPasswordTooLong                     = fmt.Errorf("password should be at most %d bytes", PasswordMaximumLength)
)

const specialCharacters = "!@#$%^&*()-_=+[]{}|;:'\",.<>?/`~\\"

func CheckPassword(password string) error {
	if len(password) < PasswordMinimumLength {
		return ErrPasswordShouldBeNCharacters
	}
	if len(password) > PasswordMaximumLength {
		return ErrPasswordTooLong
	}
	if !checkAlphanumeric(password) {
		return ErrPasswordNotAlphanumeric
	}
	if !strings.ContainsAny(password, specialCharacters) {
		return ErrPasswordDoesNotHaveSpecialCharacter
	}
	return nil
}

func checkAlphanumeric(password string) bool {
	hasLetter := false
	hasDigit := false
	for _, c := range password {
		if unicode.IsLetter(c) {
			hasLetter = true
		}
		if unicode.IsDigit(c) {
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

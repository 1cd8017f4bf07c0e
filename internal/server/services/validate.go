package services

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/cryptox"
)

const minPasswordLen = 8

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,80}$`)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrValidation, fmt.Sprintf(format, args...))
}

func validateEmail(email string) error {
	if email == "" {
		return validationError("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return validationError("invalid email address")
	}
	return nil
}

func validateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return validationError("username must be 3-80 letters, digits, '.', '_' or '-'")
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLen {
		return validationError("password must be at least %d characters", minPasswordLen)
	}
	if len(password) > cryptox.MaxPasswordBytes {
		return validationError("password must be at most %d bytes", cryptox.MaxPasswordBytes)
	}
	return nil
}

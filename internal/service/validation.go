package service

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"

	apperrors "github.com/yourusername/accounts-api/internal/pkg/errors"
)

const (
	maxEmailLength    = 100
	minPasswordLength = 8
	maxPasswordLength = 128
	codeLength        = 6
)

// FieldErrors carries one message per offending field; the first failed check
// per field wins. It wraps apperrors.ErrValidation so callers can classify it
// with errors.Is.
type FieldErrors struct {
	Fields map[string]string
}

func (e *FieldErrors) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%v: %s", apperrors.ErrValidation, strings.Join(parts, "; "))
}

func (e *FieldErrors) Unwrap() error {
	return apperrors.ErrValidation
}

func (e *FieldErrors) add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

func (e *FieldErrors) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// normalizeEmail trims whitespace and lowercases the address. All lookups and
// persisted emails go through this, making the email effectively
// case-insensitive.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkEmail(errs *FieldErrors, email string) {
	if email == "" {
		errs.add("email", "email is required")
		return
	}
	if len(email) > maxEmailLength {
		errs.add("email", fmt.Sprintf("email must be at most %d characters", maxEmailLength))
		return
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		errs.add("email", "email is not a valid address")
	}
}

func checkPassword(errs *FieldErrors, password string) {
	if password == "" {
		errs.add("password", "password is required")
		return
	}
	if len(password) < minPasswordLength {
		errs.add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
		return
	}
	if len(password) > maxPasswordLength {
		errs.add("password", fmt.Sprintf("password must be at most %d characters", maxPasswordLength))
	}
}

func checkCodeFormat(errs *FieldErrors, code string) {
	if code == "" {
		errs.add("code", "code is required")
		return
	}
	if len(code) != codeLength {
		errs.add("code", fmt.Sprintf("code must be exactly %d digits", codeLength))
		return
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			errs.add("code", "code must contain only digits")
			return
		}
	}
}

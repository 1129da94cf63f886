package impl

import (
	"errors"
	"regexp"
	"strings"

	"uniauth/internal/domain"

	"github.com/samber/oops"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

const minPasswordLength = 8

// infra wraps an unexpected store or infrastructure failure. Domain errors
// pass through untouched.
func infra(component, operation string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		domain.ErrValidation, domain.ErrNotFound, domain.ErrExpired,
		domain.ErrRateLimited, domain.ErrConflict, domain.ErrAuthFailed,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return oops.In(component).
		Code("INFRA_FAILURE").
		With("operation", operation).
		Wrap(err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func validatePassword(pw string) error {
	if pw == "" {
		return domain.ErrEmptyPassword
	}
	if len(pw) < minPasswordLength {
		return domain.ErrPasswordLength
	}
	return nil
}

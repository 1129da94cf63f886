package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Specific errors wrap exactly one of these so callers can
// branch with errors.Is on the kind alone.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrExpired     = errors.New("expired")
	ErrRateLimited = errors.New("rate limited")
	ErrConflict    = errors.New("conflict")
	ErrAuthFailed  = errors.New("authentication failed")
)

var (
	ErrInvalidAddress   = fmt.Errorf("%w: invalid wallet address", ErrValidation)
	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", ErrAuthFailed)
	ErrInvalidEmail     = fmt.Errorf("%w: invalid email", ErrValidation)
	ErrInvalidPurpose   = fmt.Errorf("%w: invalid code purpose", ErrValidation)
	ErrEmptyPassword    = fmt.Errorf("%w: empty password", ErrValidation)
	ErrPasswordLength   = fmt.Errorf("%w: password too short", ErrValidation)

	ErrUserNotFound        = fmt.Errorf("%w: user", ErrNotFound)
	ErrLoginMethodNotFound = fmt.Errorf("%w: login method", ErrNotFound)

	ErrWalletAlreadyBound   = fmt.Errorf("%w: wallet already bound to an account", ErrConflict)
	ErrUserAlreadyHasWallet = fmt.Errorf("%w: user already has a wallet", ErrConflict)
	ErrUsernameTaken        = fmt.Errorf("%w: username taken", ErrConflict)
	ErrEmailTaken           = fmt.Errorf("%w: email taken", ErrConflict)

	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrAuthFailed)
	ErrUserDisabled       = fmt.Errorf("%w: user disabled", ErrAuthFailed)
	ErrInvalidToken       = fmt.Errorf("%w: invalid token", ErrAuthFailed)

	ErrDailyLimitReached = fmt.Errorf("%w: daily send limit reached", ErrRateLimited)
)

// CooldownError reports that a resend was attempted too soon.
type CooldownError struct {
	RetryAfterSeconds int64
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("resend available in %d seconds", e.RetryAfterSeconds)
}

func (e *CooldownError) Unwrap() error { return ErrRateLimited }

// VerificationError carries a failed code check out of flows that turn the
// result into an error, such as password reset.
type VerificationError struct {
	Status            VerificationStatus
	RemainingAttempts int
}

func (e *VerificationError) Error() string {
	switch e.Status {
	case VerificationNotFound:
		return "verification code not found or already used"
	case VerificationExpired:
		return "verification code expired"
	case VerificationMaxRetriesExceeded:
		return "too many failed attempts, request a new code"
	case VerificationInvalid:
		return fmt.Sprintf("invalid verification code, %d attempts remaining", e.RemainingAttempts)
	}
	return "verification failed"
}

func (e *VerificationError) Unwrap() error {
	switch e.Status {
	case VerificationNotFound:
		return ErrNotFound
	case VerificationExpired:
		return ErrExpired
	case VerificationMaxRetriesExceeded:
		return ErrRateLimited
	}
	return ErrAuthFailed
}

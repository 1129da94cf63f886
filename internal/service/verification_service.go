package service

import (
	"context"
	"time"

	"uniauth/internal/domain"
)

// VerifyResult is the typed outcome of a code check. Metadata is only set on
// success.
type VerifyResult struct {
	Status            domain.VerificationStatus
	RemainingAttempts int
	Metadata          map[string]any
}

func (r VerifyResult) Success() bool { return r.Status == domain.VerificationSuccess }

// Err converts a failed result into a *domain.VerificationError.
func (r VerifyResult) Err() error {
	if r.Success() {
		return nil
	}
	return &domain.VerificationError{Status: r.Status, RemainingAttempts: r.RemainingAttempts}
}

type VerificationService interface {
	Send(ctx context.Context, email string, purpose domain.CodePurpose, metadata map[string]any) error
	CanSend(ctx context.Context, email string) (bool, error)
	ResendCooldown(ctx context.Context, email string) (time.Duration, error)
	Verify(ctx context.Context, email, code string, purpose domain.CodePurpose) (VerifyResult, error)
	MarkUsed(ctx context.Context, email string, purpose domain.CodePurpose) error
	HasPending(ctx context.Context, email string, purpose domain.CodePurpose) (bool, error)
	CleanupExpired(ctx context.Context) (int64, error)
}

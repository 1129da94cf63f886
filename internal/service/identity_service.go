package service

import (
	"context"

	"uniauth/internal/domain"
)

type IdentityService interface {
	// FindOrCreateByWallet reports created=true when a new user was made.
	FindOrCreateByWallet(ctx context.Context, address string) (user *domain.User, created bool, err error)
	BindWallet(ctx context.Context, userID domain.UserID, address string) error
	IsWalletBound(ctx context.Context, address string) (bool, error)
	CompleteEmailRegistration(ctx context.Context, email string, metadata map[string]any) (*domain.User, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	LoginWithPassword(ctx context.Context, username, password string) (*domain.User, error)
	GetUser(ctx context.Context, id domain.UserID) (*domain.User, error)
	// DeleteUser removes the user and its login methods, freeing the
	// username, email and any bound wallet.
	DeleteUser(ctx context.Context, id domain.UserID) error
}

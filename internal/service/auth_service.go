package service

import (
	"context"

	"uniauth/internal/dto"
)

// AuthService composes the identity, code and wallet services into the
// request flows exposed over HTTP.
type AuthService interface {
	SendEmailCode(ctx context.Context, r dto.SendCodeRequest) (*dto.SendCodeResponse, error)
	VerifyEmail(ctx context.Context, r dto.VerifyEmailRequest) (*dto.LoginResponse, error)
	EmailStatus(ctx context.Context, email string) (*dto.EmailStatusResponse, error)
	ForgotPassword(ctx context.Context, r dto.ForgotPasswordRequest) (*dto.SendCodeResponse, error)
	ResetPassword(ctx context.Context, r dto.ResetPasswordRequest) error
	Login(ctx context.Context, r dto.LoginRequest) (*dto.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*dto.LoginResponse, error)
	WalletNonce(ctx context.Context, address string) (*dto.Web3NonceResponse, error)
	WalletLogin(ctx context.Context, r dto.Web3LoginRequest) (*dto.Web3AuthResponse, error)
	BindWallet(ctx context.Context, accessToken string, r dto.Web3LoginRequest) error
	WalletStatus(ctx context.Context, address string) (*dto.WalletStatusResponse, error)
	Me(ctx context.Context, accessToken string) (*dto.UserInfo, error)
	DeleteAccount(ctx context.Context, accessToken string) error
}

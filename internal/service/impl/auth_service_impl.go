package impl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"uniauth/internal/domain"
	"uniauth/internal/dto"
	"uniauth/internal/ethsig"
	"uniauth/internal/observability/metrics"
	"uniauth/internal/observability/middleware"
	"uniauth/internal/service"

	"github.com/google/uuid"
)

// AuthConfig carries the values echoed back to clients in send responses.
type AuthConfig struct {
	CodeExpiry     time.Duration
	ResendCooldown time.Duration
}

type AuthServiceImpl struct {
	Identity     service.IdentityService
	Verification service.VerificationService
	Wallet       service.WalletService
	TService     service.TokenService
	Passwords    service.PasswordService
	cfg          AuthConfig
	rt           runtime
}

func NewAuthServiceImpl(
	identity service.IdentityService,
	verification service.VerificationService,
	wallet service.WalletService,
	tokens service.TokenService,
	passwords service.PasswordService,
	cfg AuthConfig,
	opts ...Option,
) *AuthServiceImpl {
	if cfg.CodeExpiry <= 0 {
		cfg.CodeExpiry = DefaultVerificationConfig().Expiry
	}
	if cfg.ResendCooldown <= 0 {
		cfg.ResendCooldown = DefaultVerificationConfig().ResendCooldown
	}
	return &AuthServiceImpl{
		Identity:     identity,
		Verification: verification,
		Wallet:       wallet,
		TService:     tokens,
		Passwords:    passwords,
		cfg:          cfg,
		rt:           newRuntime(opts),
	}
}

// ====== Email ======

func (a *AuthServiceImpl) SendEmailCode(ctx context.Context, r dto.SendCodeRequest) (*dto.SendCodeResponse, error) {
	email := normalizeEmail(r.Email)
	if !validEmail(email) {
		return nil, domain.ErrInvalidEmail
	}
	purpose := domain.PurposeRegistration
	if p := strings.TrimSpace(r.Purpose); p != "" {
		purpose = domain.CodePurpose(strings.ToUpper(p))
	}
	if !purpose.Valid() {
		return nil, domain.ErrInvalidPurpose
	}

	// 1) daily cap, then cooldown
	if err := a.checkSendAllowed(ctx, email); err != nil {
		return nil, err
	}

	// 2) registration carries the pending password hash through the code
	metadata := map[string]any{}
	if purpose == domain.PurposeRegistration {
		if r.Password != "" {
			if err := validatePassword(r.Password); err != nil {
				return nil, err
			}
			hash, err := a.Passwords.Hash(r.Password)
			if err != nil {
				return nil, err
			}
			metadata["password"] = hash
		}
		if dn := strings.TrimSpace(r.DisplayName); dn != "" {
			metadata["displayName"] = dn
		}
	}

	if err := a.Verification.Send(ctx, email, purpose, metadata); err != nil {
		return nil, err
	}
	return &dto.SendCodeResponse{
		Success:     true,
		Message:     "Verification code sent successfully",
		ExpiresIn:   int64(a.cfg.CodeExpiry.Seconds()),
		ResendAfter: int64(a.cfg.ResendCooldown.Seconds()),
	}, nil
}

func (a *AuthServiceImpl) checkSendAllowed(ctx context.Context, email string) error {
	ok, err := a.Verification.CanSend(ctx, email)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrDailyLimitReached
	}
	wait, err := a.Verification.ResendCooldown(ctx, email)
	if err != nil {
		return err
	}
	if wait > 0 {
		return &domain.CooldownError{RetryAfterSeconds: ceilSeconds(wait)}
	}
	return nil
}

// VerifyEmail consumes a REGISTRATION code and signs the user in, creating
// the account or attaching the email to an existing one.
func (a *AuthServiceImpl) VerifyEmail(ctx context.Context, r dto.VerifyEmailRequest) (*dto.LoginResponse, error) {
	email := normalizeEmail(r.Email)
	code := strings.TrimSpace(r.VerificationCode)
	if email == "" || code == "" {
		return nil, fmt.Errorf("%w: email and verification code are required", domain.ErrValidation)
	}

	res, err := a.Verification.Verify(ctx, email, code, domain.PurposeRegistration)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, res.Err()
	}

	user, err := a.Identity.CompleteEmailRegistration(ctx, email, res.Metadata)
	if err != nil {
		return nil, err
	}
	if err := a.Verification.MarkUsed(ctx, email, domain.PurposeRegistration); err != nil {
		return nil, err
	}
	return a.loginResponse(ctx, user, "Email verified successfully")
}

func (a *AuthServiceImpl) EmailStatus(ctx context.Context, email string) (*dto.EmailStatusResponse, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, domain.ErrInvalidEmail
	}
	pending, err := a.Verification.HasPending(ctx, email, domain.PurposeRegistration)
	if err != nil {
		return nil, err
	}
	return &dto.EmailStatusResponse{Email: email, HasPendingVerification: pending}, nil
}

// ForgotPassword answers the same way whether or not the email has an
// account, so the endpoint cannot be used to probe for users.
func (a *AuthServiceImpl) ForgotPassword(ctx context.Context, r dto.ForgotPasswordRequest) (*dto.SendCodeResponse, error) {
	email := normalizeEmail(r.Email)
	err := a.Identity.RequestPasswordReset(ctx, email)
	switch {
	case errors.Is(err, domain.ErrLoginMethodNotFound):
		a.rt.logger.Info("password reset for unknown email", "email", email,
			"request_id", middleware.RequestIDFromContext(ctx))
	case err != nil:
		return nil, err
	}
	return &dto.SendCodeResponse{
		Success:     true,
		Message:     "If the email is registered, a reset code has been sent",
		ExpiresIn:   int64(a.cfg.CodeExpiry.Seconds()),
		ResendAfter: int64(a.cfg.ResendCooldown.Seconds()),
	}, nil
}

func (a *AuthServiceImpl) ResetPassword(ctx context.Context, r dto.ResetPasswordRequest) error {
	if strings.TrimSpace(r.Email) == "" || strings.TrimSpace(r.VerificationCode) == "" {
		return fmt.Errorf("%w: email and verification code are required", domain.ErrValidation)
	}
	return a.Identity.ResetPassword(ctx, r.Email, strings.TrimSpace(r.VerificationCode), r.NewPassword)
}

// ====== Password ======

func (a *AuthServiceImpl) Login(ctx context.Context, r dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := a.Identity.LoginWithPassword(ctx, r.Username, r.Password)
	if err != nil {
		return nil, err
	}
	return a.loginResponse(ctx, user, "Login successful")
}

func (a *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (*dto.LoginResponse, error) {
	claims, err := a.TService.ParseRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := a.userFromClaim(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return a.loginResponse(ctx, user, "Token refreshed")
}

func (a *AuthServiceImpl) Me(ctx context.Context, accessToken string) (*dto.UserInfo, error) {
	claims, err := a.TService.ParseAccess(accessToken)
	if err != nil {
		return nil, err
	}
	user, err := a.userFromClaim(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return userInfo(user), nil
}

func (a *AuthServiceImpl) DeleteAccount(ctx context.Context, accessToken string) error {
	claims, err := a.TService.ParseAccess(accessToken)
	if err != nil {
		return err
	}
	user, err := a.userFromClaim(ctx, claims.UserID)
	if err != nil {
		return err
	}
	return a.Identity.DeleteUser(ctx, user.ID)
}

func (a *AuthServiceImpl) userFromClaim(ctx context.Context, raw string) (*domain.User, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	user, err := a.Identity.GetUser(ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !user.Enabled {
		return nil, domain.ErrUserDisabled
	}
	return user, nil
}

// ====== Wallet ======

func (a *AuthServiceImpl) WalletNonce(ctx context.Context, address string) (*dto.Web3NonceResponse, error) {
	return a.Wallet.IssueNonce(ctx, address)
}

func (a *AuthServiceImpl) WalletLogin(ctx context.Context, r dto.Web3LoginRequest) (out *dto.Web3AuthResponse, err error) {
	result := "success"
	defer func() {
		if err != nil {
			result = "failure"
		}
		metrics.AuthLoginsTotal.WithLabelValues("web3", result).Inc()
	}()

	if err := a.verifyWallet(ctx, r); err != nil {
		return nil, err
	}
	user, created, err := a.Identity.FindOrCreateByWallet(ctx, r.WalletAddress)
	if err != nil {
		return nil, err
	}
	tokens, err := a.TService.Issue(ctx, user)
	if err != nil {
		return nil, err
	}
	return &dto.Web3AuthResponse{
		AccessToken:   tokens.AccessToken,
		RefreshToken:  tokens.RefreshToken,
		TokenType:     dto.TokenTypeBearer,
		ExpiresIn:     tokens.AccessTokenExpiresIn,
		WalletAddress: ethsig.NormalizeAddress(r.WalletAddress),
		UserID:        user.ID.String(),
		IsNewUser:     created,
	}, nil
}

// BindWallet attaches a wallet to the account behind accessToken after the
// wallet proves control with a signed challenge.
func (a *AuthServiceImpl) BindWallet(ctx context.Context, accessToken string, r dto.Web3LoginRequest) error {
	claims, err := a.TService.ParseAccess(accessToken)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return domain.ErrInvalidToken
	}
	if err := a.verifyWallet(ctx, r); err != nil {
		return err
	}
	return a.Identity.BindWallet(ctx, userID, r.WalletAddress)
}

func (a *AuthServiceImpl) verifyWallet(ctx context.Context, r dto.Web3LoginRequest) error {
	if !ethsig.IsValidAddress(strings.TrimSpace(r.WalletAddress)) {
		return domain.ErrInvalidAddress
	}
	ok, err := a.Wallet.Verify(ctx, r.WalletAddress, r.Message, r.Signature, r.Nonce)
	if err != nil {
		return err
	}
	if !ok {
		a.rt.logger.Warn("wallet signature rejected",
			"wallet", ethsig.NormalizeAddress(r.WalletAddress),
			"request_id", middleware.RequestIDFromContext(ctx),
			"trace_id", middleware.TraceIDFromContext(ctx))
		return domain.ErrInvalidSignature
	}
	return nil
}

func (a *AuthServiceImpl) WalletStatus(ctx context.Context, address string) (*dto.WalletStatusResponse, error) {
	bound, err := a.Identity.IsWalletBound(ctx, address)
	if err != nil {
		return nil, err
	}
	return &dto.WalletStatusResponse{WalletAddress: ethsig.NormalizeAddress(address), IsBound: bound}, nil
}

// ====== Helpers ======

func (a *AuthServiceImpl) loginResponse(ctx context.Context, user *domain.User, msg string) (*dto.LoginResponse, error) {
	tokens, err := a.TService.Issue(ctx, user)
	if err != nil {
		return nil, err
	}
	return &dto.LoginResponse{
		Success:       true,
		Message:       msg,
		User:          userInfo(user),
		TokenResponse: *tokens,
	}, nil
}

func userInfo(u *domain.User) *dto.UserInfo {
	return &dto.UserInfo{
		ID:          u.ID.String(),
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
	}
}

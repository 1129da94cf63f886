package impl

import (
	"context"
	"errors"
	"strings"
	"time"

	"uniauth/internal/domain"
	"uniauth/internal/ethsig"
	"uniauth/internal/observability/metrics"
	"uniauth/internal/service"
	"uniauth/internal/store"

	"github.com/google/uuid"
)

const web3DisplayName = "Web3 User"

type IdentityServiceImpl struct {
	store        *store.Store
	verification service.VerificationService
	passwords    service.PasswordService
	rt           runtime
}

func NewIdentityService(st *store.Store, verification service.VerificationService, passwords service.PasswordService, opts ...Option) *IdentityServiceImpl {
	return &IdentityServiceImpl{
		store:        st,
		verification: verification,
		passwords:    passwords,
		rt:           newRuntime(opts),
	}
}

// FindOrCreateByWallet returns the owner of the wallet, creating a user with
// a primary WEB3 method when the address is unknown.
func (s *IdentityServiceImpl) FindOrCreateByWallet(ctx context.Context, address string) (*domain.User, bool, error) {
	if !ethsig.IsValidAddress(strings.TrimSpace(address)) {
		return nil, false, domain.ErrInvalidAddress
	}
	addr := ethsig.NormalizeAddress(address)

	user, err := s.walletOwner(ctx, addr)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, domain.ErrLoginMethodNotFound) {
		return nil, false, err
	}

	user, err = s.createWalletUser(ctx, addr)
	if store.IsUniqueViolation(err) {
		// lost a race against a concurrent first login for the same wallet
		user, err = s.walletOwner(ctx, addr)
		return user, false, err
	}
	if err != nil {
		return nil, false, err
	}
	s.rt.logger.Info("created user from wallet", "user_id", user.ID, "wallet", addr)
	return user, true, nil
}

func (s *IdentityServiceImpl) walletOwner(ctx context.Context, addr string) (*domain.User, error) {
	m, err := s.store.LoginMethods().GetByProvider(ctx, domain.ProviderWeb3, addr)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, domain.ErrLoginMethodNotFound
	}
	if err != nil {
		return nil, infra("identity", "get_wallet_method", err)
	}
	user, err := s.store.Users().GetByID(ctx, m.UserID)
	if err != nil {
		return nil, s.userErr("get_user", err)
	}
	if !user.Enabled {
		return nil, domain.ErrUserDisabled
	}

	now := s.rt.now()
	if err := s.store.Users().TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, infra("identity", "touch_last_login", err)
	}
	if err := s.store.LoginMethods().TouchLastUsed(ctx, m.ID, now); err != nil {
		return nil, infra("identity", "touch_last_used", err)
	}
	user.LastLoginAt = &now
	return user, nil
}

func (s *IdentityServiceImpl) createWalletUser(ctx context.Context, addr string) (*domain.User, error) {
	now := s.rt.now()
	user := &domain.User{
		ID:            uuid.New(),
		Username:      addr,
		Email:         addr + "@web3.local",
		DisplayName:   web3DisplayName,
		Enabled:       true,
		EmailVerified: false,
		Authorities:   []string{domain.RoleUser},
		CreatedAt:     now,
		UpdatedAt:     now,
		LastLoginAt:   &now,
	}
	method := domain.LoginMethod{
		ID:         uuid.New(),
		UserID:     user.ID,
		Credential: domain.WalletCredential{Address: addr},
		IsPrimary:  true,
		IsVerified: true,
		LinkedAt:   now,
		LastUsedAt: &now,
	}
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		return tx.LoginMethods().Create(ctx, &method)
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, err
		}
		return nil, infra("identity", "create_wallet_user", err)
	}
	user.LoginMethods = []domain.LoginMethod{method}
	return user, nil
}

// BindWallet links address to userID as a secondary, verified method.
func (s *IdentityServiceImpl) BindWallet(ctx context.Context, userID domain.UserID, address string) error {
	if !ethsig.IsValidAddress(strings.TrimSpace(address)) {
		return domain.ErrInvalidAddress
	}
	addr := ethsig.NormalizeAddress(address)
	now := s.rt.now()

	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		if _, err := tx.Users().GetByID(ctx, userID); err != nil {
			return s.userErr("get_user", err)
		}
		// 1) the address must be free system-wide, including on this user
		bound, err := tx.LoginMethods().ExistsByProvider(ctx, domain.ProviderWeb3, addr)
		if err != nil {
			return infra("identity", "exists_wallet", err)
		}
		if bound {
			return domain.ErrWalletAlreadyBound
		}
		// 2) one wallet per account
		has, err := tx.LoginMethods().UserHasProvider(ctx, userID, domain.ProviderWeb3)
		if err != nil {
			return infra("identity", "user_has_wallet", err)
		}
		if has {
			return domain.ErrUserAlreadyHasWallet
		}
		return tx.LoginMethods().Create(ctx, &domain.LoginMethod{
			UserID:     userID,
			Credential: domain.WalletCredential{Address: addr},
			IsPrimary:  false,
			IsVerified: true,
			LinkedAt:   now,
		})
	})
	if store.IsUniqueViolation(err) {
		// a concurrent bind won; report which invariant it took
		bound, lookupErr := s.store.LoginMethods().ExistsByProvider(ctx, domain.ProviderWeb3, addr)
		if lookupErr != nil {
			return infra("identity", "exists_wallet", lookupErr)
		}
		if bound {
			return domain.ErrWalletAlreadyBound
		}
		return domain.ErrUserAlreadyHasWallet
	}
	if err != nil {
		return infra("identity", "bind_wallet", err)
	}
	s.rt.logger.Info("bound wallet", "user_id", userID, "wallet", addr)
	return nil
}

func (s *IdentityServiceImpl) IsWalletBound(ctx context.Context, address string) (bool, error) {
	if !ethsig.IsValidAddress(strings.TrimSpace(address)) {
		return false, domain.ErrInvalidAddress
	}
	ok, err := s.store.LoginMethods().ExistsByProvider(ctx, domain.ProviderWeb3, ethsig.NormalizeAddress(address))
	if err != nil {
		return false, infra("identity", "exists_wallet", err)
	}
	return ok, nil
}

// CompleteEmailRegistration runs after a REGISTRATION code was verified.
// An existing account with this email gets a LOCAL method; otherwise a new
// user is created with the password hash and display name from metadata.
func (s *IdentityServiceImpl) CompleteEmailRegistration(ctx context.Context, email string, metadata map[string]any) (*domain.User, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, domain.ErrInvalidEmail
	}

	existing, err := s.store.Users().GetByEmail(ctx, email)
	switch {
	case err == nil:
		return s.bindEmailMethod(ctx, existing, email)
	case !errors.Is(err, store.ErrRecordNotFound):
		return nil, infra("identity", "get_user_by_email", err)
	}

	displayName, _ := metadata["displayName"].(string)
	if strings.TrimSpace(displayName) == "" {
		displayName, _, _ = strings.Cut(email, "@")
	}
	passwordHash, _ := metadata["password"].(string)

	now := s.rt.now()
	user := &domain.User{
		ID:            uuid.New(),
		Username:      email,
		Email:         email,
		DisplayName:   displayName,
		Enabled:       true,
		EmailVerified: true,
		Authorities:   []string{domain.RoleUser},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	method := domain.LoginMethod{
		ID:         uuid.New(),
		UserID:     user.ID,
		Credential: domain.LocalCredential{Username: email, PasswordHash: passwordHash},
		IsPrimary:  true,
		IsVerified: true,
		LinkedAt:   now,
	}
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		return tx.LoginMethods().Create(ctx, &method)
	})
	if store.IsUniqueViolation(err) {
		return nil, domain.ErrEmailTaken
	}
	if err != nil {
		return nil, infra("identity", "create_email_user", err)
	}
	user.LoginMethods = []domain.LoginMethod{method}
	s.rt.logger.Info("created user with email login", "user_id", user.ID, "email", email)
	return user, nil
}

func (s *IdentityServiceImpl) bindEmailMethod(ctx context.Context, user *domain.User, email string) (*domain.User, error) {
	methods, err := s.store.LoginMethods().ListByUser(ctx, user.ID)
	if err != nil {
		return nil, infra("identity", "list_methods", err)
	}
	user.LoginMethods = methods
	for _, m := range methods {
		if c, ok := m.Credential.(domain.LocalCredential); ok && strings.EqualFold(c.Username, email) {
			return user, nil
		}
	}

	taken, err := s.store.LoginMethods().ExistsByLocalUsername(ctx, email)
	if err != nil {
		return nil, infra("identity", "exists_local_username", err)
	}
	if taken {
		s.rt.logger.Warn("email already registered as username by another user", "user_id", user.ID, "email", email)
		return user, nil
	}

	method := domain.LoginMethod{
		ID:         uuid.New(),
		UserID:     user.ID,
		Credential: domain.LocalCredential{Username: email},
		IsPrimary:  false,
		IsVerified: true,
		LinkedAt:   s.rt.now(),
	}
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.LoginMethods().Create(ctx, &method); err != nil {
			return err
		}
		return tx.Users().SetEmailVerified(ctx, user.ID)
	})
	if store.IsUniqueViolation(err) {
		s.rt.logger.Warn("email login method raced with another bind", "user_id", user.ID, "email", email)
		return user, nil
	}
	if err != nil {
		return nil, infra("identity", "bind_email", err)
	}
	user.EmailVerified = true
	user.LoginMethods = append(user.LoginMethods, method)
	s.rt.logger.Info("bound email login method", "user_id", user.ID, "email", email)
	return user, nil
}

// RequestPasswordReset sends a PASSWORD_RESET code to an email that has a
// LOCAL login method.
func (s *IdentityServiceImpl) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return domain.ErrInvalidEmail
	}
	if _, err := s.localMethod(ctx, email); err != nil {
		return err
	}

	ok, err := s.verification.CanSend(ctx, email)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrDailyLimitReached
	}
	wait, err := s.verification.ResendCooldown(ctx, email)
	if err != nil {
		return err
	}
	if wait > 0 {
		return &domain.CooldownError{RetryAfterSeconds: ceilSeconds(wait)}
	}
	return s.verification.Send(ctx, email, domain.PurposePasswordReset, nil)
}

// ResetPassword replaces the password of the LOCAL method for email once
// code checks out. Failed checks return a *domain.VerificationError.
func (s *IdentityServiceImpl) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = normalizeEmail(email)
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	method, err := s.localMethod(ctx, email)
	if err != nil {
		return err
	}

	res, err := s.verification.Verify(ctx, email, code, domain.PurposePasswordReset)
	if err != nil {
		return err
	}
	if !res.Success() {
		return res.Err()
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.LoginMethods().UpdatePasswordHash(ctx, method.ID, hash); err != nil {
		return infra("identity", "update_password", err)
	}
	s.rt.logger.Info("password reset", "user_id", method.UserID, "email", email)
	return nil
}

func (s *IdentityServiceImpl) localMethod(ctx context.Context, username string) (*domain.LoginMethod, error) {
	m, err := s.store.LoginMethods().GetByLocalUsername(ctx, username)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, domain.ErrLoginMethodNotFound
	}
	if err != nil {
		return nil, infra("identity", "get_local_method", err)
	}
	return m, nil
}

// LoginWithPassword authenticates a LOCAL method. Unknown usernames and wrong
// passwords are indistinguishable to the caller.
func (s *IdentityServiceImpl) LoginWithPassword(ctx context.Context, username, password string) (user *domain.User, err error) {
	result := "success"
	defer func() {
		if err != nil {
			result = "failure"
		}
		metrics.AuthLoginsTotal.WithLabelValues("password", result).Inc()
	}()

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	// 1) load the LOCAL method; registration stores emails lowercased
	method, err := s.localMethod(ctx, username)
	if errors.Is(err, domain.ErrLoginMethodNotFound) && username != strings.ToLower(username) {
		method, err = s.localMethod(ctx, strings.ToLower(username))
	}
	if errors.Is(err, domain.ErrLoginMethodNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	cred, _ := method.Credential.(domain.LocalCredential)
	if cred.PasswordHash == "" {
		return nil, domain.ErrInvalidCredentials
	}

	// 2) verify password (and decide if we should rehash)
	ok, rehashNeeded := s.passwords.Verify(password, cred.PasswordHash)
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}

	user, err = s.store.Users().GetByID(ctx, method.UserID)
	if err != nil {
		return nil, s.userErr("get_user", err)
	}
	if !user.Enabled {
		return nil, domain.ErrUserDisabled
	}

	// 3) transparent rehash on policy upgrade
	if rehashNeeded {
		if hash, err := s.passwords.Hash(password); err == nil {
			if err := s.store.LoginMethods().UpdatePasswordHash(ctx, method.ID, hash); err != nil {
				s.rt.logger.Warn("password rehash failed", "user_id", user.ID, "err", err)
			}
		}
	}

	now := s.rt.now()
	if err := s.store.Users().TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, infra("identity", "touch_last_login", err)
	}
	if err := s.store.LoginMethods().TouchLastUsed(ctx, method.ID, now); err != nil {
		return nil, infra("identity", "touch_last_used", err)
	}
	user.LastLoginAt = &now
	return user, nil
}

func (s *IdentityServiceImpl) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	user, err := s.store.Users().GetWithLoginMethods(ctx, id)
	if err != nil {
		return nil, s.userErr("get_user", err)
	}
	return user, nil
}

func (s *IdentityServiceImpl) DeleteUser(ctx context.Context, id domain.UserID) error {
	deleted, err := s.store.DeleteUser(ctx, id)
	if err != nil {
		return s.userErr("delete_user", err)
	}
	s.rt.logger.Info("deleted user", "user_id", id, "login_methods", deleted["loginMethods"])
	return nil
}

func (s *IdentityServiceImpl) userErr(op string, err error) error {
	if errors.Is(err, store.ErrRecordNotFound) {
		return domain.ErrUserNotFound
	}
	return infra("identity", op, err)
}

func ceilSeconds(d time.Duration) int64 {
	return int64((d + time.Second - 1) / time.Second)
}

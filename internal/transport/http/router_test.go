package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"uniauth/internal/domain"
	"uniauth/internal/dto"
	"uniauth/internal/service"
	"uniauth/internal/service/impl"
	"uniauth/internal/testutil"
	transport "uniauth/internal/transport/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureKey = "4c0883a69102937d6231471b5dbb6204fe51296170827922b7a56c91b8b56d09"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// failingAuth answers Login and WalletStatus with a fixed error. Other
// methods are not used by the tests that construct it.
type failingAuth struct {
	service.AuthService
	err error
}

func (f failingAuth) Login(context.Context, dto.LoginRequest) (*dto.LoginResponse, error) {
	return nil, f.err
}

func (f failingAuth) WalletStatus(context.Context, string) (*dto.WalletStatusResponse, error) {
	return nil, f.err
}

func do(t *testing.T, h http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{domain.ErrUserDisabled, http.StatusForbidden, "ACCOUNT_DISABLED"},
		{domain.ErrInvalidSignature, http.StatusUnauthorized, "INVALID_SIGNATURE"},
		{domain.ErrInvalidAddress, http.StatusBadRequest, "INVALID_ADDRESS"},
		{domain.ErrWalletAlreadyBound, http.StatusConflict, "BINDING_FAILED"},
		{domain.ErrUserAlreadyHasWallet, http.StatusConflict, "BINDING_FAILED"},
		{domain.ErrUsernameTaken, http.StatusConflict, "CONFLICT"},
		{domain.ErrPasswordLength, http.StatusBadRequest, "VALIDATION_ERROR"},
		{domain.ErrUserNotFound, http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, c := range cases {
		h := transport.NewRouter(failingAuth{err: c.err}, transport.RouterConfig{}, quietLogger())
		rec := do(t, h, http.MethodPost, "/api/auth/login", dto.LoginRequest{Username: "u", Password: "p"})
		assert.Equal(t, c.status, rec.Code, c.err.Error())
		resp := decode[dto.ErrorResponse](t, rec)
		assert.Equal(t, c.code, resp.ErrorCode, c.err.Error())
		assert.Equal(t, c.status, resp.Status)
	}
}

func TestInternalErrorsDoNotLeakDetail(t *testing.T) {
	h := transport.NewRouter(failingAuth{err: errors.New("pq: password authentication failed for user app")},
		transport.RouterConfig{}, quietLogger())
	rec := do(t, h, http.MethodGet, "/api/auth/web3/status/0xabc", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCooldownAndVerificationErrors(t *testing.T) {
	h := transport.NewRouter(failingAuth{err: &domain.CooldownError{RetryAfterSeconds: 42}}, transport.RouterConfig{}, quietLogger())
	rec := do(t, h, http.MethodPost, "/api/auth/login", dto.LoginRequest{})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	resp := decode[dto.VerifyCodeResponse](t, rec)
	assert.Equal(t, "COOLDOWN", resp.Error)
	require.NotNil(t, resp.RetryAfter)
	assert.Equal(t, int64(42), *resp.RetryAfter)

	h = transport.NewRouter(failingAuth{err: domain.ErrDailyLimitReached}, transport.RouterConfig{}, quietLogger())
	resp = decode[dto.VerifyCodeResponse](t, do(t, h, http.MethodPost, "/api/auth/login", dto.LoginRequest{}))
	assert.Equal(t, "RATE_LIMITED", resp.Error)
	require.NotNil(t, resp.RetryAfter)
	assert.Equal(t, int64(86400), *resp.RetryAfter)

	h = transport.NewRouter(failingAuth{err: &domain.VerificationError{Status: domain.VerificationInvalid, RemainingAttempts: 3}},
		transport.RouterConfig{}, quietLogger())
	rec = do(t, h, http.MethodPost, "/api/auth/login", dto.LoginRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp = decode[dto.VerifyCodeResponse](t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "INVALID_CODE", resp.Error)
	require.NotNil(t, resp.RemainingAttempts)
	assert.Equal(t, 3, *resp.RemainingAttempts)
}

func TestMalformedBody(t *testing.T) {
	h := transport.NewRouter(failingAuth{err: domain.ErrInvalidCredentials}, transport.RouterConfig{}, quietLogger())
	for _, body := range []string{"{", `{"username":"a"}{"username":"b"}`} {
		rec := do(t, h, http.MethodPost, "/api/auth/login", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "BAD_REQUEST", decode[dto.ErrorResponse](t, rec).ErrorCode)
	}
}

func TestRateLimitPerIP(t *testing.T) {
	h := transport.NewRouter(failingAuth{err: domain.ErrInvalidCredentials},
		transport.RouterConfig{RateLimitPerMinute: 2}, quietLogger())

	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodPost, "/api/auth/login", dto.LoginRequest{})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/api/auth/login", dto.LoginRequest{})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", decode[dto.ErrorResponse](t, rec).ErrorCode)

	// health checks sit outside the limited group
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", nil).Code)
}

type mailbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *mailbox) SendTemplate(_ context.Context, msg service.TemplateEmail) service.EmailSendResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if code, ok := msg.Variables["code"].(string); ok {
		m.codes[msg.To] = code
	}
	return service.EmailQueued
}

func (m *mailbox) IsAvailable(context.Context) bool { return true }

func (m *mailbox) code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

func newServer(t *testing.T) (http.Handler, *mailbox) {
	t.Helper()
	st := testutil.NewStore(t)
	mail := &mailbox{codes: map[string]string{}}
	opts := []impl.Option{impl.WithLogger(quietLogger())}

	verification := impl.NewVerificationService(impl.DefaultVerificationConfig(), st, mail, opts...)
	wallet := impl.NewWalletService(impl.DefaultWeb3Config(), st, opts...)
	passwords := impl.NewPasswordServiceArgon2id(opts...).WithParams(impl.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	identity := impl.NewIdentityService(st, verification, passwords, opts...)
	tokens, err := impl.NewTokenServiceHS256(impl.TokenConfig{
		Issuer:     "uniauth-test",
		Audience:   "uniauth-clients",
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
	}, opts...)
	require.NoError(t, err)
	auth := impl.NewAuthServiceImpl(identity, verification, wallet, tokens, passwords, impl.AuthConfig{}, opts...)

	return transport.NewRouter(auth, transport.RouterConfig{}, quietLogger()), mail
}

func TestEmailRegistrationOverHTTP(t *testing.T) {
	h, mail := newServer(t)

	rec := do(t, h, http.MethodPost, "/api/auth/send-verification-code", dto.SendCodeRequest{
		Email: "web@x.com", Password: "password123", DisplayName: "Web User",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sent := decode[dto.SendCodeResponse](t, rec)
	assert.Equal(t, int64(600), sent.ExpiresIn)
	assert.Equal(t, int64(60), sent.ResendAfter)

	rec = do(t, h, http.MethodPost, "/api/auth/send-verification-code", dto.SendCodeRequest{Email: "web@x.com"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "COOLDOWN", decode[dto.VerifyCodeResponse](t, rec).Error)

	status := decode[dto.EmailStatusResponse](t, do(t, h, http.MethodGet, "/api/auth/email/status/web@x.com", nil))
	assert.True(t, status.HasPendingVerification)

	rec = do(t, h, http.MethodPost, "/api/auth/verify-email", dto.VerifyEmailRequest{Email: "web@x.com", VerificationCode: mail.code("web@x.com")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[dto.LoginResponse](t, rec)
	assert.Equal(t, "Web User", login.User.DisplayName)

	rec = do(t, h, http.MethodGet, "/api/auth/user", nil, "Authorization", "Bearer "+login.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "web@x.com", decode[dto.UserInfo](t, rec).Email)

	rec = do(t, h, http.MethodGet, "/api/auth/user", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/auth/refresh", dto.RefreshRequest{RefreshToken: login.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, login.User.ID, decode[dto.LoginResponse](t, rec).User.ID)
}

func TestWalletFlowOverHTTP(t *testing.T) {
	h, _ := newServer(t)
	w := testutil.NewWallet(t, fixtureKey)

	signIn := func() *httptest.ResponseRecorder {
		rec := do(t, h, http.MethodGet, "/api/auth/web3/nonce/"+w.Address, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		nonce := decode[dto.Web3NonceResponse](t, rec)
		return do(t, h, http.MethodPost, "/api/auth/web3/verify", dto.Web3LoginRequest{
			WalletAddress: w.Address,
			Message:       nonce.Message,
			Signature:     w.SignPersonal(nonce.Message),
			Nonce:         nonce.Nonce,
		})
	}

	rec := signIn()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[dto.Web3AuthResponse](t, rec)
	assert.True(t, first.IsNewUser)
	assert.Equal(t, w.Address, first.WalletAddress)

	status := decode[dto.WalletStatusResponse](t, do(t, h, http.MethodGet, "/api/auth/web3/status/"+w.Address, nil))
	assert.True(t, status.IsBound)

	// a signature over a message the server never issued
	rec = do(t, h, http.MethodGet, "/api/auth/web3/nonce/"+w.Address, nil)
	nonce := decode[dto.Web3NonceResponse](t, rec)
	rec = do(t, h, http.MethodPost, "/api/auth/web3/verify", dto.Web3LoginRequest{
		WalletAddress: w.Address,
		Message:       "hello",
		Signature:     w.SignPersonal("hello"),
		Nonce:         nonce.Nonce,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_SIGNATURE", decode[dto.ErrorResponse](t, rec).ErrorCode)

	rec = do(t, h, http.MethodGet, "/api/auth/web3/nonce/0x1234", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ADDRESS", decode[dto.ErrorResponse](t, rec).ErrorCode)
}

func TestBindWalletOverHTTP(t *testing.T) {
	h, mail := newServer(t)
	w := testutil.NewWallet(t, fixtureKey)

	// a wallet user already owns the address
	rec := do(t, h, http.MethodGet, "/api/auth/web3/nonce/"+w.Address, nil)
	nonce := decode[dto.Web3NonceResponse](t, rec)
	rec = do(t, h, http.MethodPost, "/api/auth/web3/verify", dto.Web3LoginRequest{
		WalletAddress: w.Address, Message: nonce.Message, Signature: w.SignPersonal(nonce.Message), Nonce: nonce.Nonce,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	do(t, h, http.MethodPost, "/api/auth/send-verification-code", dto.SendCodeRequest{Email: "bind@x.com", Password: "password123"})
	rec = do(t, h, http.MethodPost, "/api/auth/verify-email", dto.VerifyEmailRequest{Email: "bind@x.com", VerificationCode: mail.code("bind@x.com")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[dto.LoginResponse](t, rec)

	rec = do(t, h, http.MethodGet, "/api/auth/web3/nonce/"+w.Address, nil)
	nonce = decode[dto.Web3NonceResponse](t, rec)
	body := dto.Web3LoginRequest{
		WalletAddress: w.Address, Message: nonce.Message, Signature: w.SignPersonal(nonce.Message), Nonce: nonce.Nonce,
	}

	rec = do(t, h, http.MethodPost, "/api/auth/web3/bind", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/auth/web3/bind", body, "Authorization", "Bearer "+login.AccessToken)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "BINDING_FAILED", decode[dto.ErrorResponse](t, rec).ErrorCode)
}

func TestDeleteAccountOverHTTP(t *testing.T) {
	h, mail := newServer(t)

	do(t, h, http.MethodPost, "/api/auth/send-verification-code", dto.SendCodeRequest{Email: "gone@x.com", Password: "password123"})
	rec := do(t, h, http.MethodPost, "/api/auth/verify-email", dto.VerifyEmailRequest{Email: "gone@x.com", VerificationCode: mail.code("gone@x.com")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[dto.LoginResponse](t, rec)

	rec = do(t, h, http.MethodDelete, "/api/auth/user", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/auth/user", nil, "Authorization", "Bearer "+login.AccessToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// the token outlives the account but no longer resolves to a user
	rec = do(t, h, http.MethodGet, "/api/auth/user", nil, "Authorization", "Bearer "+login.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", decode[dto.ErrorResponse](t, rec).ErrorCode)

	rec = do(t, h, http.MethodPost, "/api/auth/login", dto.LoginRequest{Username: "gone@x.com", Password: "password123"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

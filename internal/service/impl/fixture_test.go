package impl

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"uniauth/internal/service"
	"uniauth/internal/store"
	"uniauth/internal/testutil"

	"github.com/stretchr/testify/require"
)

const (
	fixtureKey     = "4c0883a69102937d6231471b5dbb6204fe51296170827922b7a56c91b8b56d09"
	fixtureAddress = "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23"
	testSigningKey = "0123456789abcdef0123456789abcdef"
)

var testStart = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type stubEmailService struct {
	mu        sync.Mutex
	available bool
	result    service.EmailSendResult
	sent      []service.TemplateEmail
}

func (s *stubEmailService) SendTemplate(ctx context.Context, msg service.TemplateEmail) service.EmailSendResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return s.result
}

func (s *stubEmailService) IsAvailable(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

// lastCode returns the code carried by the most recent mail to email.
func (s *stubEmailService) lastCode(t *testing.T, email string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		msg := s.sent[i]
		if msg.To != email {
			continue
		}
		if code, ok := msg.Variables["code"].(string); ok {
			return code
		}
		if code, ok := msg.Variables["verificationCode"].(string); ok {
			return code
		}
	}
	t.Fatalf("no code mailed to %s", email)
	return ""
}

type fixture struct {
	store        *store.Store
	clock        *testutil.Clock
	email        *stubEmailService
	verification *VerificationServiceImpl
	wallet       *WalletServiceImpl
	passwords    *PasswordServiceImpl
	identity     *IdentityServiceImpl
	tokens       *TokenServiceImpl
	auth         *AuthServiceImpl
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: testutil.NewStore(t),
		clock: testutil.NewClock(testStart),
		email: &stubEmailService{available: true, result: service.EmailQueued},
	}
	opts := []Option{WithClock(f.clock.Now), WithLogger(quietLogger())}

	f.verification = NewVerificationService(DefaultVerificationConfig(), f.store, f.email, opts...)
	f.wallet = NewWalletService(DefaultWeb3Config(), f.store, opts...)
	f.passwords = NewPasswordServiceArgon2id(opts...).WithParams(cheapArgon2)
	f.identity = NewIdentityService(f.store, f.verification, f.passwords, opts...)

	tokens, err := NewTokenServiceHS256(TokenConfig{
		Issuer:     "uniauth-test",
		Audience:   "uniauth-clients",
		SigningKey: []byte(testSigningKey),
	}, opts...)
	require.NoError(t, err)
	f.tokens = tokens

	f.auth = NewAuthServiceImpl(f.identity, f.verification, f.wallet, f.tokens, f.passwords, AuthConfig{}, opts...)
	return f
}

var cheapArgon2 = Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

// wrongCode returns a code of the same length that differs from code.
func wrongCode(code string) string {
	last := code[len(code)-1]
	next := '0' + (last-'0'+1)%10
	return code[:len(code)-1] + string(rune(next))
}

func upperHex(addr string) string {
	return "0x" + strings.ToUpper(addr[2:])
}

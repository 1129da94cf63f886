package impl

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"uniauth/internal/domain"
	"uniauth/internal/observability/metrics"
	"uniauth/internal/service"
	"uniauth/internal/store"
)

// ====== Config ======

type VerificationConfig struct {
	CodeLength     int
	Expiry         time.Duration
	MaxSendPerDay  int
	ResendCooldown time.Duration
	MaxRetries     int
}

func DefaultVerificationConfig() VerificationConfig {
	return VerificationConfig{
		CodeLength:     6,
		Expiry:         10 * time.Minute,
		MaxSendPerDay:  10,
		ResendCooldown: 60 * time.Second,
		MaxRetries:     5,
	}
}

// ====== Service ======

type VerificationServiceImpl struct {
	cfg   VerificationConfig
	store *store.Store
	email service.EmailService
	rt    runtime
}

func NewVerificationService(cfg VerificationConfig, st *store.Store, email service.EmailService, opts ...Option) *VerificationServiceImpl {
	def := DefaultVerificationConfig()
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = def.CodeLength
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = def.Expiry
	}
	if cfg.MaxSendPerDay <= 0 {
		cfg.MaxSendPerDay = def.MaxSendPerDay
	}
	if cfg.ResendCooldown < 0 {
		cfg.ResendCooldown = def.ResendCooldown
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	return &VerificationServiceImpl{cfg: cfg, store: st, email: email, rt: newRuntime(opts)}
}

func (v *VerificationServiceImpl) Config() VerificationConfig { return v.cfg }

func (v *VerificationServiceImpl) Send(ctx context.Context, email string, purpose domain.CodePurpose, metadata map[string]any) error {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return domain.ErrInvalidEmail
	}
	if !purpose.Valid() {
		return domain.ErrInvalidPurpose
	}

	code, err := randomDigits(v.rt.rand, v.cfg.CodeLength)
	if err != nil {
		return infra("verification", "generate_code", err)
	}
	var meta string
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("%w: metadata: %v", domain.ErrValidation, err)
		}
		meta = string(raw)
	}

	now := v.rt.now()
	rec := &domain.VerificationCode{
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		Metadata:  meta,
		ExpiresAt: now.Add(v.cfg.Expiry),
		CreatedAt: now,
	}
	if err := v.store.VerificationCodes().Create(ctx, rec); err != nil {
		return infra("verification", "create_code", err)
	}

	result := v.deliver(ctx, email, code, purpose)
	metrics.VerificationCodesSentTotal.WithLabelValues(string(purpose), string(result)).Inc()
	v.rt.logger.Info("verification code created",
		"email", email, "purpose", purpose, "email_result", result, "expires_at", rec.ExpiresAt)
	return nil
}

// deliver mails the stored code. Delivery problems are logged and never
// fail the send: the code exists and the user can ask for another.
func (v *VerificationServiceImpl) deliver(ctx context.Context, email, code string, purpose domain.CodePurpose) service.EmailSendResult {
	if v.email == nil || !v.email.IsAvailable(ctx) {
		v.rt.logger.Warn("email service unavailable", "email", email, "purpose", purpose)
		return service.EmailFailed
	}
	minutes := int(v.cfg.Expiry / time.Minute)
	msg := service.TemplateEmail{
		To:        email,
		Subject:   "Verify your email",
		Template:  "email/email-verify",
		EmailType: "VERIFICATION",
		Variables: map[string]any{
			"code":          code,
			"expiryMinutes": minutes,
			"purpose":       string(purpose),
		},
	}
	if purpose == domain.PurposePasswordReset {
		msg.Subject = "Reset your password"
		msg.Template = "email/password-reset"
		msg.EmailType = "PASSWORD_RESET"
		msg.Variables = map[string]any{
			"username":         email,
			"verificationCode": code,
			"expiryMinutes":    minutes,
		}
	}
	res := v.email.SendTemplate(ctx, msg)
	if res != service.EmailQueued {
		v.rt.logger.Warn("verification email not sent", "email", email, "purpose", purpose, "result", res)
	}
	return res
}

// CanSend applies the per-email daily cap. Days start at 00:00 UTC. Codes
// deleted as expired or exhausted still count, so burning codes with wrong
// guesses does not buy more sends.
func (v *VerificationServiceImpl) CanSend(ctx context.Context, email string) (bool, error) {
	now := v.rt.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	n, err := v.store.VerificationCodes().CountCreatedSince(ctx, normalizeEmail(email), dayStart)
	if err != nil {
		return false, infra("verification", "count_sent", err)
	}
	return n < int64(v.cfg.MaxSendPerDay), nil
}

func (v *VerificationServiceImpl) ResendCooldown(ctx context.Context, email string) (time.Duration, error) {
	rec, err := v.store.VerificationCodes().LatestUnusedAnyPurpose(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, infra("verification", "latest_code", err)
	}
	left := rec.CreatedAt.Add(v.cfg.ResendCooldown).Sub(v.rt.now())
	if left < 0 {
		return 0, nil
	}
	return left, nil
}

// Verify checks code against the newest unused code for email and purpose.
// The failure that uses up the last attempt deletes the row.
func (v *VerificationServiceImpl) Verify(ctx context.Context, email, code string, purpose domain.CodePurpose) (res service.VerifyResult, err error) {
	if !purpose.Valid() {
		return service.VerifyResult{}, domain.ErrInvalidPurpose
	}
	email = normalizeEmail(email)
	defer func() {
		if err == nil {
			metrics.VerificationChecksTotal.WithLabelValues(string(purpose), string(res.Status)).Inc()
		}
	}()

	codes := v.store.VerificationCodes()
	rec, err := codes.LatestUnused(ctx, email, purpose)
	if errors.Is(err, store.ErrRecordNotFound) {
		return service.VerifyResult{Status: domain.VerificationNotFound}, nil
	}
	if err != nil {
		return service.VerifyResult{}, infra("verification", "latest_code", err)
	}

	now := v.rt.now()
	// 1) expired codes are removed without retry credit
	if rec.Expired(now) {
		if err := codes.Delete(ctx, rec.ID); err != nil {
			return service.VerifyResult{}, infra("verification", "delete_code", err)
		}
		return service.VerifyResult{Status: domain.VerificationExpired}, nil
	}

	// 2) a row left exhausted by a concurrent checker goes without a compare
	if rec.RetryCount >= v.cfg.MaxRetries {
		return v.exhausted(ctx, rec, email, purpose)
	}

	// 3) mismatch: count it atomically
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(rec.Code)) != 1 {
		retries, err := codes.RegisterFailure(ctx, rec.ID, v.cfg.MaxRetries, now)
		if errors.Is(err, store.ErrRecordNotFound) {
			return service.VerifyResult{Status: domain.VerificationNotFound}, nil
		}
		if err != nil {
			return service.VerifyResult{}, infra("verification", "register_failure", err)
		}
		if retries >= v.cfg.MaxRetries {
			return v.exhausted(ctx, rec, email, purpose)
		}
		return service.VerifyResult{
			Status:            domain.VerificationInvalid,
			RemainingAttempts: v.cfg.MaxRetries - retries,
		}, nil
	}

	// 4) match: only one caller may consume the code
	ok, err := codes.Consume(ctx, rec.ID, now)
	if err != nil {
		return service.VerifyResult{}, infra("verification", "consume_code", err)
	}
	if !ok {
		return service.VerifyResult{Status: domain.VerificationNotFound}, nil
	}
	meta, err := decodeMetadata(rec.Metadata)
	if err != nil {
		return service.VerifyResult{}, infra("verification", "decode_metadata", err)
	}
	return service.VerifyResult{Status: domain.VerificationSuccess, Metadata: meta}, nil
}

func (v *VerificationServiceImpl) exhausted(ctx context.Context, rec *domain.VerificationCode, email string, purpose domain.CodePurpose) (service.VerifyResult, error) {
	if err := v.store.VerificationCodes().Delete(ctx, rec.ID); err != nil {
		return service.VerifyResult{}, infra("verification", "delete_code", err)
	}
	v.rt.logger.Warn("verification code exhausted", "email", email, "purpose", purpose)
	return service.VerifyResult{Status: domain.VerificationMaxRetriesExceeded}, nil
}

func (v *VerificationServiceImpl) MarkUsed(ctx context.Context, email string, purpose domain.CodePurpose) error {
	codes := v.store.VerificationCodes()
	rec, err := codes.LatestUnused(ctx, normalizeEmail(email), purpose)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return infra("verification", "latest_code", err)
	}
	if _, err := codes.Consume(ctx, rec.ID, v.rt.now()); err != nil {
		return infra("verification", "consume_code", err)
	}
	return nil
}

func (v *VerificationServiceImpl) HasPending(ctx context.Context, email string, purpose domain.CodePurpose) (bool, error) {
	ok, err := v.store.VerificationCodes().ExistsUnused(ctx, normalizeEmail(email), purpose)
	if err != nil {
		return false, infra("verification", "exists_unused", err)
	}
	return ok, nil
}

func (v *VerificationServiceImpl) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := v.store.VerificationCodes().DeleteExpired(ctx, v.rt.now())
	if err != nil {
		return 0, infra("verification", "cleanup", err)
	}
	metrics.CleanupDeletedTotal.WithLabelValues("verification_code").Add(float64(n))
	return n, nil
}

// ====== Helpers ======

// randomDigits draws n decimal digits from src, rejecting bytes >= 250 so
// every digit is equally likely.
func randomDigits(src io.Reader, n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

func decodeMetadata(raw string) (map[string]any, error) {
	meta := map[string]any{}
	if raw == "" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

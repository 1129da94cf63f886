package impl

import (
	"bytes"
	"context"
	"testing"
	"time"

	"uniauth/internal/domain"
	"uniauth/internal/dto"
	"uniauth/internal/service"
	"uniauth/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.verification.Send(ctx, "a@x.com", domain.PurposeRegistration, map[string]any{"displayName": "Alice"}))
	code := f.email.lastCode(t, "a@x.com")
	require.Len(t, code, 6)

	res, err := f.verification.Verify(ctx, "a@x.com", wrongCode(code), domain.PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationInvalid, res.Status)
	assert.Equal(t, 4, res.RemainingAttempts)

	res, err = f.verification.Verify(ctx, "a@x.com", code, domain.PurposeRegistration)
	require.NoError(t, err)
	require.True(t, res.Success())
	assert.Equal(t, "Alice", res.Metadata["displayName"])

	res, err = f.verification.Verify(ctx, "a@x.com", code, domain.PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationNotFound, res.Status)
}

func TestVerifyMaxRetriesDeletesCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.verification.Send(ctx, "b@x.com", domain.PurposeLogin, nil))
	code := f.email.lastCode(t, "b@x.com")
	bad := wrongCode(code)

	for want := 4; want >= 1; want-- {
		res, err := f.verification.Verify(ctx, "b@x.com", bad, domain.PurposeLogin)
		require.NoError(t, err)
		require.Equal(t, domain.VerificationInvalid, res.Status)
		require.Equal(t, want, res.RemainingAttempts)
	}
	res, err := f.verification.Verify(ctx, "b@x.com", bad, domain.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationMaxRetriesExceeded, res.Status)

	// the fifth failure deleted the row, so the sixth call finds nothing
	// to check and the correct code no longer helps
	res, err = f.verification.Verify(ctx, "b@x.com", code, domain.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationNotFound, res.Status)

	_, err = f.store.VerificationCodes().LatestUnused(ctx, "b@x.com", domain.PurposeLogin)
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
}

func TestVerifyExpiredCodeIsDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.verification.Send(ctx, "c@x.com", domain.PurposeRegistration, nil))
	code := f.email.lastCode(t, "c@x.com")
	f.clock.Advance(10*time.Minute + time.Second)

	res, err := f.verification.Verify(ctx, "c@x.com", code, domain.PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationExpired, res.Status)

	res, err = f.verification.Verify(ctx, "c@x.com", code, domain.PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationNotFound, res.Status)
}

func TestVerifyUsesNewestCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := NewVerificationService(DefaultVerificationConfig(), f.store, f.email,
		WithClock(f.clock.Now),
		WithLogger(quietLogger()),
		WithRandom(bytes.NewReader([]byte{1, 1, 1, 1, 1, 1, 2, 2, 2, 2, 2, 2})))

	require.NoError(t, v.Send(ctx, "d@x.com", domain.PurposeRegistration, nil))
	f.clock.Advance(time.Second)
	require.NoError(t, v.Send(ctx, "d@x.com", domain.PurposeRegistration, nil))
	assert.Equal(t, "222222", f.email.lastCode(t, "d@x.com"))

	res, err := v.Verify(ctx, "d@x.com", "111111", domain.PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationInvalid, res.Status)

	res, err = v.Verify(ctx, "d@x.com", "222222", domain.PurposeRegistration)
	require.NoError(t, err)
	assert.True(t, res.Success())
}

func TestVerifyPurposeIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.verification.Send(ctx, "e@x.com", domain.PurposeRegistration, nil))
	code := f.email.lastCode(t, "e@x.com")

	res, err := f.verification.Verify(ctx, "e@x.com", code, domain.PurposePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationNotFound, res.Status)

	_, err = f.verification.Verify(ctx, "e@x.com", code, domain.CodePurpose("SOMETHING"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRandomDigitsRejectsBiasedBytes(t *testing.T) {
	code, err := randomDigits(bytes.NewReader([]byte{251, 7, 1, 2, 3, 4, 5, 0, 0, 0, 0, 0}), 6)
	require.NoError(t, err)
	assert.Equal(t, "712345", code)

	_, err = randomDigits(bytes.NewReader([]byte{1, 2}), 6)
	assert.Error(t, err)
}

func TestCanSendDailyCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ok, err := f.verification.CanSend(ctx, "f@x.com")
		require.NoError(t, err)
		require.True(t, ok, "send %d", i+1)
		require.NoError(t, f.verification.Send(ctx, "f@x.com", domain.PurposeRegistration, nil))
	}
	ok, err := f.verification.CanSend(ctx, "f@x.com")
	require.NoError(t, err)
	assert.False(t, ok)

	// other addresses are unaffected
	ok, err = f.verification.CanSend(ctx, "g@x.com")
	require.NoError(t, err)
	assert.True(t, ok)

	f.clock.Set(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC))
	ok, err = f.verification.CanSend(ctx, "f@x.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanSendCountsExhaustedCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, f.verification.Send(ctx, "burn@x.com", domain.PurposeLogin, nil))
		bad := wrongCode(f.email.lastCode(t, "burn@x.com"))
		for j := 0; j < 5; j++ {
			_, err := f.verification.Verify(ctx, "burn@x.com", bad, domain.PurposeLogin)
			require.NoError(t, err)
		}
		_, err := f.store.VerificationCodes().LatestUnused(ctx, "burn@x.com", domain.PurposeLogin)
		require.ErrorIs(t, err, store.ErrRecordNotFound, "code %d still live", i+1)
	}

	// nothing live is left, so only the daily cap stands in the way
	wait, err := f.verification.ResendCooldown(ctx, "burn@x.com")
	require.NoError(t, err)
	assert.Zero(t, wait)

	ok, err := f.verification.CanSend(ctx, "burn@x.com")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.auth.SendEmailCode(ctx, dto.SendCodeRequest{Email: "burn@x.com", Purpose: "LOGIN"})
	assert.ErrorIs(t, err, domain.ErrDailyLimitReached)

	// sweeping expired codes does not reset the count either
	f.clock.Advance(11 * time.Minute)
	_, err = f.verification.CleanupExpired(ctx)
	require.NoError(t, err)
	ok, err = f.verification.CanSend(ctx, "burn@x.com")
	require.NoError(t, err)
	assert.False(t, ok)

	f.clock.Set(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC))
	ok, err = f.verification.CanSend(ctx, "burn@x.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCleanupPurgesPreviousDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.verification.Send(ctx, "old@x.com", domain.PurposeRegistration, nil))
	f.clock.Advance(11 * time.Minute)
	n, err := f.verification.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var rows int64
	require.NoError(t, f.store.DB.Unscoped().Model(&domain.VerificationCode{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows, "same-day rows are kept for the daily count")

	f.clock.Set(time.Date(2026, 3, 11, 0, 5, 0, 0, time.UTC))
	require.NoError(t, f.verification.Send(ctx, "old@x.com", domain.PurposeRegistration, nil))
	n, err = f.verification.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, f.store.DB.Unscoped().Model(&domain.VerificationCode{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
	pending, err := f.verification.HasPending(ctx, "old@x.com", domain.PurposeRegistration)
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestResendCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wait, err := f.verification.ResendCooldown(ctx, "h@x.com")
	require.NoError(t, err)
	assert.Zero(t, wait)

	require.NoError(t, f.verification.Send(ctx, "h@x.com", domain.PurposeRegistration, nil))
	wait, err = f.verification.ResendCooldown(ctx, "h@x.com")
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, wait)

	f.clock.Advance(45 * time.Second)
	wait, err = f.verification.ResendCooldown(ctx, "h@x.com")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, wait)

	f.clock.Advance(20 * time.Second)
	wait, err = f.verification.ResendCooldown(ctx, "h@x.com")
	require.NoError(t, err)
	assert.Zero(t, wait)
}

func TestSendSurvivesEmailOutage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.email.available = false

	require.NoError(t, f.verification.Send(ctx, "i@x.com", domain.PurposeRegistration, nil))
	assert.Empty(t, f.email.sent)

	pending, err := f.verification.HasPending(ctx, "i@x.com", domain.PurposeRegistration)
	require.NoError(t, err)
	assert.True(t, pending)

	f.email.available = true
	f.email.result = service.EmailFailed
	require.NoError(t, f.verification.Send(ctx, "i@x.com", domain.PurposeRegistration, nil))
}

func TestSendValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.verification.Send(ctx, "not-an-email", domain.PurposeRegistration, nil), domain.ErrInvalidEmail)
	assert.ErrorIs(t, f.verification.Send(ctx, "j@x.com", domain.CodePurpose("nope"), nil), domain.ErrInvalidPurpose)
}

func TestPasswordResetMailUsesResetTemplate(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.verification.Send(context.Background(), "k@x.com", domain.PurposePasswordReset, nil))

	require.Len(t, f.email.sent, 1)
	msg := f.email.sent[0]
	assert.Equal(t, "email/password-reset", msg.Template)
	assert.Equal(t, "PASSWORD_RESET", msg.EmailType)
	assert.Equal(t, 10, msg.Variables["expiryMinutes"])
	assert.Len(t, msg.Variables["verificationCode"], 6)
}

func TestMarkUsedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.verification.MarkUsed(ctx, "l@x.com", domain.PurposeRegistration))

	require.NoError(t, f.verification.Send(ctx, "l@x.com", domain.PurposeRegistration, nil))
	code := f.email.lastCode(t, "l@x.com")
	require.NoError(t, f.verification.MarkUsed(ctx, "l@x.com", domain.PurposeRegistration))
	require.NoError(t, f.verification.MarkUsed(ctx, "l@x.com", domain.PurposeRegistration))

	res, err := f.verification.Verify(ctx, "l@x.com", code, domain.PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationNotFound, res.Status)
}

func TestVerificationCleanupExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.verification.Send(ctx, "m@x.com", domain.PurposeRegistration, nil))
	f.clock.Advance(5 * time.Minute)
	require.NoError(t, f.verification.Send(ctx, "n@x.com", domain.PurposeRegistration, nil))
	f.clock.Advance(6 * time.Minute)

	n, err := f.verification.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pending, err := f.verification.HasPending(ctx, "n@x.com", domain.PurposeRegistration)
	require.NoError(t, err)
	assert.True(t, pending)
}

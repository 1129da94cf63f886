package impl

import (
	"context"
	"testing"
	"time"

	"uniauth/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperRemovesExpiredRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.verification.Send(ctx, "a@x.com", domain.PurposeRegistration, nil))
	_, err := f.wallet.IssueNonce(ctx, fixtureAddress)
	require.NoError(t, err)

	s := NewSweeper(time.Minute, f.verification, f.wallet, WithLogger(quietLogger()))
	assert.Equal(t, map[string]int64{"verification_code": 0, "wallet_nonce": 0}, s.SweepOnce(ctx))

	f.clock.Advance(11 * time.Minute)
	assert.Equal(t, map[string]int64{"verification_code": 1, "wallet_nonce": 1}, s.SweepOnce(ctx))
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	s := NewSweeper(time.Hour, f.verification, f.wallet, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

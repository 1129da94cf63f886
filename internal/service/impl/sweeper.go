package impl

import (
	"context"
	"time"
)

type expirable interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically removes expired verification codes and wallet nonces.
// Lookups already ignore expired rows, so the interval only bounds storage.
type Sweeper struct {
	Interval time.Duration
	targets  map[string]expirable
	rt       runtime
}

func NewSweeper(interval time.Duration, codes, nonces expirable, opts ...Option) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		Interval: interval,
		targets:  map[string]expirable{"verification_code": codes, "wallet_nonce": nonces},
		rt:       newRuntime(opts),
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		s.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) map[string]int64 {
	out := make(map[string]int64, len(s.targets))
	for kind, target := range s.targets {
		if target == nil {
			continue
		}
		n, err := target.CleanupExpired(ctx)
		if err != nil {
			s.rt.logger.Error("cleanup failed", "kind", kind, "err", err)
			continue
		}
		out[kind] = n
		if n > 0 {
			s.rt.logger.Info("cleanup removed expired rows", "kind", kind, "count", n)
		}
	}
	return out
}

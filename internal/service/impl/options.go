package impl

import (
	"crypto/rand"
	"io"
	"log/slog"
	"time"
)

// runtime holds the injectable sources of time, randomness and logging
// shared by the service implementations.
type runtime struct {
	now    func() time.Time
	rand   io.Reader
	logger *slog.Logger
}

type Option func(*runtime)

func WithClock(now func() time.Time) Option {
	return func(r *runtime) { r.now = now }
}

// WithRandom replaces crypto/rand as the source for codes and nonces.
func WithRandom(src io.Reader) Option {
	return func(r *runtime) { r.rand = src }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *runtime) { r.logger = l }
}

func newRuntime(opts []Option) runtime {
	r := runtime{
		now:  func() time.Time { return time.Now().UTC() },
		rand: rand.Reader,
	}
	for _, o := range opts {
		o(&r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

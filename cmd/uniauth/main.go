package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"uniauth/internal/config"
	"uniauth/internal/observability/logging"
	"uniauth/internal/observability/metrics"
	impl "uniauth/internal/service/impl"
	"uniauth/internal/store"
	httpx "uniauth/internal/transport/http"
)

func main() {
	cfg := config.Load()

	logger := logging.NewLogger(logging.Config{
		ServiceName: "uniauth",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})

	slog.SetDefault(logger)

	logger.Info("starting service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1) DB
	gdb, err := store.Open(store.DBConfig{
		Driver: cfg.DatabaseDriver,
		DSN:    cfg.DatabaseURL,
		LogSQL: cfg.DBLogSQL,
	})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}
	st := store.New(gdb)
	if err := st.Migrate(ctx); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}

	metrics.MustRegister("uniauth")

	// 2) Services
	opts := []impl.Option{impl.WithLogger(logger)}

	email := impl.NewEmailServiceHTTP(impl.EmailConfig{
		BaseURL: cfg.EmailServiceURL,
		Timeout: cfg.EmailTimeout,
	}, opts...)

	verification := impl.NewVerificationService(impl.VerificationConfig{
		CodeLength:     cfg.CodeLength,
		Expiry:         cfg.CodeExpiry,
		MaxSendPerDay:  cfg.MaxSendPerDay,
		ResendCooldown: cfg.ResendCooldown,
		MaxRetries:     cfg.MaxRetries,
	}, st, email, opts...)

	wallet := impl.NewWalletService(impl.Web3Config{
		Domain:        cfg.Web3Domain,
		URI:           cfg.Web3URI,
		Statement:     cfg.Web3Statement,
		ChainID:       cfg.Web3ChainID,
		NonceTTL:      cfg.Web3NonceTTL,
		StrictMessage: cfg.StrictMessage,
	}, st, opts...)

	pw := impl.NewPasswordServiceArgon2id(opts...)

	ts, err := impl.NewTokenServiceHS256(impl.TokenConfig{
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		SigningKey: []byte(cfg.SigningKey),
	}, opts...)
	if err != nil {
		logger.Error("token service", "error", err)
		os.Exit(1)
	}

	identity := impl.NewIdentityService(st, verification, pw, opts...)
	as := impl.NewAuthServiceImpl(identity, verification, wallet, ts, pw, impl.AuthConfig{
		CodeExpiry:     cfg.CodeExpiry,
		ResendCooldown: cfg.ResendCooldown,
	}, opts...)

	go impl.NewSweeper(cfg.CleanupInterval, verification, wallet, opts...).Run(ctx)

	// 3) HTTP router
	mux := httpx.NewRouter(as, httpx.RouterConfig{
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	slog.Info("uniauth listening", "addr", srv.Addr, "issuer", cfg.Issuer, "web3_domain", cfg.Web3Domain)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

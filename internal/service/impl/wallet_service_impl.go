package impl

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"uniauth/internal/domain"
	"uniauth/internal/dto"
	"uniauth/internal/ethsig"
	"uniauth/internal/observability/metrics"
	"uniauth/internal/store"

	"github.com/google/uuid"
)

const defaultStatement = "By signing, you agree to authenticate with your wallet."

const signInTemplate = "%s wants you to sign in with your Ethereum account:\n%s\n\n%s\n\n" +
	"URI: %s\nVersion: %s\nChain ID: %d\nNonce: %s\nIssued At: %s\nExpiration Time: %s"

// ====== Config ======

type Web3Config struct {
	Domain    string
	URI       string
	Statement string
	Version   string
	ChainID   int
	NonceTTL  time.Duration
	// StrictMessage rejects any signed message that is not byte-for-byte the
	// one issued with the nonce.
	StrictMessage bool
}

func DefaultWeb3Config() Web3Config {
	return Web3Config{
		Domain:        "localhost",
		URI:           "https://localhost",
		Statement:     defaultStatement,
		Version:       "1",
		ChainID:       1,
		NonceTTL:      300 * time.Second,
		StrictMessage: true,
	}
}

// Message renders the sign-in text for a challenge. Timestamps are RFC 3339
// in UTC.
func (c Web3Config) Message(address, nonce string, issuedAt, expiresAt time.Time) string {
	return fmt.Sprintf(signInTemplate,
		c.Domain, address, c.Statement, c.URI, c.Version, c.ChainID, nonce,
		issuedAt.UTC().Format(time.RFC3339), expiresAt.UTC().Format(time.RFC3339))
}

// ====== Service ======

type WalletServiceImpl struct {
	cfg   Web3Config
	store *store.Store
	rt    runtime
}

func NewWalletService(cfg Web3Config, st *store.Store, opts ...Option) *WalletServiceImpl {
	def := DefaultWeb3Config()
	if cfg.Domain == "" {
		cfg.Domain = def.Domain
	}
	if cfg.URI == "" {
		cfg.URI = "https://" + cfg.Domain
	}
	if cfg.Statement == "" {
		cfg.Statement = def.Statement
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if cfg.ChainID <= 0 {
		cfg.ChainID = def.ChainID
	}
	if cfg.NonceTTL <= 0 {
		cfg.NonceTTL = def.NonceTTL
	}
	return &WalletServiceImpl{cfg: cfg, store: st, rt: newRuntime(opts)}
}

func (w *WalletServiceImpl) IssueNonce(ctx context.Context, address string) (*dto.Web3NonceResponse, error) {
	address = strings.TrimSpace(address)
	if !ethsig.IsValidAddress(address) {
		return nil, domain.ErrInvalidAddress
	}
	addr := ethsig.NormalizeAddress(address)

	id, err := uuid.NewRandomFromReader(w.rt.rand)
	if err != nil {
		return nil, infra("wallet", "generate_nonce", err)
	}
	nonce := strings.ReplaceAll(id.String(), "-", "")

	// whole seconds, so the stored row renders the same message again
	issued := w.rt.now().UTC().Truncate(time.Second)
	expires := issued.Add(w.cfg.NonceTTL)

	if err := w.store.WalletNonces().Upsert(ctx, &domain.WalletNonce{
		WalletAddress: addr,
		Nonce:         nonce,
		IssuedAt:      issued,
		ExpiresAt:     expires,
		CreatedAt:     issued,
	}); err != nil {
		return nil, infra("wallet", "upsert_nonce", err)
	}

	w.rt.logger.Info("wallet nonce issued", "wallet", addr, "expires_at", expires)
	return &dto.Web3NonceResponse{
		Nonce:     nonce,
		Message:   w.cfg.Message(addr, nonce, issued, expires),
		ExpiresIn: int64(w.cfg.NonceTTL.Seconds()),
	}, nil
}

// Verify consumes the outstanding challenge for address when signature over
// message proves control of it. Every rejection is a plain false.
func (w *WalletServiceImpl) Verify(ctx context.Context, address, message, signature, nonce string) (ok bool, err error) {
	result := "success"
	defer func() {
		if err != nil {
			result = "error"
		}
		metrics.WalletVerificationsTotal.WithLabelValues(result).Inc()
	}()

	if !ethsig.IsValidAddress(strings.TrimSpace(address)) {
		result = "invalid_address"
		return false, nil
	}
	addr := ethsig.NormalizeAddress(address)

	nonces := w.store.WalletNonces()
	rec, err := nonces.Get(ctx, addr)
	if errors.Is(err, store.ErrRecordNotFound) {
		result = "nonce_missing"
		return false, nil
	}
	if err != nil {
		return false, infra("wallet", "get_nonce", err)
	}

	if rec.Expired(w.rt.now()) {
		result = "nonce_expired"
		// only the expired challenge; a fresh one issued meanwhile survives
		if _, err := nonces.ConsumeIfMatches(ctx, addr, rec.Nonce); err != nil {
			return false, infra("wallet", "delete_nonce", err)
		}
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(rec.Nonce), []byte(nonce)) != 1 {
		result = "nonce_mismatch"
		return false, nil
	}
	if w.cfg.StrictMessage && message != w.cfg.Message(addr, rec.Nonce, rec.IssuedAt, rec.ExpiresAt) {
		result = "message_mismatch"
		return false, nil
	}
	if !ethsig.VerifySignature(message, signature, addr) {
		result = "invalid_signature"
		return false, nil
	}

	consumed, err := nonces.ConsumeIfMatches(ctx, addr, rec.Nonce)
	if err != nil {
		return false, infra("wallet", "consume_nonce", err)
	}
	if !consumed {
		result = "replayed"
		return false, nil
	}
	return true, nil
}

func (w *WalletServiceImpl) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := w.store.WalletNonces().DeleteExpired(ctx, w.rt.now())
	if err != nil {
		return 0, infra("wallet", "cleanup", err)
	}
	metrics.CleanupDeletedTotal.WithLabelValues("wallet_nonce").Add(float64(n))
	return n, nil
}

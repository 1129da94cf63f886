package service

import (
	"context"

	"uniauth/internal/dto"
)

type WalletService interface {
	IssueNonce(ctx context.Context, address string) (*dto.Web3NonceResponse, error)
	// Verify reports whether signature proves control of address for the
	// outstanding nonce. Malformed input yields false, not an error.
	Verify(ctx context.Context, address, message, signature, nonce string) (bool, error)
	CleanupExpired(ctx context.Context) (int64, error)
}

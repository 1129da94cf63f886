package store

import (
	"context"
	"time"

	"uniauth/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WalletNonceStore struct{ db *gorm.DB }

func (s *Store) WalletNonces() *WalletNonceStore { return &WalletNonceStore{db: s.DB} }

// Upsert replaces any outstanding nonce for the address in one statement.
func (ns *WalletNonceStore) Upsert(ctx context.Context, n *domain.WalletNonce) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return ns.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet_address"}},
		DoUpdates: clause.AssignmentColumns([]string{"nonce", "issued_at", "expires_at", "created_at"}),
	}).Create(n).Error
}

func (ns *WalletNonceStore) Get(ctx context.Context, address string) (*domain.WalletNonce, error) {
	var n domain.WalletNonce
	if err := ns.db.WithContext(ctx).First(&n, "wallet_address = ?", address).Error; err != nil {
		return nil, translate(err)
	}
	return &n, nil
}

// ConsumeIfMatches deletes the row only while it still holds nonce. A false
// result means another request consumed or replaced it first.
func (ns *WalletNonceStore) ConsumeIfMatches(ctx context.Context, address, nonce string) (bool, error) {
	res := ns.db.WithContext(ctx).
		Where("wallet_address = ? AND nonce = ?", address, nonce).
		Delete(&domain.WalletNonce{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (ns *WalletNonceStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := ns.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&domain.WalletNonce{})
	return res.RowsAffected, res.Error
}

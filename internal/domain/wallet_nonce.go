package domain

import (
	"time"

	"github.com/google/uuid"
)

type WalletNonce struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" db:"id"`
	WalletAddress string    `gorm:"type:varchar(42);not null;uniqueIndex:ux_web3_nonces_wallet" db:"wallet_address"`
	Nonce         string    `gorm:"type:varchar(64);not null" db:"nonce"`
	IssuedAt      time.Time `gorm:"not null" db:"issued_at"`
	ExpiresAt     time.Time `gorm:"not null;index" db:"expires_at"`
	CreatedAt     time.Time `gorm:"not null" db:"created_at"`
}

func (WalletNonce) TableName() string { return "web3_nonces" }

func (n *WalletNonce) Expired(now time.Time) bool { return now.After(n.ExpiresAt) }

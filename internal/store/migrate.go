package store

import (
	"context"

	"uniauth/internal/domain"
)

// Partial indexes carry the per-user invariants; gorm tags cannot express
// them portably.
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_login_one_wallet ON user_login_methods (user_id) WHERE auth_provider = 'WEB3'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_login_one_primary ON user_login_methods (user_id) WHERE is_primary`,
}

func (s *Store) Migrate(ctx context.Context) error {
	db := s.DB.WithContext(ctx)
	if err := db.AutoMigrate(
		&domain.User{},
		&loginMethodRecord{},
		&domain.VerificationCode{},
		&domain.WalletNonce{},
	); err != nil {
		return err
	}
	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

package store

import (
	"context"

	"uniauth/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeleteUser removes the user and every login method it owns, returning the
// counts captured before deletion. Codes and nonces are keyed by email and
// address and are left to expire.
func (s *Store) DeleteUser(ctx context.Context, userID uuid.UUID) (map[string]int64, error) {
	deleted := map[string]int64{}

	err := s.WithTx(ctx, func(tx *Store) error {
		db := tx.DB.WithContext(ctx)

		count := func(label string, query *gorm.DB) error {
			var total int64
			if err := query.Count(&total).Error; err != nil {
				return err
			}
			deleted[label] = total
			return nil
		}

		if err := count("users", db.Model(&domain.User{}).Where("id = ?", userID)); err != nil {
			return err
		}
		if deleted["users"] == 0 {
			return ErrRecordNotFound
		}
		if err := count("loginMethods", db.Model(&loginMethodRecord{}).Where("user_id = ?", userID)); err != nil {
			return err
		}

		// Explicit delete: sqlite does not enforce the cascade without the
		// foreign_keys pragma.
		if err := db.Where("user_id = ?", userID).Delete(&loginMethodRecord{}).Error; err != nil {
			return err
		}
		return db.Where("id = ?", userID).Delete(&domain.User{}).Error
	})

	return deleted, err
}

package store

import (
	"context"
	"time"

	"uniauth/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VerificationCodeStore struct{ db *gorm.DB }

func (s *Store) VerificationCodes() *VerificationCodeStore { return &VerificationCodeStore{db: s.DB} }

func (vs *VerificationCodeStore) Create(ctx context.Context, c *domain.VerificationCode) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	return vs.db.WithContext(ctx).Create(c).Error
}

// LatestUnused returns the most recently created unused code for email and
// purpose. Older unused codes are unreachable through this lookup.
func (vs *VerificationCodeStore) LatestUnused(ctx context.Context, email string, purpose domain.CodePurpose) (*domain.VerificationCode, error) {
	var c domain.VerificationCode
	err := vs.db.WithContext(ctx).
		Where("email = ? AND purpose = ? AND is_used = ?", email, purpose, false).
		Order("created_at DESC").
		First(&c).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// LatestUnusedAnyPurpose is used for resend cooldowns, which apply per email.
func (vs *VerificationCodeStore) LatestUnusedAnyPurpose(ctx context.Context, email string) (*domain.VerificationCode, error) {
	var c domain.VerificationCode
	err := vs.db.WithContext(ctx).
		Where("email = ? AND is_used = ?", email, false).
		Order("created_at DESC").
		First(&c).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// CountCreatedSince counts every code issued to email since the given time,
// including codes that were since deleted as expired or exhausted.
func (vs *VerificationCodeStore) CountCreatedSince(ctx context.Context, email string, since time.Time) (int64, error) {
	var n int64
	err := vs.db.WithContext(ctx).Unscoped().Model(&domain.VerificationCode{}).
		Where("email = ? AND created_at >= ?", email, since).
		Count(&n).Error
	return n, err
}

func (vs *VerificationCodeStore) ExistsUnused(ctx context.Context, email string, purpose domain.CodePurpose) (bool, error) {
	var n int64
	err := vs.db.WithContext(ctx).Model(&domain.VerificationCode{}).
		Where("email = ? AND purpose = ? AND is_used = ?", email, purpose, false).
		Count(&n).Error
	return n > 0, err
}

// Delete soft-deletes the code. Lookups no longer see it but the daily
// counter still does.
func (vs *VerificationCodeStore) Delete(ctx context.Context, id uuid.UUID) error {
	return vs.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.VerificationCode{}).Error
}

// RegisterFailure atomically increments the retry counter of an unused code
// under a row lock and returns the new value. A code already at maxRetries
// is left untouched. ErrRecordNotFound means the code was consumed or
// deleted concurrently.
func (vs *VerificationCodeStore) RegisterFailure(ctx context.Context, id uuid.UUID, maxRetries int, now time.Time) (int, error) {
	var retries int
	err := vs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c domain.VerificationCode
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND is_used = ?", id, false).
			First(&c).Error; err != nil {
			return translate(err)
		}
		if c.RetryCount >= maxRetries {
			retries = c.RetryCount
			return nil
		}
		if err := tx.Model(&domain.VerificationCode{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"retry_count": gorm.Expr("retry_count + ?", 1),
				"updated_at":  now,
			}).Error; err != nil {
			return err
		}
		retries = c.RetryCount + 1
		return nil
	})
	return retries, err
}

// Consume marks the code used if, and only if, it is still unused. It
// reports whether this call performed the transition.
func (vs *VerificationCodeStore) Consume(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := vs.db.WithContext(ctx).Model(&domain.VerificationCode{}).
		Where("id = ? AND is_used = ?", id, false).
		Updates(map[string]any{"is_used": true, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteExpired soft-deletes live codes past their expiry and returns how
// many it removed. Rows created before the current UTC day no longer feed
// the daily counter, so expired or deleted ones among them are purged.
func (vs *VerificationCodeStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := vs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("expires_at < ?", now).Delete(&domain.VerificationCode{})
		if res.Error != nil {
			return res.Error
		}
		n = res.RowsAffected

		day := now.UTC()
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		return tx.Unscoped().
			Where("created_at < ? AND (expires_at < ? OR deleted_at IS NOT NULL)", dayStart, now).
			Delete(&domain.VerificationCode{}).Error
	})
	return n, err
}

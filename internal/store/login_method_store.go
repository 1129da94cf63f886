package store

import (
	"context"
	"fmt"
	"time"

	"uniauth/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// loginMethodRecord is the flattened row behind domain.LoginMethod. Only the
// columns of the credential's provider are set.
type loginMethodRecord struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID            uuid.UUID  `gorm:"type:uuid;not null;index"`
	AuthProvider      string     `gorm:"type:varchar(16);not null;uniqueIndex:ux_login_provider_user,priority:1"`
	ProviderUserID    string     `gorm:"type:text;not null;uniqueIndex:ux_login_provider_user,priority:2"`
	LocalUsername     *string    `gorm:"type:text;uniqueIndex:ux_login_local_username"`
	LocalPasswordHash *string    `gorm:"type:text"`
	IsPrimary         bool       `gorm:"not null;default:false"`
	IsVerified        bool       `gorm:"not null;default:false"`
	LinkedAt          time.Time  `gorm:"not null"`
	LastUsedAt        *time.Time

	User *domain.User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (loginMethodRecord) TableName() string { return "user_login_methods" }

func toRecord(m *domain.LoginMethod) (*loginMethodRecord, error) {
	rec := &loginMethodRecord{
		ID:         m.ID,
		UserID:     m.UserID,
		IsPrimary:  m.IsPrimary,
		IsVerified: m.IsVerified,
		LinkedAt:   m.LinkedAt,
		LastUsedAt: m.LastUsedAt,
	}
	switch c := m.Credential.(type) {
	case domain.LocalCredential:
		username := c.Username
		rec.LocalUsername = &username
		if c.PasswordHash != "" {
			hash := c.PasswordHash
			rec.LocalPasswordHash = &hash
		}
	case domain.WalletCredential, domain.OAuthCredential:
	default:
		return nil, fmt.Errorf("%w: unsupported credential %T", domain.ErrValidation, m.Credential)
	}
	if !m.Credential.Provider().Valid() {
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrValidation, m.Credential.Provider())
	}
	rec.AuthProvider = string(m.Credential.Provider())
	rec.ProviderUserID = m.Credential.ProviderUserID()
	return rec, nil
}

func (r *loginMethodRecord) toDomain() domain.LoginMethod {
	m := domain.LoginMethod{
		ID:         r.ID,
		UserID:     r.UserID,
		IsPrimary:  r.IsPrimary,
		IsVerified: r.IsVerified,
		LinkedAt:   r.LinkedAt,
		LastUsedAt: r.LastUsedAt,
	}
	switch p := domain.AuthProvider(r.AuthProvider); p {
	case domain.ProviderLocal:
		c := domain.LocalCredential{}
		if r.LocalUsername != nil {
			c.Username = *r.LocalUsername
		}
		if r.LocalPasswordHash != nil {
			c.PasswordHash = *r.LocalPasswordHash
		}
		m.Credential = c
	case domain.ProviderWeb3:
		m.Credential = domain.WalletCredential{Address: r.ProviderUserID}
	default:
		m.Credential = domain.OAuthCredential{Kind: p, Subject: r.ProviderUserID}
	}
	return m
}

type LoginMethodStore struct{ db *gorm.DB }

func (s *Store) LoginMethods() *LoginMethodStore { return &LoginMethodStore{db: s.DB} }

func (ls *LoginMethodStore) Create(ctx context.Context, m *domain.LoginMethod) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.LinkedAt.IsZero() {
		m.LinkedAt = time.Now().UTC()
	}
	rec, err := toRecord(m)
	if err != nil {
		return err
	}
	return translate(ls.db.WithContext(ctx).Omit("User").Create(rec).Error)
}

func (ls *LoginMethodStore) GetByProvider(ctx context.Context, provider domain.AuthProvider, providerUserID string) (*domain.LoginMethod, error) {
	return ls.first(ctx, "auth_provider = ? AND provider_user_id = ?", provider, providerUserID)
}

func (ls *LoginMethodStore) GetByLocalUsername(ctx context.Context, username string) (*domain.LoginMethod, error) {
	return ls.first(ctx, "auth_provider = ? AND local_username = ?", domain.ProviderLocal, username)
}

func (ls *LoginMethodStore) first(ctx context.Context, query string, args ...any) (*domain.LoginMethod, error) {
	var rec loginMethodRecord
	if err := ls.db.WithContext(ctx).Where(query, args...).First(&rec).Error; err != nil {
		return nil, translate(err)
	}
	m := rec.toDomain()
	return &m, nil
}

func (ls *LoginMethodStore) ExistsByProvider(ctx context.Context, provider domain.AuthProvider, providerUserID string) (bool, error) {
	return ls.exists(ctx, "auth_provider = ? AND provider_user_id = ?", provider, providerUserID)
}

func (ls *LoginMethodStore) ExistsByLocalUsername(ctx context.Context, username string) (bool, error) {
	return ls.exists(ctx, "local_username = ?", username)
}

// UserHasProvider reports whether userID already owns a method of provider.
func (ls *LoginMethodStore) UserHasProvider(ctx context.Context, userID uuid.UUID, provider domain.AuthProvider) (bool, error) {
	return ls.exists(ctx, "user_id = ? AND auth_provider = ?", userID, provider)
}

func (ls *LoginMethodStore) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var n int64
	if err := ls.db.WithContext(ctx).Model(&loginMethodRecord{}).Where(query, args...).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (ls *LoginMethodStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.LoginMethod, error) {
	var recs []loginMethodRecord
	if err := ls.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("linked_at ASC").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]domain.LoginMethod, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toDomain())
	}
	return out, nil
}

func (ls *LoginMethodStore) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	res := ls.db.WithContext(ctx).Model(&loginMethodRecord{}).
		Where("id = ? AND auth_provider = ?", id, domain.ProviderLocal).
		Update("local_password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (ls *LoginMethodStore) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return ls.db.WithContext(ctx).Model(&loginMethodRecord{}).
		Where("id = ?", id).
		Update("last_used_at", at).Error
}

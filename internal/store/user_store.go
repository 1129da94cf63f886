package store

import (
	"context"
	"time"

	"uniauth/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserStore struct{ db *gorm.DB }

func (s *Store) Users() *UserStore { return &UserStore{db: s.DB} }

func (u *UserStore) Create(ctx context.Context, usr *domain.User) error {
	if usr.ID == uuid.Nil {
		usr.ID = uuid.New()
	}
	return translate(u.db.WithContext(ctx).Create(usr).Error)
}

func (u *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return u.first(ctx, "id = ?", id)
}

func (u *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return u.first(ctx, "email = ?", email)
}

func (u *UserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return u.first(ctx, "username = ?", username)
}

func (u *UserStore) first(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	if err := u.db.WithContext(ctx).First(&user, query, arg).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetWithLoginMethods loads the user and every login method it owns.
func (u *UserStore) GetWithLoginMethods(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := u.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	methods, err := (&LoginMethodStore{db: u.db}).ListByUser(ctx, id)
	if err != nil {
		return nil, err
	}
	user.LoginMethods = methods
	return user, nil
}

func (u *UserStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var n int64
	err := u.db.WithContext(ctx).Model(&domain.User{}).Where("username = ?", username).Count(&n).Error
	return n > 0, err
}

func (u *UserStore) TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"last_login_at": at, "updated_at": at}).Error
}

func (u *UserStore) SetEmailVerified(ctx context.Context, userID uuid.UUID) error {
	return u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Update("email_verified", true).Error
}

func (u *UserStore) SetEnabled(ctx context.Context, userID uuid.UUID, enabled bool) error {
	return u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Update("enabled", enabled).Error
}

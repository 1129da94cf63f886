package domain

import "time"

const RoleUser = "ROLE_USER"

type User struct {
	ID            UserID     `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	Username      string     `gorm:"type:text;not null;uniqueIndex:ux_users_username" db:"username" json:"username"`
	Email         string     `gorm:"type:text;not null;uniqueIndex:ux_users_email" db:"email" json:"email"`
	DisplayName   string     `gorm:"type:text" db:"display_name" json:"displayName"`
	Enabled       bool       `gorm:"not null" db:"enabled" json:"enabled"`
	EmailVerified bool       `gorm:"not null;default:false" db:"email_verified" json:"emailVerified"`
	Authorities   []string   `gorm:"type:text;serializer:json" db:"authorities" json:"authorities"`
	CreatedAt     time.Time  `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `gorm:"not null" db:"updated_at" json:"updatedAt"`
	LastLoginAt   *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`

	// Populated by the store on explicit load; never persisted through User.
	LoginMethods []LoginMethod `gorm:"-" json:"-"`
}

func (User) TableName() string { return "users" }

// HasAuthority reports whether the user holds role.
func (u *User) HasAuthority(role string) bool {
	for _, a := range u.Authorities {
		if a == role {
			return true
		}
	}
	return false
}

// WalletMethod returns the user's WEB3 login method, if loaded and present.
func (u *User) WalletMethod() (*LoginMethod, bool) {
	for i := range u.LoginMethods {
		if u.LoginMethods[i].Provider() == ProviderWeb3 {
			return &u.LoginMethods[i], true
		}
	}
	return nil, false
}

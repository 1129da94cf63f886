package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CodePurpose string

const (
	PurposeRegistration  CodePurpose = "REGISTRATION"
	PurposeLogin         CodePurpose = "LOGIN"
	PurposePasswordReset CodePurpose = "PASSWORD_RESET"
)

func (p CodePurpose) Valid() bool {
	switch p {
	case PurposeRegistration, PurposeLogin, PurposePasswordReset:
		return true
	}
	return false
}

type VerificationCode struct {
	ID         uuid.UUID   `gorm:"type:uuid;primaryKey" db:"id"`
	Email      string      `gorm:"type:text;not null;index:ix_codes_email_purpose" db:"email"`
	Code       string      `gorm:"type:varchar(16);not null" db:"code"`
	Purpose    CodePurpose `gorm:"type:varchar(32);not null;index:ix_codes_email_purpose" db:"purpose"`
	Metadata   string      `gorm:"type:text" db:"metadata"`
	ExpiresAt  time.Time   `gorm:"not null;index" db:"expires_at"`
	RetryCount int         `gorm:"not null;default:0" db:"retry_count"`
	IsUsed     bool        `gorm:"not null;default:false" db:"is_used"`
	CreatedAt  time.Time   `gorm:"not null" db:"created_at"`
	UpdatedAt  time.Time   `gorm:"not null" db:"updated_at"`

	// Deleted codes keep counting toward the daily send cap until swept.
	DeletedAt gorm.DeletedAt `gorm:"index" db:"deleted_at"`
}

func (VerificationCode) TableName() string { return "email_verification_codes" }

func (c *VerificationCode) Expired(now time.Time) bool { return now.After(c.ExpiresAt) }

// VerificationStatus is the outcome of checking a submitted code.
type VerificationStatus string

const (
	VerificationSuccess            VerificationStatus = "SUCCESS"
	VerificationNotFound           VerificationStatus = "NOT_FOUND"
	VerificationExpired            VerificationStatus = "EXPIRED"
	VerificationInvalid            VerificationStatus = "INVALID"
	VerificationMaxRetriesExceeded VerificationStatus = "MAX_RETRIES_EXCEEDED"
)

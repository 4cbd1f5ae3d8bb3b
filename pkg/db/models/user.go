package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sportedge/sportedge-backend/pkg/enums"
)

// User is a shopper or administrator account.
type User struct {
	ID                     uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	FirstName              string         `gorm:"column:first_name;not null"`
	LastName               string         `gorm:"column:last_name;not null"`
	Email                  string         `gorm:"column:email;not null;uniqueIndex"`
	PasswordHash           string         `gorm:"column:password_hash;not null"`
	Role                   enums.UserRole `gorm:"column:role;type:varchar(16);not null;default:'user'"`
	Country                string         `gorm:"column:country;not null"`
	City                   string         `gorm:"column:city;not null"`
	Address                string         `gorm:"column:address;not null"`
	DateOfBirth            *time.Time     `gorm:"column:date_of_birth;type:date"`
	PasswordResetTokenHash *string        `gorm:"column:password_reset_token_hash;index"`
	PasswordResetExpiresAt *time.Time     `gorm:"column:password_reset_expires_at"`
	LastLoginAt            *time.Time     `gorm:"column:last_login_at"`
	CreatedAt              time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	assignID(&u.ID)
	if u.Role == "" {
		u.Role = enums.UserRoleUser
	}
	return nil
}

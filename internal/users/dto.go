package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sportedge/sportedge-backend/pkg/db/models"
	"github.com/sportedge/sportedge-backend/pkg/enums"
)

// MinPasswordLength applies to registration, password changes and resets.
const MinPasswordLength = 8

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID          uuid.UUID      `json:"id"`
	Email       string         `json:"email"`
	FirstName   string         `json:"first_name"`
	LastName    string         `json:"last_name"`
	Role        enums.UserRole `json:"role"`
	Country     string         `json:"country"`
	City        string         `json:"city"`
	Address     string         `json:"address"`
	DateOfBirth *time.Time     `json:"date_of_birth,omitempty"`
	LastLoginAt *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         enums.UserRole
	Country      string
	City         string
	Address      string
	DateOfBirth  *time.Time
}

// ProfileInput is the editable part of an account.
type ProfileInput struct {
	FirstName   string     `json:"first_name" validate:"required,max=100"`
	LastName    string     `json:"last_name" validate:"required,max=100"`
	Country     string     `json:"country" validate:"required,max=100"`
	City        string     `json:"city" validate:"required,max=100"`
	Address     string     `json:"address" validate:"required,max=100"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
}

func (p ProfileInput) trimmed() ProfileInput {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Country = strings.TrimSpace(p.Country)
	p.City = strings.TrimSpace(p.City)
	p.Address = strings.TrimSpace(p.Address)
	return p
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

type SetRoleInput struct {
	Role enums.UserRole `json:"role" validate:"required"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		Country:     u.Country,
		City:        u.City,
		Address:     u.Address,
		DateOfBirth: u.DateOfBirth,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	role := c.Role
	if role == "" {
		role = enums.UserRoleUser
	}
	return &models.User{
		Email:        c.Email,
		PasswordHash: c.PasswordHash,
		FirstName:    c.FirstName,
		LastName:     c.LastName,
		Role:         role,
		Country:      c.Country,
		City:         c.City,
		Address:      c.Address,
		DateOfBirth:  c.DateOfBirth,
	}
}

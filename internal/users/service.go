package users

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sportedge/sportedge-backend/pkg/config"
	"github.com/sportedge/sportedge-backend/pkg/db/models"
	"github.com/sportedge/sportedge-backend/pkg/enums"
	pkgerrors "github.com/sportedge/sportedge-backend/pkg/errors"
	"github.com/sportedge/sportedge-backend/pkg/logger"
	"github.com/sportedge/sportedge-backend/pkg/pagination"
	"github.com/sportedge/sportedge-backend/pkg/security"
)

// Service covers self-service account operations and admin user management.
type Service interface {
	Me(ctx context.Context, userID uuid.UUID) (*UserDTO, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, input ProfileInput) (*UserDTO, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, input ChangePasswordInput) error
	ListUsers(ctx context.Context, params pagination.Params) (pagination.Page[UserDTO], error)
	SetRole(ctx context.Context, actorID, userID uuid.UUID, role enums.UserRole) (*UserDTO, error)
}

type service struct {
	repo     *Repository
	password config.PasswordConfig
	logg     *logger.Logger
}

func NewService(repo *Repository, password config.PasswordConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, password: password, logg: logg}, nil
}

func (s *service) load(ctx context.Context, userID uuid.UUID) (*UserDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return FromModel(user), nil
}

func (s *service) Me(ctx context.Context, userID uuid.UUID) (*UserDTO, error) {
	return s.load(ctx, userID)
}

func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, input ProfileInput) (*UserDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	input = input.trimmed()
	if field := missingProfileField(input); field != "" {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s is required", field).
			WithDetails(map[string]any{"field": field})
	}
	rows, err := s.repo.UpdateProfile(ctx, userID, input)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update profile")
	}
	if rows == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return s.load(ctx, userID)
}

func missingProfileField(p ProfileInput) string {
	switch {
	case p.FirstName == "":
		return "first_name"
	case p.LastName == "":
		return "last_name"
	case p.Country == "":
		return "country"
	case p.City == "":
		return "city"
	case p.Address == "":
		return "address"
	}
	return ""
}

func (s *service) ChangePassword(ctx context.Context, userID uuid.UUID, input ChangePasswordInput) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if len(input.NewPassword) < MinPasswordLength {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "password must be at least %d characters", MinPasswordLength)
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	ok, err := security.VerifyPassword(input.CurrentPassword, user.PasswordHash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "current password is incorrect")
	}
	hash, err := security.HashPassword(input.NewPassword, s.password)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update password")
	}
	s.logg.Info(s.logg.WithUserID(ctx, userID.String()), "user.password_changed")
	return nil
}

func (s *service) ListUsers(ctx context.Context, params pagination.Params) (pagination.Page[UserDTO], error) {
	params = params.Normalize()
	rows, total, err := s.repo.List(ctx, params)
	if err != nil {
		return pagination.Page[UserDTO]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	page := pagination.NewPage(rows, params, total)
	return pagination.Map(page, func(u models.User) UserDTO { return *FromModel(&u) }), nil
}

func (s *service) SetRole(ctx context.Context, actorID, userID uuid.UUID, role enums.UserRole) (*UserDTO, error) {
	if !role.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid role %q", role)
	}
	target, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if target.Role == role {
		return target, nil
	}
	if target.Role == enums.UserRoleAdmin {
		if actorID == userID {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "admins cannot demote themselves")
		}
		admins, err := s.repo.CountByRole(ctx, enums.UserRoleAdmin)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count admins")
		}
		if admins <= 1 {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "at least one admin must remain")
		}
	}
	if _, err := s.repo.SetRole(ctx, userID, role); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set role")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"actor_id": actorID.String(),
		"user_id":  userID.String(),
		"role":     role.String(),
	}), "user.role_changed")
	return s.load(ctx, userID)
}

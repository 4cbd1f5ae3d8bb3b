package auth

import (
	"context"
	"strings"

	"github.com/sportedge/sportedge-backend/internal/users"
	"github.com/sportedge/sportedge-backend/pkg/db"
	"github.com/sportedge/sportedge-backend/pkg/enums"
	pkgerrors "github.com/sportedge/sportedge-backend/pkg/errors"
	"github.com/sportedge/sportedge-backend/pkg/security"
)

const emailTakenMessage = "email already registered"

// Register opens a shopper account. Admins are promoted afterwards.
func (s *service) Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error) {
	req = trimRegister(req)
	if field := missingRegisterField(req); field != "" {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s is required", field).
			WithDetails(map[string]any{"field": field})
	}
	if len(req.Password) < users.MinPasswordLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "password must be at least %d characters", users.MinPasswordLength)
	}
	if req.DateOfBirth != nil && req.DateOfBirth.After(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "date_of_birth cannot be in the future")
	}

	existing, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check user email")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, emailTakenMessage)
	}

	passwordHash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	user, err := s.users.Create(ctx, users.CreateUserDTO{
		Email:        req.Email,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         enums.UserRoleUser,
		Country:      req.Country,
		City:         req.City,
		Address:      req.Address,
		DateOfBirth:  req.DateOfBirth,
	})
	if err != nil {
		// lost a race with a concurrent signup for the same address
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, emailTakenMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
	}

	s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "auth.registered")
	return users.FromModel(user), nil
}

func trimRegister(req RegisterRequest) RegisterRequest {
	req.Email = normalizeEmail(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Country = strings.TrimSpace(req.Country)
	req.City = strings.TrimSpace(req.City)
	req.Address = strings.TrimSpace(req.Address)
	return req
}

func missingRegisterField(req RegisterRequest) string {
	switch {
	case req.Email == "":
		return "email"
	case req.FirstName == "":
		return "first_name"
	case req.LastName == "":
		return "last_name"
	case req.Country == "":
		return "country"
	case req.City == "":
		return "city"
	case req.Address == "":
		return "address"
	}
	return ""
}

package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sportedge/sportedge-backend/internal/repo"
	"github.com/sportedge/sportedge-backend/pkg/db"
	"github.com/sportedge/sportedge-backend/pkg/db/models"
	"github.com/sportedge/sportedge-backend/pkg/enums"
	"github.com/sportedge/sportedge-backend/pkg/pagination"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	repo.Base
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// WithTx returns a repository that runs every query on tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

// Create inserts a new user and returns the persisted model.
func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.DB(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail returns nil when no account uses email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.take(ctx, "email = ?", email)
}

// FindByID returns nil when the user does not exist.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.take(ctx, "id = ?", id)
}

// FindByResetTokenHash looks up the account holding an outstanding reset token.
func (r *Repository) FindByResetTokenHash(ctx context.Context, digest string) (*models.User, error) {
	return r.take(ctx, "password_reset_token_hash = ?", digest)
}

func (r *Repository) take(ctx context.Context, where string, arg any) (*models.User, error) {
	var user models.User
	err := r.DB(ctx).Where(where, arg).Take(&user).Error
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin refreshes the user's last_login_at timestamp.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

// UpdateProfile overwrites the editable profile columns.
func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, profile ProfileInput) (int64, error) {
	res := r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"first_name":    profile.FirstName,
			"last_name":     profile.LastName,
			"country":       profile.Country,
			"city":          profile.City,
			"address":       profile.Address,
			"date_of_birth": profile.DateOfBirth,
		})
	return res.RowsAffected, res.Error
}

// UpdatePassword stores a new hash and drops any outstanding reset token.
func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"password_hash":             hash,
			"password_reset_token_hash": nil,
			"password_reset_expires_at": nil,
		}).Error
}

// SetResetToken records the digest of a freshly issued reset token.
func (r *Repository) SetResetToken(ctx context.Context, id uuid.UUID, digest string, expiresAt time.Time) error {
	return r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"password_reset_token_hash": digest,
			"password_reset_expires_at": expiresAt,
		}).Error
}

// ClearExpiredResetTokens drops reset digests whose window closed before now.
func (r *Repository) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res := r.DB(ctx).
		Model(&models.User{}).
		Where("password_reset_token_hash IS NOT NULL AND password_reset_expires_at < ?", now).
		Updates(map[string]any{
			"password_reset_token_hash": nil,
			"password_reset_expires_at": nil,
		})
	return res.RowsAffected, res.Error
}

// SetRole changes the account role and reports how many rows matched.
func (r *Repository) SetRole(ctx context.Context, id uuid.UUID, role enums.UserRole) (int64, error) {
	res := r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("role", role)
	return res.RowsAffected, res.Error
}

// CountByRole is used to keep at least one administrator around.
func (r *Repository) CountByRole(ctx context.Context, role enums.UserRole) (int64, error) {
	var n int64
	err := r.DB(ctx).Model(&models.User{}).Where("role = ?", role).Count(&n).Error
	return n, err
}

// List pages through accounts ordered by signup time, newest first.
func (r *Repository) List(ctx context.Context, params pagination.Params) ([]models.User, int64, error) {
	q := r.DB(ctx).Model(&models.User{})

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.User
	err := q.Order("created_at DESC").
		Order("id ASC").
		Scopes(repo.Page(params)).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

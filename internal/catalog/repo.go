package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sportedge/sportedge-backend/internal/repo"
	"github.com/sportedge/sportedge-backend/pkg/db/models"
)

// Repository persists the reference data products hang off: brands,
// categories, genders and size options.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func findByID[T any](db *gorm.DB, id uuid.UUID) (*T, error) {
	var row T
	err := db.Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func count(db *gorm.DB, table, where string, args ...any) (int64, error) {
	var n int64
	err := db.Table(table).Where(where, args...).Count(&n).Error
	return n, err
}

func (r *Repository) ListBrands(ctx context.Context) ([]models.Brand, error) {
	var rows []models.Brand
	err := r.DB(ctx).Order("name ASC").Find(&rows).Error
	return rows, err
}

func (r *Repository) FindBrand(ctx context.Context, id uuid.UUID) (*models.Brand, error) {
	return findByID[models.Brand](r.DB(ctx), id)
}

func (r *Repository) CreateBrand(ctx context.Context, brand *models.Brand) error {
	return r.DB(ctx).Create(brand).Error
}

func (r *Repository) RenameBrand(ctx context.Context, id uuid.UUID, name string) error {
	return r.DB(ctx).Model(&models.Brand{}).Where("id = ?", id).Update("name", name).Error
}

func (r *Repository) DeleteBrand(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Where("id = ?", id).Delete(&models.Brand{}).Error
}

// ListCategories returns every category with its parent, roots first.
func (r *Repository) ListCategories(ctx context.Context) ([]models.Category, error) {
	var rows []models.Category
	err := r.DB(ctx).
		Preload("Parent").
		Order("CASE WHEN parent_id IS NULL THEN 0 ELSE 1 END").
		Order("name ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) FindCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var row models.Category
	err := r.DB(ctx).Preload("Parent").Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) CreateCategory(ctx context.Context, category *models.Category) error {
	return r.DB(ctx).Omit("Parent").Create(category).Error
}

func (r *Repository) UpdateCategory(ctx context.Context, id uuid.UUID, name string, parentID *uuid.UUID) error {
	return r.DB(ctx).Model(&models.Category{}).Where("id = ?", id).
		Updates(map[string]any{"name": name, "parent_id": parentID}).Error
}

func (r *Repository) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Where("id = ?", id).Delete(&models.Category{}).Error
}

func (r *Repository) ListGenders(ctx context.Context) ([]models.Gender, error) {
	var rows []models.Gender
	err := r.DB(ctx).Order("name ASC").Find(&rows).Error
	return rows, err
}

func (r *Repository) FindGender(ctx context.Context, id uuid.UUID) (*models.Gender, error) {
	return findByID[models.Gender](r.DB(ctx), id)
}

func (r *Repository) CreateGender(ctx context.Context, gender *models.Gender) error {
	return r.DB(ctx).Create(gender).Error
}

func (r *Repository) RenameGender(ctx context.Context, id uuid.UUID, name string) error {
	return r.DB(ctx).Model(&models.Gender{}).Where("id = ?", id).Update("name", name).Error
}

func (r *Repository) DeleteGender(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Where("id = ?", id).Delete(&models.Gender{}).Error
}

// ListSizeOptions orders by gender then sort order. A nil genderID lists all.
func (r *Repository) ListSizeOptions(ctx context.Context, genderID *uuid.UUID) ([]models.SizeOption, error) {
	q := r.DB(ctx).Preload("Gender")
	if genderID != nil {
		q = q.Where("gender_id = ?", *genderID)
	}
	var rows []models.SizeOption
	err := q.Order("gender_id ASC").Order("sort_order ASC").Order("label ASC").Find(&rows).Error
	return rows, err
}

func (r *Repository) FindSizeOption(ctx context.Context, id uuid.UUID) (*models.SizeOption, error) {
	var row models.SizeOption
	err := r.DB(ctx).Preload("Gender").Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) CreateSizeOption(ctx context.Context, option *models.SizeOption) error {
	return r.DB(ctx).Omit("Gender").Create(option).Error
}

func (r *Repository) UpdateSizeOption(ctx context.Context, option *models.SizeOption) error {
	return r.DB(ctx).Model(&models.SizeOption{}).Where("id = ?", option.ID).
		Updates(map[string]any{
			"gender_id":  option.GenderID,
			"label":      option.Label,
			"sort_order": option.SortOrder,
		}).Error
}

func (r *Repository) DeleteSizeOption(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Where("id = ?", id).Delete(&models.SizeOption{}).Error
}

// Reference counts backing the restrict-on-delete rules.

func (r *Repository) CountProductsByBrand(ctx context.Context, brandID uuid.UUID) (int64, error) {
	return count(r.DB(ctx), "products", "brand_id = ?", brandID)
}

func (r *Repository) CountProductsByGender(ctx context.Context, genderID uuid.UUID) (int64, error) {
	return count(r.DB(ctx), "products", "gender_id = ?", genderID)
}

func (r *Repository) CountSizeOptionsByGender(ctx context.Context, genderID uuid.UUID) (int64, error) {
	return count(r.DB(ctx), "size_options", "gender_id = ?", genderID)
}

func (r *Repository) CountSubcategories(ctx context.Context, categoryID uuid.UUID) (int64, error) {
	return count(r.DB(ctx), "categories", "parent_id = ?", categoryID)
}

func (r *Repository) CountProductsInCategory(ctx context.Context, categoryID uuid.UUID) (int64, error) {
	return count(r.DB(ctx), "product_categories", "category_id = ?", categoryID)
}

func (r *Repository) CountVariationsBySizeOption(ctx context.Context, sizeOptionID uuid.UUID) (int64, error) {
	return count(r.DB(ctx), "product_variations", "size_option_id = ?", sizeOptionID)
}

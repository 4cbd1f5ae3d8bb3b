package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sportedge/sportedge-backend/pkg/db"
	"github.com/sportedge/sportedge-backend/pkg/db/models"
	pkgerrors "github.com/sportedge/sportedge-backend/pkg/errors"
	"github.com/sportedge/sportedge-backend/pkg/logger"
)

// Service manages catalog reference data. Writes are admin-only; the HTTP
// layer enforces the role.
type Service interface {
	ListBrands(ctx context.Context) ([]BrandDTO, error)
	GetBrand(ctx context.Context, id uuid.UUID) (*BrandDTO, error)
	CreateBrand(ctx context.Context, input NameInput) (*BrandDTO, error)
	UpdateBrand(ctx context.Context, id uuid.UUID, input NameInput) (*BrandDTO, error)
	DeleteBrand(ctx context.Context, id uuid.UUID) error

	ListCategories(ctx context.Context) ([]CategoryDTO, error)
	GetCategory(ctx context.Context, id uuid.UUID) (*CategoryDTO, error)
	CreateCategory(ctx context.Context, input CategoryInput) (*CategoryDTO, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, input CategoryInput) (*CategoryDTO, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error

	ListGenders(ctx context.Context) ([]GenderDTO, error)
	GetGender(ctx context.Context, id uuid.UUID) (*GenderDTO, error)
	CreateGender(ctx context.Context, input NameInput) (*GenderDTO, error)
	UpdateGender(ctx context.Context, id uuid.UUID, input NameInput) (*GenderDTO, error)
	DeleteGender(ctx context.Context, id uuid.UUID) error

	ListSizeOptions(ctx context.Context, genderID *uuid.UUID) ([]SizeOptionDTO, error)
	GetSizeOption(ctx context.Context, id uuid.UUID) (*SizeOptionDTO, error)
	CreateSizeOption(ctx context.Context, input SizeOptionInput) (*SizeOptionDTO, error)
	UpdateSizeOption(ctx context.Context, id uuid.UUID, input SizeOptionInput) (*SizeOptionDTO, error)
	DeleteSizeOption(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, logg: logg}, nil
}

func notFound(kind string, id uuid.UUID) error {
	return pkgerrors.Newf(pkgerrors.CodeNotFound, "%s not found", kind).
		WithDetails(map[string]any{"id": id.String()})
}

func inUse(kind, by string, n int64) error {
	return pkgerrors.Newf(pkgerrors.CodeConflict, "%s is still referenced by %d %s", kind, n, by)
}

// writeErr maps persistence failures on insert/update.
func writeErr(err error, kind, name string) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Newf(pkgerrors.CodeConflict, "%s %q already exists", kind, name)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save "+kind)
}

func cleanName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	return trimmed, nil
}

func (s *service) ListBrands(ctx context.Context) ([]BrandDTO, error) {
	rows, err := s.repo.ListBrands(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list brands")
	}
	return mapAll(rows, brandDTO), nil
}

func (s *service) GetBrand(ctx context.Context, id uuid.UUID) (*BrandDTO, error) {
	brand, err := s.repo.FindBrand(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load brand")
	}
	if brand == nil {
		return nil, notFound("brand", id)
	}
	dto := brandDTO(*brand)
	return &dto, nil
}

func (s *service) CreateBrand(ctx context.Context, input NameInput) (*BrandDTO, error) {
	name, err := cleanName(input.Name)
	if err != nil {
		return nil, err
	}
	brand := &models.Brand{Name: name}
	if err := s.repo.CreateBrand(ctx, brand); err != nil {
		return nil, writeErr(err, "brand", name)
	}
	s.logg.Info(s.logg.WithField(ctx, "brand_id", brand.ID.String()), "catalog.brand_created")
	dto := brandDTO(*brand)
	return &dto, nil
}

func (s *service) UpdateBrand(ctx context.Context, id uuid.UUID, input NameInput) (*BrandDTO, error) {
	name, err := cleanName(input.Name)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetBrand(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.RenameBrand(ctx, id, name); err != nil {
		return nil, writeErr(err, "brand", name)
	}
	return s.GetBrand(ctx, id)
}

func (s *service) DeleteBrand(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetBrand(ctx, id); err != nil {
		return err
	}
	n, err := s.repo.CountProductsByBrand(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count brand products")
	}
	if n > 0 {
		return inUse("brand", "products", n)
	}
	if err := s.repo.DeleteBrand(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete brand")
	}
	return nil
}

func (s *service) ListCategories(ctx context.Context) ([]CategoryDTO, error) {
	rows, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	return mapAll(rows, categoryDTO), nil
}

func (s *service) GetCategory(ctx context.Context, id uuid.UUID) (*CategoryDTO, error) {
	category, err := s.repo.FindCategory(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load category")
	}
	if category == nil {
		return nil, notFound("category", id)
	}
	dto := categoryDTO(*category)
	return &dto, nil
}

func (s *service) CreateCategory(ctx context.Context, input CategoryInput) (*CategoryDTO, error) {
	name, err := cleanName(input.Name)
	if err != nil {
		return nil, err
	}
	if err := s.checkParent(ctx, uuid.Nil, input.ParentID); err != nil {
		return nil, err
	}
	category := &models.Category{Name: name, ParentID: input.ParentID}
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		return nil, writeErr(err, "category", name)
	}
	return s.GetCategory(ctx, category.ID)
}

func (s *service) UpdateCategory(ctx context.Context, id uuid.UUID, input CategoryInput) (*CategoryDTO, error) {
	name, err := cleanName(input.Name)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetCategory(ctx, id); err != nil {
		return nil, err
	}
	if err := s.checkParent(ctx, id, input.ParentID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCategory(ctx, id, name, input.ParentID); err != nil {
		return nil, writeErr(err, "category", name)
	}
	return s.GetCategory(ctx, id)
}

// checkParent requires the parent to exist and rejects moves that would put
// a category beneath itself.
func (s *service) checkParent(ctx context.Context, self uuid.UUID, parentID *uuid.UUID) error {
	if parentID == nil {
		return nil
	}
	seen := map[uuid.UUID]bool{}
	current := *parentID
	for {
		if current == self {
			return pkgerrors.New(pkgerrors.CodeValidation, "category cannot be its own ancestor")
		}
		if seen[current] {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "category tree contains a cycle")
		}
		seen[current] = true
		parent, err := s.repo.FindCategory(ctx, current)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load parent category")
		}
		if parent == nil {
			if current == *parentID {
				return pkgerrors.New(pkgerrors.CodeValidation, "parent category not found").
					WithDetails(map[string]any{"parent_id": parentID.String()})
			}
			return nil
		}
		if parent.ParentID == nil {
			return nil
		}
		current = *parent.ParentID
	}
}

func (s *service) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetCategory(ctx, id); err != nil {
		return err
	}
	n, err := s.repo.CountSubcategories(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count subcategories")
	}
	if n > 0 {
		return inUse("category", "subcategories", n)
	}
	n, err = s.repo.CountProductsInCategory(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count category products")
	}
	if n > 0 {
		return inUse("category", "products", n)
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete category")
	}
	return nil
}

func (s *service) ListGenders(ctx context.Context) ([]GenderDTO, error) {
	rows, err := s.repo.ListGenders(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list genders")
	}
	return mapAll(rows, genderDTO), nil
}

func (s *service) GetGender(ctx context.Context, id uuid.UUID) (*GenderDTO, error) {
	gender, err := s.repo.FindGender(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gender")
	}
	if gender == nil {
		return nil, notFound("gender", id)
	}
	dto := genderDTO(*gender)
	return &dto, nil
}

func (s *service) CreateGender(ctx context.Context, input NameInput) (*GenderDTO, error) {
	name, err := cleanName(input.Name)
	if err != nil {
		return nil, err
	}
	gender := &models.Gender{Name: name}
	if err := s.repo.CreateGender(ctx, gender); err != nil {
		return nil, writeErr(err, "gender", name)
	}
	dto := genderDTO(*gender)
	return &dto, nil
}

func (s *service) UpdateGender(ctx context.Context, id uuid.UUID, input NameInput) (*GenderDTO, error) {
	name, err := cleanName(input.Name)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetGender(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.RenameGender(ctx, id, name); err != nil {
		return nil, writeErr(err, "gender", name)
	}
	return s.GetGender(ctx, id)
}

func (s *service) DeleteGender(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetGender(ctx, id); err != nil {
		return err
	}
	n, err := s.repo.CountProductsByGender(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count gender products")
	}
	if n > 0 {
		return inUse("gender", "products", n)
	}
	n, err = s.repo.CountSizeOptionsByGender(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count gender size options")
	}
	if n > 0 {
		return inUse("gender", "size options", n)
	}
	if err := s.repo.DeleteGender(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete gender")
	}
	return nil
}

func (s *service) ListSizeOptions(ctx context.Context, genderID *uuid.UUID) ([]SizeOptionDTO, error) {
	rows, err := s.repo.ListSizeOptions(ctx, genderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list size options")
	}
	return mapAll(rows, sizeOptionDTO), nil
}

func (s *service) GetSizeOption(ctx context.Context, id uuid.UUID) (*SizeOptionDTO, error) {
	option, err := s.repo.FindSizeOption(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load size option")
	}
	if option == nil {
		return nil, notFound("size option", id)
	}
	dto := sizeOptionDTO(*option)
	return &dto, nil
}

func (s *service) sizeOptionFromInput(ctx context.Context, input SizeOptionInput) (*models.SizeOption, error) {
	label := strings.TrimSpace(input.Label)
	if label == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "label is required")
	}
	if input.SortOrder < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sort order must not be negative")
	}
	gender, err := s.repo.FindGender(ctx, input.GenderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gender")
	}
	if gender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gender not found").
			WithDetails(map[string]any{"gender_id": input.GenderID.String()})
	}
	return &models.SizeOption{GenderID: gender.ID, Label: label, SortOrder: input.SortOrder}, nil
}

func (s *service) CreateSizeOption(ctx context.Context, input SizeOptionInput) (*SizeOptionDTO, error) {
	option, err := s.sizeOptionFromInput(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateSizeOption(ctx, option); err != nil {
		return nil, writeErr(err, "size option", option.Label)
	}
	return s.GetSizeOption(ctx, option.ID)
}

func (s *service) UpdateSizeOption(ctx context.Context, id uuid.UUID, input SizeOptionInput) (*SizeOptionDTO, error) {
	existing, err := s.GetSizeOption(ctx, id)
	if err != nil {
		return nil, err
	}
	option, err := s.sizeOptionFromInput(ctx, input)
	if err != nil {
		return nil, err
	}
	if option.GenderID != existing.GenderID {
		n, err := s.repo.CountVariationsBySizeOption(ctx, id)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count size option variations")
		}
		if n > 0 {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "cannot move a size option that variations use to another gender")
		}
	}
	option.ID = id
	if err := s.repo.UpdateSizeOption(ctx, option); err != nil {
		return nil, writeErr(err, "size option", option.Label)
	}
	return s.GetSizeOption(ctx, id)
}

func (s *service) DeleteSizeOption(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetSizeOption(ctx, id); err != nil {
		return err
	}
	n, err := s.repo.CountVariationsBySizeOption(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count size option variations")
	}
	if n > 0 {
		return inUse("size option", "variations", n)
	}
	if err := s.repo.DeleteSizeOption(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete size option")
	}
	return nil
}

package products

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sportedge/sportedge-backend/pkg/db"
	"github.com/sportedge/sportedge-backend/pkg/db/models"
	"github.com/sportedge/sportedge-backend/pkg/enums"
	pkgerrors "github.com/sportedge/sportedge-backend/pkg/errors"
	"github.com/sportedge/sportedge-backend/pkg/logger"
	"github.com/sportedge/sportedge-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes product browsing and admin management.
type Service interface {
	CreateProduct(ctx context.Context, input ProductInput) (*ProductDTO, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, input ProductInput) (*ProductDTO, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	SearchProducts(ctx context.Context, filter SearchFilter) (pagination.Page[ProductSummaryDTO], error)

	ListVariations(ctx context.Context, productID uuid.UUID) ([]VariationDTO, error)
	SetVariationStock(ctx context.Context, productID, variationID uuid.UUID, input StockInput) (*VariationDTO, error)

	AddImage(ctx context.Context, productID uuid.UUID, input ImageInput) (*ImageDTO, error)
	ListImages(ctx context.Context, productID uuid.UUID) ([]ImageDTO, error)
	DeleteImage(ctx context.Context, productID, imageID uuid.UUID) error
}

type service struct {
	repo *Repository
	tx   txRunner
	logg *logger.Logger
}

func NewService(repo *Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

func productNotFound(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
		WithDetails(map[string]any{"product_id": id.String()})
}

// CreateProduct stores the product and one zero-stock variation per size
// option of its gender.
func (s *service) CreateProduct(ctx context.Context, input ProductInput) (*ProductDTO, error) {
	product, categoryIDs, err := s.productFromInput(ctx, input)
	if err != nil {
		return nil, err
	}

	variationCount := 0
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateProduct(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
		}
		if err := repo.ReplaceCategories(ctx, product.ID, categoryIDs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link product categories")
		}
		sizes, err := repo.SizeOptionsForGender(ctx, product.GenderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load size options")
		}
		variations := make([]models.ProductVariation, 0, len(sizes))
		for _, size := range sizes {
			variations = append(variations, models.ProductVariation{
				ProductID:    product.ID,
				SizeOptionID: size.ID,
			})
		}
		if err := repo.CreateVariations(ctx, variations); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product variations")
		}
		variationCount = len(variations)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"product_id": product.ID.String(),
		"variations": variationCount,
	}), "product.created")
	return s.GetProduct(ctx, product.ID)
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product == nil {
		return nil, productNotFound(id)
	}
	dto := toProductDTO(*product)
	return &dto, nil
}

// UpdateProduct replaces the product's fields and categories. The gender is
// fixed once variations exist since they are bound to its size options.
func (s *service) UpdateProduct(ctx context.Context, id uuid.UUID, input ProductInput) (*ProductDTO, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if existing == nil {
		return nil, productNotFound(id)
	}
	product, categoryIDs, err := s.productFromInput(ctx, input)
	if err != nil {
		return nil, err
	}
	if product.GenderID != existing.GenderID && len(existing.Variations) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "gender cannot change once the product has variations")
	}
	product.ID = id

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateProduct(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
		}
		if err := repo.ReplaceCategories(ctx, id, categoryIDs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link product categories")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, id)
}

// DeleteProduct refuses while any cart or order line references one of the
// product's variations.
func (s *service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.Exists(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if !ok {
			return productNotFound(id)
		}
		refs, err := repo.CountLineReferences(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count product references")
		}
		if refs > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "product variations are referenced by carts or orders").
				WithDetails(map[string]any{"references": refs})
		}
		if err := repo.DeleteProduct(ctx, id); err != nil {
			if db.IsForeignKeyViolation(err) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "product variations are referenced by carts or orders")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
		}
		return nil
	})
}

func (s *service) SearchProducts(ctx context.Context, filter SearchFilter) (pagination.Page[ProductSummaryDTO], error) {
	filter.Page = filter.Page.Normalize()
	if filter.Sort == "" {
		filter.Sort = enums.ProductSortNewest
	}
	if !filter.Sort.IsValid() {
		return pagination.Page[ProductSummaryDTO]{}, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid sort %q", filter.Sort)
	}
	if filter.MinPrice != nil && filter.MaxPrice != nil && filter.MinPrice.GreaterThan(*filter.MaxPrice) {
		return pagination.Page[ProductSummaryDTO]{}, pkgerrors.New(pkgerrors.CodeValidation, "min price must not exceed max price")
	}

	rows, total, err := s.repo.Search(ctx, filter)
	if err != nil {
		return pagination.Page[ProductSummaryDTO]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search products")
	}
	items := make([]ProductSummaryDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, toSummaryDTO(row))
	}
	return pagination.NewPage(items, filter.Page, total), nil
}

func (s *service) ListVariations(ctx context.Context, productID uuid.UUID) ([]VariationDTO, error) {
	if err := s.requireProduct(ctx, productID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListVariations(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list variations")
	}
	out := make([]VariationDTO, 0, len(rows))
	for _, v := range rows {
		out = append(out, toVariationDTO(v))
	}
	return out, nil
}

func (s *service) SetVariationStock(ctx context.Context, productID, variationID uuid.UUID, input StockInput) (*VariationDTO, error) {
	if input.QuantityInStock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity in stock must not be negative")
	}
	n, err := s.repo.SetStock(ctx, productID, variationID, input.QuantityInStock)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stock")
	}
	if n == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variation not found").
			WithDetails(map[string]any{"variation_id": variationID.String()})
	}
	variation, err := s.repo.FindVariation(ctx, variationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variation")
	}
	if variation == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variation not found")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"product_id":   productID.String(),
		"variation_id": variationID.String(),
		"stock":        input.QuantityInStock,
	}), "product.stock_set")
	dto := toVariationDTO(*variation)
	return &dto, nil
}

func (s *service) AddImage(ctx context.Context, productID uuid.UUID, input ImageInput) (*ImageDTO, error) {
	filename := strings.TrimSpace(input.Filename)
	if filename == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "filename is required")
	}
	var image models.ProductImage
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.Exists(ctx, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if !ok {
			return productNotFound(productID)
		}
		next, err := repo.NextImageSortOrder(ctx, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load image order")
		}
		image = models.ProductImage{ProductID: productID, Filename: filename, SortOrder: next}
		if err := repo.CreateImage(ctx, &image); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create image")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := toImageDTO(image)
	return &dto, nil
}

func (s *service) ListImages(ctx context.Context, productID uuid.UUID) ([]ImageDTO, error) {
	if err := s.requireProduct(ctx, productID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListImages(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list images")
	}
	out := make([]ImageDTO, 0, len(rows))
	for _, img := range rows {
		out = append(out, toImageDTO(img))
	}
	return out, nil
}

func (s *service) DeleteImage(ctx context.Context, productID, imageID uuid.UUID) error {
	n, err := s.repo.DeleteImage(ctx, productID, imageID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete image")
	}
	if n == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "image not found")
	}
	return nil
}

func (s *service) requireProduct(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.Exists(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !ok {
		return productNotFound(id)
	}
	return nil
}

// productFromInput validates the payload and its references.
func (s *service) productFromInput(ctx context.Context, input ProductInput) (*models.Product, []uuid.UUID, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if !input.Price.IsPositive() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be greater than zero")
	}
	product := &models.Product{
		Name:             name,
		ShortDescription: strings.TrimSpace(input.ShortDescription),
		Price:            input.Price.Round(2),
		BrandID:          input.BrandID,
		GenderID:         input.GenderID,
	}
	if input.DiscountedPrice != nil {
		d := input.DiscountedPrice.Round(2)
		if !d.IsPositive() || !d.LessThan(product.Price) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "discounted price must be positive and below the price")
		}
		product.DiscountedPrice = decimal.NewNullDecimal(d)
	}

	ok, err := s.repo.BrandExists(ctx, input.BrandID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load brand")
	}
	if !ok {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "brand not found").
			WithDetails(map[string]any{"brand_id": input.BrandID.String()})
	}
	ok, err = s.repo.GenderExists(ctx, input.GenderID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gender")
	}
	if !ok {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "gender not found").
			WithDetails(map[string]any{"gender_id": input.GenderID.String()})
	}

	categoryIDs := dedupe(input.CategoryIDs)
	n, err := s.repo.CountCategories(ctx, categoryIDs)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load categories")
	}
	if n != int64(len(categoryIDs)) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "one or more categories not found")
	}
	return product, categoryIDs, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

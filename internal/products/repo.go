package products

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sportedge/sportedge-backend/internal/repo"
	"github.com/sportedge/sportedge-backend/pkg/db/models"
	"github.com/sportedge/sportedge-backend/pkg/enums"
)

const effectivePriceExpr = "COALESCE(products.discounted_price, products.price)"

// productCategory is the many2many join row between products and categories.
type productCategory struct {
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	CategoryID uuid.UUID `gorm:"column:category_id;type:uuid;primaryKey"`
}

func (productCategory) TableName() string { return "product_categories" }

// Repository persists products, their variations and images. It also serves
// the variation reads and stock updates that carts and orders depend on.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

// CreateProduct inserts the product row only; categories and variations are
// written separately.
func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) error {
	return r.DB(ctx).Omit(clause.Associations).Create(product).Error
}

// FindByID loads the product with brand, gender, categories, variations and
// images. Returns nil when it does not exist.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.DB(ctx).
		Preload("Brand").
		Preload("Gender").
		Preload("Categories", func(db *gorm.DB) *gorm.DB { return db.Order("categories.name ASC") }).
		Preload("Variations", orderedVariations).
		Preload("Variations.SizeOption").
		Preload("Images", orderedImages).
		Where("id = ?", id).
		Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// Exists reports whether a product row with the id is present.
func (r *Repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var n int64
	err := r.DB(ctx).Model(&models.Product{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// UpdateProduct writes the scalar product columns.
func (r *Repository) UpdateProduct(ctx context.Context, product *models.Product) error {
	return r.DB(ctx).Model(&models.Product{}).Where("id = ?", product.ID).
		Updates(map[string]any{
			"name":              product.Name,
			"short_description": product.ShortDescription,
			"price":             product.Price,
			"discounted_price":  product.DiscountedPrice,
			"brand_id":          product.BrandID,
			"gender_id":         product.GenderID,
		}).Error
}

// ReplaceCategories rewrites the product's category links.
func (r *Repository) ReplaceCategories(ctx context.Context, productID uuid.UUID, categoryIDs []uuid.UUID) error {
	db := r.DB(ctx)
	if err := db.Where("product_id = ?", productID).Delete(&productCategory{}).Error; err != nil {
		return err
	}
	if len(categoryIDs) == 0 {
		return nil
	}
	rows := make([]productCategory, 0, len(categoryIDs))
	for _, id := range categoryIDs {
		rows = append(rows, productCategory{ProductID: productID, CategoryID: id})
	}
	return db.Create(&rows).Error
}

// DeleteProduct removes the product with its categories, variations and
// images. Callers check variation references first.
func (r *Repository) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	db := r.DB(ctx)
	if err := db.Where("product_id = ?", id).Delete(&productCategory{}).Error; err != nil {
		return err
	}
	if err := db.Where("product_id = ?", id).Delete(&models.ProductImage{}).Error; err != nil {
		return err
	}
	if err := db.Where("product_id = ?", id).Delete(&models.ProductVariation{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&models.Product{}).Error
}

// CountLineReferences counts cart and order lines pointing at any of the
// product's variations.
func (r *Repository) CountLineReferences(ctx context.Context, productID uuid.UUID) (int64, error) {
	db := r.DB(ctx)
	variations := db.Model(&models.ProductVariation{}).Select("id").Where("product_id = ?", productID)

	var carts, orders int64
	if err := db.Model(&models.CartItem{}).Where("product_variation_id IN (?)", variations).Count(&carts).Error; err != nil {
		return 0, err
	}
	if err := db.Model(&models.OrderItem{}).Where("product_variation_id IN (?)", variations).Count(&orders).Error; err != nil {
		return 0, err
	}
	return carts + orders, nil
}

// Search returns one page of products matching the filter and the total
// number of matches.
func (r *Repository) Search(ctx context.Context, filter SearchFilter) ([]models.Product, int64, error) {
	q := r.DB(ctx).Model(&models.Product{})
	if term := strings.TrimSpace(filter.Query); term != "" {
		q = q.Where("LOWER(products.name) LIKE ?", "%"+strings.ToLower(term)+"%")
	}
	if filter.BrandID != nil {
		q = q.Where("products.brand_id = ?", *filter.BrandID)
	}
	if filter.GenderID != nil {
		q = q.Where("products.gender_id = ?", *filter.GenderID)
	}
	if filter.CategoryID != nil {
		q = q.Where("products.id IN (?)",
			r.DB(ctx).Model(&productCategory{}).Select("product_id").Where("category_id = ?", *filter.CategoryID))
	}
	if filter.MinPrice != nil {
		q = q.Where(effectivePriceExpr+" >= CAST(? AS NUMERIC)", filter.MinPrice.String())
	}
	if filter.MaxPrice != nil {
		q = q.Where(effectivePriceExpr+" <= CAST(? AS NUMERIC)", filter.MaxPrice.String())
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Product
	err := q.
		Preload("Brand").
		Preload("Gender").
		Preload("Images", orderedImages).
		Order(sortClause(filter.Sort)).
		Order("products.id ASC").
		Scopes(repo.Page(filter.Page)).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func sortClause(sort enums.ProductSort) string {
	switch sort {
	case enums.ProductSortPriceAsc:
		return effectivePriceExpr + " ASC"
	case enums.ProductSortPriceDesc:
		return effectivePriceExpr + " DESC"
	case enums.ProductSortName:
		return "products.name ASC"
	default:
		return "products.created_at DESC"
	}
}

// BrandExists and friends validate product references.
func (r *Repository) BrandExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var n int64
	err := r.DB(ctx).Model(&models.Brand{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

func (r *Repository) GenderExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var n int64
	err := r.DB(ctx).Model(&models.Gender{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// CountCategories counts how many of ids exist.
func (r *Repository) CountCategories(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int64
	err := r.DB(ctx).Model(&models.Category{}).Where("id IN ?", ids).Count(&n).Error
	return n, err
}

// SizeOptionsForGender lists the sizes a new product gets variations for.
func (r *Repository) SizeOptionsForGender(ctx context.Context, genderID uuid.UUID) ([]models.SizeOption, error) {
	var rows []models.SizeOption
	err := r.DB(ctx).Where("gender_id = ?", genderID).
		Order("sort_order ASC").Order("label ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) CreateVariations(ctx context.Context, variations []models.ProductVariation) error {
	if len(variations) == 0 {
		return nil
	}
	return r.DB(ctx).Omit(clause.Associations).Create(&variations).Error
}

// ListVariations returns the product's variations ordered by size.
func (r *Repository) ListVariations(ctx context.Context, productID uuid.UUID) ([]models.ProductVariation, error) {
	var rows []models.ProductVariation
	err := orderedVariations(r.DB(ctx)).
		Preload("SizeOption").
		Where("product_variations.product_id = ?", productID).
		Find(&rows).Error
	return rows, err
}

// FindVariation loads a variation with its product and size. Returns nil when
// it does not exist.
func (r *Repository) FindVariation(ctx context.Context, id uuid.UUID) (*models.ProductVariation, error) {
	var variation models.ProductVariation
	err := r.DB(ctx).
		Preload("Product").
		Preload("SizeOption").
		Where("id = ?", id).
		Take(&variation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &variation, nil
}

// SetStock overwrites the stock of the product's variation and reports the
// rows touched.
func (r *Repository) SetStock(ctx context.Context, productID, variationID uuid.UUID, quantity int) (int64, error) {
	res := r.DB(ctx).Model(&models.ProductVariation{}).
		Where("id = ? AND product_id = ?", variationID, productID).
		Update("quantity_in_stock", quantity)
	return res.RowsAffected, res.Error
}

// GetVariationForUpdate reads the variation on tx, holding a row lock on
// postgres until the transaction ends. Returns nil when it does not exist.
func (r *Repository) GetVariationForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.ProductVariation, error) {
	var variation models.ProductVariation
	err := repo.ForUpdate(tx.WithContext(ctx)).Where("id = ?", id).Take(&variation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &variation, nil
}

// DecrementStock subtracts amount only while enough stock remains. It returns
// false, without error, when the guard did not match.
func (r *Repository) DecrementStock(ctx context.Context, tx *gorm.DB, id uuid.UUID, amount int) (bool, error) {
	res := tx.WithContext(ctx).Model(&models.ProductVariation{}).
		Where("id = ? AND quantity_in_stock >= ?", id, amount).
		Update("quantity_in_stock", gorm.Expr("quantity_in_stock - ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) CreateImage(ctx context.Context, image *models.ProductImage) error {
	return r.DB(ctx).Create(image).Error
}

// NextImageSortOrder is one past the highest sort order in use.
func (r *Repository) NextImageSortOrder(ctx context.Context, productID uuid.UUID) (int, error) {
	var maxOrder int
	err := r.DB(ctx).Model(&models.ProductImage{}).
		Where("product_id = ?", productID).
		Select("COALESCE(MAX(sort_order), -1)").
		Scan(&maxOrder).Error
	if err != nil {
		return 0, err
	}
	return maxOrder + 1, nil
}

func (r *Repository) ListImages(ctx context.Context, productID uuid.UUID) ([]models.ProductImage, error) {
	var rows []models.ProductImage
	err := orderedImages(r.DB(ctx)).Where("product_id = ?", productID).Find(&rows).Error
	return rows, err
}

func (r *Repository) DeleteImage(ctx context.Context, productID, imageID uuid.UUID) (int64, error) {
	res := r.DB(ctx).Where("id = ? AND product_id = ?", imageID, productID).Delete(&models.ProductImage{})
	return res.RowsAffected, res.Error
}

func orderedVariations(db *gorm.DB) *gorm.DB {
	return db.
		Joins("LEFT JOIN size_options ON size_options.id = product_variations.size_option_id").
		Order("size_options.sort_order ASC").
		Order("size_options.label ASC")
}

func orderedImages(db *gorm.DB) *gorm.DB {
	return db.Order("sort_order ASC").Order("created_at ASC")
}

package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sportedge/sportedge-backend/internal/repo"
	"github.com/sportedge/sportedge-backend/pkg/db/models"
)

// Repository persists carts and their lines.
type Repository struct {
	repo.Base
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

// FindByUserID loads the user's cart with lines in insertion order and their
// variation, product and size. Returns nil when the user has no cart.
func (r *Repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.DB(ctx).
		Preload("Items", orderedItems).
		Preload("Items.Variation").
		Preload("Items.Variation.Product").
		Preload("Items.Variation.SizeOption").
		Where("user_id = ?", userID).
		Take(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// GetOrCreate returns the user's cart, creating an empty one on first use.
// Concurrent first calls converge on the same row through the unique user_id.
func (r *Repository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := r.FindByUserID(ctx, userID)
	if err != nil || cart != nil {
		return cart, err
	}
	fresh := &models.Cart{UserID: userID}
	err = r.DB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(fresh).Error
	if err != nil {
		return nil, err
	}
	return r.FindByUserID(ctx, userID)
}

// FindItemByVariation returns nil when the cart has no line for the variation.
func (r *Repository) FindItemByVariation(ctx context.Context, cartID, variationID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.DB(ctx).
		Where("cart_id = ? AND product_variation_id = ?", cartID, variationID).
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *Repository) CreateItem(ctx context.Context, item *models.CartItem) error {
	return r.DB(ctx).Omit(clause.Associations).Create(item).Error
}

func (r *Repository) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	return r.DB(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Update("quantity", quantity).Error
}

// DeleteItemByVariation reports how many lines were removed.
func (r *Repository) DeleteItemByVariation(ctx context.Context, cartID, variationID uuid.UUID) (int64, error) {
	res := r.DB(ctx).
		Where("cart_id = ? AND product_variation_id = ?", cartID, variationID).
		Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}

// DeleteItems empties the cart and reports how many lines were removed.
func (r *Repository) DeleteItems(ctx context.Context, cartID uuid.UUID) (int64, error) {
	res := r.DB(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}

// GetCartForUser locks the user's cart row on tx and loads its bare lines
// for order placement. A concurrent placement for the same user waits on the
// lock and then finds no cart.
func (r *Repository) GetCartForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Cart, error) {
	db := r.Bind(tx).DB(ctx)
	var cart models.Cart
	err := repo.ForUpdate(db.Where("user_id = ?", userID)).Take(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := orderedItems(db.Where("cart_id = ?", cart.ID)).Find(&cart.Items).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// ClearAndDeleteCart removes every line and then the cart itself on tx.
func (r *Repository) ClearAndDeleteCart(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error {
	db := r.Bind(tx).DB(ctx)
	if err := db.Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	res := db.Where("id = ?", cartID).Delete(&models.Cart{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("cart already deleted")
	}
	return nil
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("id ASC")
}

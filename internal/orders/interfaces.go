package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sportedge/sportedge-backend/pkg/db/models"
	"github.com/sportedge/sportedge-backend/pkg/pagination"
)

// Repository persists and reads orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, int64, error)
	ListAll(ctx context.Context, params pagination.Params) ([]models.Order, int64, error)
}

// CartStore is the cart side of placement. GetCartForUser returns nil when
// the user has no cart; items come back in insertion order.
type CartStore interface {
	GetCartForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Cart, error)
	ClearAndDeleteCart(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error
}

// InventoryStore owns variation stock. GetVariationForUpdate returns nil when
// the variation is gone and holds a row lock until tx ends where the database
// supports it. DecrementStock reports false when stock no longer covers amount.
type InventoryStore interface {
	GetVariationForUpdate(ctx context.Context, tx *gorm.DB, variationID uuid.UUID) (*models.ProductVariation, error)
	DecrementStock(ctx context.Context, tx *gorm.DB, variationID uuid.UUID, amount int) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type placementRecorder interface {
	ObservePlacement(outcome string, elapsed time.Duration)
	AddUnitsSold(units int)
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Cart belongs to exactly one user and is removed once an order is placed.
type Cart struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	User      *User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// CartItem captures the price at the moment the variation was added.
type CartItem struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	CartID             uuid.UUID         `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:ux_cart_items_cart_variation"`
	ProductVariationID uuid.UUID         `gorm:"column:product_variation_id;type:uuid;not null;uniqueIndex:ux_cart_items_cart_variation"`
	Variation          *ProductVariation `gorm:"foreignKey:ProductVariationID;constraint:OnDelete:RESTRICT"`
	Quantity           int               `gorm:"column:quantity;not null;check:chk_cart_items_quantity_positive,quantity > 0"`
	PriceAtTime        decimal.Decimal   `gorm:"column:price_at_time;type:numeric(12,2);not null"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *CartItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// Subtotal is computed on read and never persisted.
func (i CartItem) Subtotal() decimal.Decimal {
	return i.PriceAtTime.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order is an immutable snapshot of a placed cart.
type Order struct {
	ID              uuid.UUID   `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID   `gorm:"column:user_id;type:uuid;not null;index"`
	User            *User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	ShippingCountry string      `gorm:"column:shipping_country;not null"`
	ShippingCity    string      `gorm:"column:shipping_city;not null"`
	ShippingAddress string      `gorm:"column:shipping_address;not null"`
	Items           []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time   `gorm:"column:created_at;autoCreateTime;index"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// Total sums the line subtotals.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// OrderItem copies the unit price from the cart line; it is never recomputed.
type OrderItem struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID            uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	ProductVariationID uuid.UUID         `gorm:"column:product_variation_id;type:uuid;not null;index"`
	Variation          *ProductVariation `gorm:"foreignKey:ProductVariationID;constraint:OnDelete:RESTRICT"`
	Quantity           int               `gorm:"column:quantity;not null;check:chk_order_items_quantity_positive,quantity > 0"`
	UnitPrice          decimal.Decimal   `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Position           int               `gorm:"column:position;not null;default:0"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

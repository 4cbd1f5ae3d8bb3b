package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a catalog listing; stock lives on its variations.
type Product struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Name             string              `gorm:"column:name;not null;index"`
	ShortDescription string              `gorm:"column:short_description;not null;default:''"`
	Price            decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	DiscountedPrice  decimal.NullDecimal `gorm:"column:discounted_price;type:numeric(12,2)"`
	BrandID          uuid.UUID           `gorm:"column:brand_id;type:uuid;not null;index"`
	Brand            *Brand              `gorm:"foreignKey:BrandID;constraint:OnDelete:RESTRICT"`
	GenderID         uuid.UUID           `gorm:"column:gender_id;type:uuid;not null;index"`
	Gender           *Gender             `gorm:"foreignKey:GenderID;constraint:OnDelete:RESTRICT"`
	Categories       []Category          `gorm:"many2many:product_categories;constraint:OnDelete:CASCADE"`
	Variations       []ProductVariation  `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Images           []ProductImage      `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// EffectivePrice is the discounted price when one is set, else the base price.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.DiscountedPrice.Valid {
		return p.DiscountedPrice.Decimal
	}
	return p.Price
}

// ProductVariation is one purchasable size of a product and owns its stock.
type ProductVariation struct {
	ID              uuid.UUID   `gorm:"column:id;type:uuid;primaryKey"`
	ProductID       uuid.UUID   `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_variations_product_size"`
	Product         *Product    `gorm:"foreignKey:ProductID"`
	SizeOptionID    uuid.UUID   `gorm:"column:size_option_id;type:uuid;not null;uniqueIndex:ux_variations_product_size"`
	SizeOption      *SizeOption `gorm:"foreignKey:SizeOptionID;constraint:OnDelete:RESTRICT"`
	QuantityInStock int         `gorm:"column:quantity_in_stock;not null;default:0;check:chk_variations_stock_nonneg,quantity_in_stock >= 0"`
	CreatedAt       time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *ProductVariation) BeforeCreate(*gorm.DB) error {
	assignID(&v.ID)
	return nil
}

// ProductImage references an externally stored image by filename.
type ProductImage struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	Filename  string    `gorm:"column:filename;not null"`
	SortOrder int       `gorm:"column:sort_order;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (i *ProductImage) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

package products

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sportedge/sportedge-backend/pkg/db/models"
	"github.com/sportedge/sportedge-backend/pkg/enums"
	"github.com/sportedge/sportedge-backend/pkg/pagination"
)

// ProductInput is the payload for creating or replacing a product.
type ProductInput struct {
	Name             string           `json:"name" validate:"required,max=200"`
	ShortDescription string           `json:"short_description" validate:"max=500"`
	Price            decimal.Decimal  `json:"price"`
	DiscountedPrice  *decimal.Decimal `json:"discounted_price,omitempty"`
	BrandID          uuid.UUID        `json:"brand_id" validate:"required"`
	GenderID         uuid.UUID        `json:"gender_id" validate:"required"`
	CategoryIDs      []uuid.UUID      `json:"category_ids"`
}

// SearchFilter narrows the product listing. Zero values mean "any".
type SearchFilter struct {
	Query      string
	BrandID    *uuid.UUID
	GenderID   *uuid.UUID
	CategoryID *uuid.UUID
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Sort       enums.ProductSort
	Page       pagination.Params
}

type StockInput struct {
	QuantityInStock int `json:"quantity_in_stock" validate:"gte=0"`
}

type ImageInput struct {
	Filename string `json:"filename" validate:"required,max=255"`
}

type ProductDTO struct {
	ID               uuid.UUID        `json:"id"`
	Name             string           `json:"name"`
	ShortDescription string           `json:"short_description"`
	Price            decimal.Decimal  `json:"price"`
	DiscountedPrice  *decimal.Decimal `json:"discounted_price,omitempty"`
	EffectivePrice   decimal.Decimal  `json:"effective_price"`
	Brand            NamedRef         `json:"brand"`
	Gender           NamedRef         `json:"gender"`
	Categories       []NamedRef       `json:"categories"`
	Variations       []VariationDTO   `json:"variations"`
	Images           []ImageDTO       `json:"images"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// ProductSummaryDTO is a search result row.
type ProductSummaryDTO struct {
	ID              uuid.UUID        `json:"id"`
	Name            string           `json:"name"`
	Price           decimal.Decimal  `json:"price"`
	DiscountedPrice *decimal.Decimal `json:"discounted_price,omitempty"`
	EffectivePrice  decimal.Decimal  `json:"effective_price"`
	Brand           NamedRef         `json:"brand"`
	Gender          NamedRef         `json:"gender"`
	ImageFilename   string           `json:"image_filename,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

type NamedRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name,omitempty"`
}

type VariationDTO struct {
	ID              uuid.UUID `json:"id"`
	ProductID       uuid.UUID `json:"product_id"`
	SizeOptionID    uuid.UUID `json:"size_option_id"`
	SizeLabel       string    `json:"size_label,omitempty"`
	QuantityInStock int       `json:"quantity_in_stock"`
}

type ImageDTO struct {
	ID        uuid.UUID `json:"id"`
	Filename  string    `json:"filename"`
	SortOrder int       `json:"sort_order"`
}

func discounted(p models.Product) *decimal.Decimal {
	if !p.DiscountedPrice.Valid {
		return nil
	}
	d := p.DiscountedPrice.Decimal
	return &d
}

func brandRef(p models.Product) NamedRef {
	ref := NamedRef{ID: p.BrandID}
	if p.Brand != nil {
		ref.Name = p.Brand.Name
	}
	return ref
}

func genderRef(p models.Product) NamedRef {
	ref := NamedRef{ID: p.GenderID}
	if p.Gender != nil {
		ref.Name = p.Gender.Name
	}
	return ref
}

func toProductDTO(p models.Product) ProductDTO {
	dto := ProductDTO{
		ID:               p.ID,
		Name:             p.Name,
		ShortDescription: p.ShortDescription,
		Price:            p.Price,
		DiscountedPrice:  discounted(p),
		EffectivePrice:   p.EffectivePrice(),
		Brand:            brandRef(p),
		Gender:           genderRef(p),
		Categories:       make([]NamedRef, 0, len(p.Categories)),
		Variations:       make([]VariationDTO, 0, len(p.Variations)),
		Images:           make([]ImageDTO, 0, len(p.Images)),
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	for _, c := range p.Categories {
		dto.Categories = append(dto.Categories, NamedRef{ID: c.ID, Name: c.Name})
	}
	for _, v := range p.Variations {
		dto.Variations = append(dto.Variations, toVariationDTO(v))
	}
	for _, img := range p.Images {
		dto.Images = append(dto.Images, toImageDTO(img))
	}
	return dto
}

func toSummaryDTO(p models.Product) ProductSummaryDTO {
	dto := ProductSummaryDTO{
		ID:              p.ID,
		Name:            p.Name,
		Price:           p.Price,
		DiscountedPrice: discounted(p),
		EffectivePrice:  p.EffectivePrice(),
		Brand:           brandRef(p),
		Gender:          genderRef(p),
		CreatedAt:       p.CreatedAt,
	}
	if len(p.Images) > 0 {
		dto.ImageFilename = p.Images[0].Filename
	}
	return dto
}

func toVariationDTO(v models.ProductVariation) VariationDTO {
	dto := VariationDTO{
		ID:              v.ID,
		ProductID:       v.ProductID,
		SizeOptionID:    v.SizeOptionID,
		QuantityInStock: v.QuantityInStock,
	}
	if v.SizeOption != nil {
		dto.SizeLabel = v.SizeOption.Label
	}
	return dto
}

func toImageDTO(img models.ProductImage) ImageDTO {
	return ImageDTO{ID: img.ID, Filename: img.Filename, SortOrder: img.SortOrder}
}

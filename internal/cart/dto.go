package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sportedge/sportedge-backend/pkg/db/models"
)

// CartDTO is the client view of a cart with computed totals.
type CartDTO struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	CreatedAt time.Time       `json:"created_at"`
	Items     []CartLineDTO   `json:"items"`
	Total     decimal.Decimal `json:"total"`
}

// CartLineDTO is one line with the price captured when it was added.
type CartLineDTO struct {
	ID                 uuid.UUID       `json:"id"`
	ProductVariationID uuid.UUID       `json:"product_variation_id"`
	ProductID          uuid.UUID       `json:"product_id,omitempty"`
	ProductName        string          `json:"product_name,omitempty"`
	SizeLabel          string          `json:"size,omitempty"`
	Quantity           int             `json:"quantity"`
	PriceAtTime        decimal.Decimal `json:"price_at_time"`
	Subtotal           decimal.Decimal `json:"subtotal"`
}

// AddItemInput adds quantity units of a variation to the caller's cart.
type AddItemInput struct {
	ProductVariationID uuid.UUID `json:"product_variation_id" validate:"required"`
	Quantity           int       `json:"quantity" validate:"required,gt=0"`
}

// UpdateItemInput sets the quantity of an existing line.
type UpdateItemInput struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

func toDTO(cart *models.Cart) CartDTO {
	out := CartDTO{
		ID:        cart.ID,
		UserID:    cart.UserID,
		CreatedAt: cart.CreatedAt,
		Items:     make([]CartLineDTO, 0, len(cart.Items)),
		Total:     decimal.Zero,
	}
	for _, item := range cart.Items {
		line := CartLineDTO{
			ID:                 item.ID,
			ProductVariationID: item.ProductVariationID,
			Quantity:           item.Quantity,
			PriceAtTime:        item.PriceAtTime,
			Subtotal:           item.Subtotal(),
		}
		if v := item.Variation; v != nil {
			line.ProductID = v.ProductID
			if v.Product != nil {
				line.ProductName = v.Product.Name
			}
			if v.SizeOption != nil {
				line.SizeLabel = v.SizeOption.Label
			}
		}
		out.Total = out.Total.Add(line.Subtotal)
		out.Items = append(out.Items, line)
	}
	return out
}

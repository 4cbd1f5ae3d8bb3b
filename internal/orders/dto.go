package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sportedge/sportedge-backend/pkg/db/models"
	"github.com/sportedge/sportedge-backend/pkg/enums"
)

// MaxShippingFieldLength bounds each shipping field.
const MaxShippingFieldLength = 100

// ShippingInfo is the destination snapshot copied onto the order.
type ShippingInfo struct {
	Country string `json:"country" validate:"required,max=100"`
	City    string `json:"city" validate:"required,max=100"`
	Address string `json:"address" validate:"required,max=100"`
}

func (s ShippingInfo) normalized() ShippingInfo {
	return ShippingInfo{
		Country: strings.TrimSpace(s.Country),
		City:    strings.TrimSpace(s.City),
		Address: strings.TrimSpace(s.Address),
	}
}

func (s ShippingInfo) invalidField() string {
	fields := []struct{ name, value string }{
		{"country", s.Country},
		{"city", s.City},
		{"address", s.Address},
	}
	for _, f := range fields {
		if f.value == "" || len([]rune(f.value)) > MaxShippingFieldLength {
			return f.name
		}
	}
	return ""
}

// Requester is the authenticated caller of a read.
type Requester struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (r Requester) isAdmin() bool {
	return r.Role == enums.UserRoleAdmin
}

// OrderDTO is the read model returned to clients.
type OrderDTO struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	CreatedAt       time.Time       `json:"created_at"`
	ShippingCountry string          `json:"shipping_country"`
	ShippingCity    string          `json:"shipping_city"`
	ShippingAddress string          `json:"shipping_address"`
	Items           []OrderLineDTO  `json:"items"`
	Total           decimal.Decimal `json:"total"`
}

// OrderLineDTO is one order line with its computed subtotal.
type OrderLineDTO struct {
	ID                 uuid.UUID       `json:"id"`
	ProductVariationID uuid.UUID       `json:"product_variation_id"`
	ProductID          uuid.UUID       `json:"product_id,omitempty"`
	ProductName        string          `json:"product_name,omitempty"`
	SizeLabel          string          `json:"size,omitempty"`
	Quantity           int             `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	Subtotal           decimal.Decimal `json:"subtotal"`
}

// ToDTO maps an order with preloaded lines.
func ToDTO(order models.Order) OrderDTO {
	out := OrderDTO{
		ID:              order.ID,
		UserID:          order.UserID,
		CreatedAt:       order.CreatedAt,
		ShippingCountry: order.ShippingCountry,
		ShippingCity:    order.ShippingCity,
		ShippingAddress: order.ShippingAddress,
		Items:           make([]OrderLineDTO, 0, len(order.Items)),
		Total:           order.Total(),
	}
	for _, item := range order.Items {
		line := OrderLineDTO{
			ID:                 item.ID,
			ProductVariationID: item.ProductVariationID,
			Quantity:           item.Quantity,
			UnitPrice:          item.UnitPrice,
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
		out.Items = append(out.Items, line)
	}
	return out
}

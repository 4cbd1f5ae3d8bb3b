package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderPlacedEvent is emitted once per successfully placed order.
type OrderPlacedEvent struct {
	OrderID         uuid.UUID         `json:"order_id"`
	UserID          uuid.UUID         `json:"user_id"`
	ShippingCountry string            `json:"shipping_country"`
	ShippingCity    string            `json:"shipping_city"`
	PlacedAt        time.Time         `json:"placed_at"`
	Lines           []OrderPlacedLine `json:"lines"`
	Total           decimal.Decimal   `json:"total"`
}

// OrderPlacedLine mirrors one order line at placement time.
type OrderPlacedLine struct {
	Position    int             `json:"position"`
	VariationID uuid.UUID       `json:"variation_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

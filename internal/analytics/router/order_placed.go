package router

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sportedge/sportedge-backend/internal/analytics/types"
	"github.com/sportedge/sportedge-backend/pkg/logger"
	"github.com/sportedge/sportedge-backend/pkg/outbox/payloads"
)

// orderSales records every line of a placed order in the sales table.
type orderSales struct {
	writer Writer
	logg   *logger.Logger
}

func (h *orderSales) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.OrderPlacedEvent)
	if !ok {
		return fmt.Errorf("%w: order_placed decoded to %T", ErrInvalidPayload, payload)
	}

	ctx = h.logg.WithFields(h.logg.WithOrderID(ctx, event.OrderID.String()), map[string]any{
		"line_count": len(event.Lines),
	})
	rows := BuildOrderSaleRows(envelope, event)
	if len(rows) == 0 {
		h.logg.Warn(ctx, "analytics.order_without_lines")
		return nil
	}
	if err := h.writer.InsertOrderSales(ctx, rows); err != nil {
		return fmt.Errorf("insert order sales: %w", err)
	}
	h.logg.Debug(ctx, "analytics.order_sales_written")
	return nil
}

// BuildOrderSaleRows flattens an order into one row per line. A missing
// placement time falls back to the event time and a missing subtotal is
// recomputed from price and quantity.
func BuildOrderSaleRows(envelope types.Envelope, event *payloads.OrderPlacedEvent) []types.OrderSaleRow {
	placedAt := event.PlacedAt
	if placedAt.IsZero() {
		placedAt = envelope.OccurredAt
	}
	placedAt = placedAt.UTC()

	rows := make([]types.OrderSaleRow, len(event.Lines))
	for i, line := range event.Lines {
		subtotal := line.Subtotal
		if subtotal.IsZero() {
			subtotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		}
		rows[i] = types.OrderSaleRow{
			EventID:         envelope.EventID,
			OrderID:         event.OrderID.String(),
			UserID:          event.UserID.String(),
			VariationID:     line.VariationID.String(),
			ProductID:       line.ProductID.String(),
			LinePosition:    line.Position,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			LineSubtotal:    subtotal,
			ShippingCountry: event.ShippingCountry,
			ShippingCity:    event.ShippingCity,
			PlacedAt:        placedAt,
		}
	}
	return rows
}

package types

import (
	"fmt"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"
)

// OrderSaleRow mirrors the order_sales BigQuery schema: one row per order line.
type OrderSaleRow struct {
	EventID         string
	OrderID         string
	UserID          string
	VariationID     string
	ProductID       string
	LinePosition    int
	Quantity        int
	UnitPrice       decimal.Decimal
	LineSubtotal    decimal.Decimal
	ShippingCountry string
	ShippingCity    string
	PlacedAt        time.Time
}

// InsertID keys best-effort streaming dedupe on the event and line position,
// so a redelivered event does not double count.
func (r OrderSaleRow) InsertID() string {
	return fmt.Sprintf("%s:%d", r.EventID, r.LinePosition)
}

// Save implements bigquery.ValueSaver. Money columns are NUMERIC.
func (r *OrderSaleRow) Save() (map[string]cbigquery.Value, string, error) {
	return map[string]cbigquery.Value{
		"event_id":         r.EventID,
		"order_id":         r.OrderID,
		"user_id":          r.UserID,
		"variation_id":     r.VariationID,
		"product_id":       r.ProductID,
		"line_position":    r.LinePosition,
		"quantity":         r.Quantity,
		"unit_price":       r.UnitPrice.Rat(),
		"line_subtotal":    r.LineSubtotal.Rat(),
		"shipping_country": r.ShippingCountry,
		"shipping_city":    r.ShippingCity,
		"placed_at":        r.PlacedAt,
	}, r.InsertID(), nil
}

var _ cbigquery.ValueSaver = (*OrderSaleRow)(nil)

// OrderSalesSchema is the table layout Save writes into.
func OrderSalesSchema() cbigquery.Schema {
	required := func(name string, typ cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: typ, Required: true}
	}
	return cbigquery.Schema{
		required("event_id", cbigquery.StringFieldType),
		required("order_id", cbigquery.StringFieldType),
		required("user_id", cbigquery.StringFieldType),
		required("variation_id", cbigquery.StringFieldType),
		required("product_id", cbigquery.StringFieldType),
		required("line_position", cbigquery.IntegerFieldType),
		required("quantity", cbigquery.IntegerFieldType),
		required("unit_price", cbigquery.NumericFieldType),
		required("line_subtotal", cbigquery.NumericFieldType),
		{Name: "shipping_country", Type: cbigquery.StringFieldType},
		{Name: "shipping_city", Type: cbigquery.StringFieldType},
		required("placed_at", cbigquery.TimestampFieldType),
	}
}

// SalesReportRequest bounds an admin sales report.
type SalesReportRequest struct {
	Start time.Time
	End   time.Time
}

// DailySales is one day of the sales series.
type DailySales struct {
	Date    string          `json:"date"`
	Orders  int64           `json:"orders"`
	Units   int64           `json:"units"`
	Revenue decimal.Decimal `json:"revenue"`
}

// ProductSales ranks a product by revenue within the window.
type ProductSales struct {
	ProductID string          `json:"product_id"`
	Units     int64           `json:"units"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// SalesReport is the admin dashboard payload.
type SalesReport struct {
	Daily       []DailySales    `json:"daily"`
	TopProducts []ProductSales  `json:"top_products"`
	Orders      int64           `json:"orders"`
	Revenue     decimal.Decimal `json:"revenue"`
}

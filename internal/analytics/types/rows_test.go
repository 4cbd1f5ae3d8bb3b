package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSaveMatchesSchema(t *testing.T) {
	t.Parallel()
	row := &OrderSaleRow{
		EventID:      "evt-9",
		LinePosition: 2,
		Quantity:     1,
		UnitPrice:    decimal.RequireFromString("19.99"),
		LineSubtotal: decimal.RequireFromString("19.99"),
		PlacedAt:     time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC),
	}
	values, insertID, err := row.Save()
	require.NoError(t, err)
	require.Equal(t, "evt-9:2", insertID)

	schema := OrderSalesSchema()
	require.Len(t, values, len(schema))
	for _, field := range schema {
		require.Contains(t, values, field.Name)
	}
}

func TestEnvelopeDefaults(t *testing.T) {
	t.Parallel()
	require.Equal(t, 1, Envelope{}.SchemaVersion())
	require.Equal(t, 3, Envelope{Version: 3}.SchemaVersion())
	require.True(t, Envelope{Payload: []byte(" null ")}.Blank())
	require.False(t, Envelope{Payload: []byte(`{}`)}.Blank())
}

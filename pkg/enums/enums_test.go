package enums

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseUserRole(t *testing.T) {
	role, err := ParseUserRole(" Admin ")
	require.NoError(t, err)
	require.Equal(t, UserRoleAdmin, role)

	_, err = ParseUserRole("owner")
	require.Error(t, err)
}

func TestParseProductSort(t *testing.T) {
	tests := []struct {
		in      string
		want    ProductSort
		wantErr bool
	}{
		{in: "", want: ProductSortNewest},
		{in: "PRICE_ASC", want: ProductSortPriceAsc},
		{in: "price_desc", want: ProductSortPriceDesc},
		{in: "name", want: ProductSortName},
		{in: "rating", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseProductSort(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got)
	}
}

func TestOutboxEnums(t *testing.T) {
	require.True(t, EventOrderPlaced.IsValid())
	require.False(t, OutboxEventType("order_created").IsValid())

	agg, err := ParseOutboxAggregateType("order")
	require.NoError(t, err)
	require.Equal(t, AggregateOrder, agg)

	require.True(t, OutboxDLQReasonMaxAttempts.IsValid())
	require.False(t, OutboxDLQErrorReason("nope").IsValid())
}

func TestOrderPlacedBelongsToOrders(t *testing.T) {
	agg, ok := EventOrderPlaced.Aggregate()
	require.True(t, ok)
	require.Equal(t, AggregateOrder, agg)

	_, ok = OutboxEventType("order_created").Aggregate()
	require.False(t, ok)
}

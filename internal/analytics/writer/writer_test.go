package writer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sportedge/sportedge-backend/internal/analytics/types"
)

type insertCall struct {
	table string
	rows  int
}

type scriptedInserter struct {
	errs  []error
	calls []insertCall
}

func (s *scriptedInserter) InsertRows(_ context.Context, table string, rows []cbigquery.ValueSaver) error {
	s.calls = append(s.calls, insertCall{table: table, rows: len(rows)})
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func fastWriter(t *testing.T, errs ...error) (*BigQueryWriter, *scriptedInserter) {
	t.Helper()
	fake := &scriptedInserter{errs: errs}
	w, err := newWriter(fake, Config{
		OrderSalesTable: "order_sales",
		RetryPolicy:     RetryPolicy{InitialBackoff: time.Millisecond, MaximumBackoff: 2 * time.Millisecond},
	})
	require.NoError(t, err)
	return w, fake
}

func orderLines() []types.OrderSaleRow {
	placed := time.Date(2025, 2, 14, 18, 30, 0, 0, time.UTC)
	return []types.OrderSaleRow{
		{EventID: "evt-1", OrderID: "order-1", LinePosition: 0, Quantity: 3, UnitPrice: decimal.RequireFromString("10.00"), LineSubtotal: decimal.RequireFromString("30.00"), PlacedAt: placed},
		{EventID: "evt-1", OrderID: "order-1", LinePosition: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("4.50"), LineSubtotal: decimal.RequireFromString("9.00"), PlacedAt: placed},
	}
}

func TestNewWriterNeedsClientAndTable(t *testing.T) {
	t.Parallel()
	_, err := New(nil, Config{OrderSalesTable: "order_sales"})
	require.Error(t, err)
	_, err = newWriter(&scriptedInserter{}, Config{OrderSalesTable: " "})
	require.Error(t, err)
}

func TestInsertOrderSalesRetriesTransientFailure(t *testing.T) {
	t.Parallel()
	w, fake := fastWriter(t, &googleapi.Error{Code: http.StatusServiceUnavailable})

	require.NoError(t, w.InsertOrderSales(context.Background(), orderLines()))
	require.Equal(t, []insertCall{{"order_sales", 2}, {"order_sales", 2}}, fake.calls)
}

func TestInsertOrderSalesStopsOnPermanentFailure(t *testing.T) {
	t.Parallel()
	w, fake := fastWriter(t, &googleapi.Error{Code: http.StatusBadRequest})

	require.Error(t, w.InsertOrderSales(context.Background(), orderLines()))
	require.Len(t, fake.calls, 1)
}

func TestInsertOrderSalesGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	unavailable := status.Error(codes.Unavailable, "try later")
	w, fake := fastWriter(t, unavailable, unavailable, unavailable)

	err := w.InsertOrderSales(context.Background(), orderLines())
	require.ErrorIs(t, err, unavailable)
	require.Contains(t, err.Error(), "after 3 attempt(s)")
	require.Len(t, fake.calls, 3)
}

func TestInsertOrderSalesHonoursCancellation(t *testing.T) {
	t.Parallel()
	fake := &scriptedInserter{errs: []error{context.DeadlineExceeded}}
	w, err := newWriter(fake, Config{
		OrderSalesTable: "order_sales",
		RetryPolicy:     RetryPolicy{InitialBackoff: time.Hour},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, w.InsertOrderSales(ctx, orderLines()), context.DeadlineExceeded)
	require.Len(t, fake.calls, 1)
}

func TestInsertOrderSalesSkipsEmptyOrder(t *testing.T) {
	t.Parallel()
	w, fake := fastWriter(t)
	require.NoError(t, w.InsertOrderSales(context.Background(), nil))
	require.Empty(t, fake.calls)
}

func TestOrderSaleRowSave(t *testing.T) {
	t.Parallel()
	rows := orderLines()
	values, insertID, err := rows[1].Save()
	require.NoError(t, err)
	require.Equal(t, "evt-1:1", insertID)
	require.Equal(t, 2, values["quantity"])
	require.Equal(t, "9.00", values["line_subtotal"].(*big.Rat).FloatString(2))
}

func TestTransient(t *testing.T) {
	t.Parallel()
	rowFailure := func(reasons ...string) cbigquery.PutMultiError {
		out := make(cbigquery.PutMultiError, 0, len(reasons))
		for i, reason := range reasons {
			out = append(out, cbigquery.RowInsertionError{
				RowIndex: i,
				Errors:   cbigquery.MultiError{&cbigquery.Error{Reason: reason}},
			})
		}
		return out
	}

	cases := map[string]struct {
		err  error
		want bool
	}{
		"http 503":              {err: &googleapi.Error{Code: http.StatusServiceUnavailable}, want: true},
		"http 429":              {err: &googleapi.Error{Code: http.StatusTooManyRequests}, want: true},
		"http 400":              {err: &googleapi.Error{Code: http.StatusBadRequest}},
		"grpc unavailable":      {err: status.Error(codes.Unavailable, "x"), want: true},
		"grpc invalid argument": {err: status.Error(codes.InvalidArgument, "x")},
		"deadline":              {err: context.DeadlineExceeded, want: true},
		"wrapped deadline":      {err: fmt.Errorf("insert: %w", context.DeadlineExceeded), want: true},
		"plain":                 {err: errors.New("boom")},
		"rows backend error":    {err: rowFailure("backendError", "stopped"), want: true},
		"rows with invalid row": {err: rowFailure("invalid", "stopped")},
		"empty row errors":      {err: cbigquery.PutMultiError{}},
	}
	for name, tc := range cases {
		require.Equal(t, tc.want, transient(tc.err), name)
	}
}

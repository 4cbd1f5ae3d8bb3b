package query

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	cloudbigquery "cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"github.com/sportedge/sportedge-backend/internal/analytics/types"
	"github.com/sportedge/sportedge-backend/pkg/bigquery"
	pkgerrors "github.com/sportedge/sportedge-backend/pkg/errors"
)

// MaxReportWindow caps how far apart start and end may be.
const MaxReportWindow = 366 * 24 * time.Hour

const (
	dailySalesSQL = `
SELECT
  FORMAT_DATE('%%F', DATE(placed_at)) AS day,
  COUNT(DISTINCT order_id) AS orders,
  SUM(quantity) AS units,
  COALESCE(SUM(line_subtotal), 0) AS revenue
FROM %s
WHERE placed_at BETWEEN @start AND @end
GROUP BY day
ORDER BY day ASC
`

	topProductsSQL = `
SELECT
  product_id,
  SUM(quantity) AS units,
  COALESCE(SUM(line_subtotal), 0) AS revenue
FROM %s
WHERE placed_at BETWEEN @start AND @end
GROUP BY product_id
ORDER BY revenue DESC, product_id ASC
LIMIT @limit
`

	totalsSQL = `
SELECT
  COUNT(DISTINCT order_id) AS orders,
  COALESCE(SUM(line_subtotal), 0) AS revenue
FROM %s
WHERE placed_at BETWEEN @start AND @end
`
)

const topProductsLimit = 5

// SalesService builds the admin sales report from the order_sales table.
type SalesService interface {
	Report(ctx context.Context, req types.SalesReportRequest) (*types.SalesReport, error)
}

type rowIterator interface {
	Next(dst interface{}) error
}

type querier interface {
	Query(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (rowIterator, error)
}

type clientQuerier struct {
	client *bigquery.Client
}

func (q clientQuerier) Query(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (rowIterator, error) {
	it, err := q.client.Query(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	return it, nil
}

type salesService struct {
	client   querier
	tableRef string
}

// NewSalesService builds a report service backed by BigQuery.
func NewSalesService(client *bigquery.Client) (SalesService, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	ref := client.TableRef()
	if ref == "" || client.OrderSalesTable() == "" {
		return nil, fmt.Errorf("order sales table is required")
	}
	return newSalesService(clientQuerier{client: client}, ref), nil
}

func newSalesService(q querier, tableRef string) *salesService {
	return &salesService{client: q, tableRef: tableRef}
}

type dailyRow struct {
	Day     string   `bigquery:"day"`
	Orders  int64    `bigquery:"orders"`
	Units   int64    `bigquery:"units"`
	Revenue *big.Rat `bigquery:"revenue"`
}

type productRow struct {
	ProductID string   `bigquery:"product_id"`
	Units     int64    `bigquery:"units"`
	Revenue   *big.Rat `bigquery:"revenue"`
}

type totalsRow struct {
	Orders  int64    `bigquery:"orders"`
	Revenue *big.Rat `bigquery:"revenue"`
}

func (s *salesService) Report(ctx context.Context, req types.SalesReportRequest) (*types.SalesReport, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	params := []cloudbigquery.QueryParameter{
		{Name: "start", Value: req.Start.UTC()},
		{Name: "end", Value: req.End.UTC()},
	}

	daily, err := s.queryDaily(ctx, params)
	if err != nil {
		return nil, err
	}
	top, err := s.queryTopProducts(ctx, append(params, cloudbigquery.QueryParameter{Name: "limit", Value: topProductsLimit}))
	if err != nil {
		return nil, err
	}
	totals, err := s.queryTotals(ctx, params)
	if err != nil {
		return nil, err
	}

	return &types.SalesReport{
		Daily:       daily,
		TopProducts: top,
		Orders:      totals.Orders,
		Revenue:     ratToDecimal(totals.Revenue),
	}, nil
}

func validateRequest(req types.SalesReportRequest) error {
	if req.Start.IsZero() || req.End.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "start and end are required")
	}
	if req.End.Before(req.Start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "end must be after start")
	}
	if req.End.Sub(req.Start) > MaxReportWindow {
		return pkgerrors.New(pkgerrors.CodeValidation, "report window exceeds one year")
	}
	return nil
}

func (s *salesService) queryDaily(ctx context.Context, params []cloudbigquery.QueryParameter) ([]types.DailySales, error) {
	iter, err := s.run(ctx, fmt.Sprintf(dailySalesSQL, s.tableRef), params)
	if err != nil {
		return nil, err
	}

	points := []types.DailySales{}
	for {
		var row dailyRow
		if err := iter.Next(&row); err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read daily sales row")
		}
		points = append(points, types.DailySales{
			Date:    row.Day,
			Orders:  row.Orders,
			Units:   row.Units,
			Revenue: ratToDecimal(row.Revenue),
		})
	}
	return points, nil
}

func (s *salesService) queryTopProducts(ctx context.Context, params []cloudbigquery.QueryParameter) ([]types.ProductSales, error) {
	iter, err := s.run(ctx, fmt.Sprintf(topProductsSQL, s.tableRef), params)
	if err != nil {
		return nil, err
	}

	result := []types.ProductSales{}
	for {
		var row productRow
		if err := iter.Next(&row); err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read top product row")
		}
		result = append(result, types.ProductSales{
			ProductID: row.ProductID,
			Units:     row.Units,
			Revenue:   ratToDecimal(row.Revenue),
		})
	}
	return result, nil
}

func (s *salesService) queryTotals(ctx context.Context, params []cloudbigquery.QueryParameter) (totalsRow, error) {
	iter, err := s.run(ctx, fmt.Sprintf(totalsSQL, s.tableRef), params)
	if err != nil {
		return totalsRow{}, err
	}
	var row totalsRow
	if err := iter.Next(&row); err != nil {
		if errors.Is(err, iterator.Done) {
			return totalsRow{}, nil
		}
		return totalsRow{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read sales totals row")
	}
	return row, nil
}

func (s *salesService) run(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (rowIterator, error) {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query order sales")
	}
	return iter, nil
}

func ratToDecimal(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(r.FloatString(2))
	if err != nil {
		return decimal.Zero
	}
	return d
}

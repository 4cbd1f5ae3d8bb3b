package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/sportedge/sportedge-backend/pkg/config"
	"github.com/sportedge/sportedge-backend/pkg/logger"
	"github.com/sportedge/sportedge-backend/pkg/pubsub"
)

const metadataTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Client is the warehouse handle shared by the sales writer and the report
// queries. It is bound to one dataset.
type Client struct {
	client     *bigquery.Client
	dataset    *bigquery.Dataset
	salesTable string
}

// NewClient connects and checks that the dataset exists. Table checks are
// left to Ping so a missing table can be created first.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	project, datasetID, table := strings.TrimSpace(gcp.ProjectID), strings.TrimSpace(cfg.Dataset), strings.TrimSpace(cfg.OrderSalesTable)
	switch {
	case project == "":
		return nil, errProjectIDRequired
	case datasetID == "":
		return nil, errDatasetRequired
	case table == "":
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, project, pubsub.ClientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	c := &Client{client: bq, dataset: bq.Dataset(datasetID), salesTable: table}
	if err := c.exists(ctx, "dataset "+datasetID, c.datasetMeta); err != nil {
		_ = bq.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": datasetID, "table": table}), "bigquery.connected")
	}
	return c, nil
}

// Ping checks the dataset and the order sales table.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	if err := c.exists(ctx, "dataset "+c.dataset.DatasetID, c.datasetMeta); err != nil {
		return err
	}
	return c.exists(ctx, "table "+c.salesTable, func(ctx context.Context) error {
		_, err := c.dataset.Table(c.salesTable).Metadata(ctx)
		return err
	})
}

func (c *Client) datasetMeta(ctx context.Context) error {
	_, err := c.dataset.Metadata(ctx)
	return err
}

// EnsureTable creates table with schema unless it already exists. A non-empty
// partitionBy day-partitions the table on that TIMESTAMP column.
func (c *Client) EnsureTable(ctx context.Context, table string, schema bigquery.Schema, partitionBy string) (bool, error) {
	if c == nil || c.dataset == nil {
		return false, errClientNotInitialized
	}
	if table = strings.TrimSpace(table); table == "" {
		return false, errTableNameRequired
	}
	meta := &bigquery.TableMetadata{Schema: schema}
	if partitionBy != "" {
		meta.TimePartitioning = &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: partitionBy}
	}

	err := c.dataset.Table(table).Create(ctx, meta)
	switch {
	case err == nil:
		return true, nil
	case apiStatus(err) == http.StatusConflict:
		return false, nil
	default:
		return false, fmt.Errorf("create table %s: %w", table, err)
	}
}

func (c *Client) exists(ctx context.Context, what string, lookup func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	err := lookup(ctx)
	switch {
	case err == nil:
		return nil
	case IsNotFound(err):
		return fmt.Errorf("%s does not exist", what)
	default:
		return fmt.Errorf("check %s: %w", what, err)
	}
}

// OrderSalesTable is the configured sales table id.
func (c *Client) OrderSalesTable() string {
	if c == nil {
		return ""
	}
	return c.salesTable
}

// InsertRows streams rows into table. Each ValueSaver picks its own insert id.
func (c *Client) InsertRows(ctx context.Context, table string, rows []bigquery.ValueSaver) error {
	switch {
	case c == nil || c.dataset == nil:
		return errClientNotInitialized
	case strings.TrimSpace(table) == "":
		return errTableNameRequired
	case len(rows) == 0:
		return nil
	}
	return c.dataset.Table(strings.TrimSpace(table)).Inserter().Put(ctx, rows)
}

// TableRef is the backtick-quoted project.dataset.table name of the sales
// table, ready to splice into SQL.
func (c *Client) TableRef() string {
	if c == nil || c.client == nil || c.dataset == nil {
		return ""
	}
	return fmt.Sprintf("`%s.%s.%s`", c.client.Project(), c.dataset.DatasetID, c.salesTable)
}

// Query runs a parameterized statement.
func (c *Client) Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (*bigquery.RowIterator, error) {
	if c == nil || c.client == nil {
		return nil, errClientNotInitialized
	}
	if strings.TrimSpace(sql) == "" {
		return nil, errors.New("sql query is required")
	}
	q := c.client.Query(sql)
	q.Parameters = params
	return q.Read(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func IsNotFound(err error) bool {
	return apiStatus(err) == http.StatusNotFound
}

// IsRetryable reports whether a failed call may succeed on retry. Row-level
// insert failures never are.
func IsRetryable(err error) bool {
	switch apiStatus(err) {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	var rowErrs bigquery.PutMultiError
	if errors.As(err, &rowErrs) {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func apiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

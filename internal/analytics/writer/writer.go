package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sportedge/sportedge-backend/internal/analytics/types"
	pkgbigquery "github.com/sportedge/sportedge-backend/pkg/bigquery"
)

type Config struct {
	OrderSalesTable string
	RetryPolicy     RetryPolicy
}

// RetryPolicy bounds retries of a streaming insert. Zero fields take the
// package defaults.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 250 * time.Millisecond
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = max(2*time.Second, p.InitialBackoff)
	}
	return p
}

// delay is the wait before retry n, counting from 1.
func (p RetryPolicy) delay(n int) time.Duration {
	d := p.InitialBackoff << (n - 1)
	if d <= 0 || d > p.MaximumBackoff {
		return p.MaximumBackoff
	}
	return d
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []cbigquery.ValueSaver) error
}

// BigQueryWriter streams order_sales rows. An order is written in one insert
// and the call returns only once BigQuery accepted it, so the worker never
// acks an event whose rows were lost.
type BigQueryWriter struct {
	client tableInserter
	table  string
	retry  RetryPolicy
}

func New(client *pkgbigquery.Client, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	return newWriter(client, cfg)
}

func newWriter(client tableInserter, cfg Config) (*BigQueryWriter, error) {
	table := strings.TrimSpace(cfg.OrderSalesTable)
	if table == "" {
		return nil, errors.New("order sales table is required")
	}
	return &BigQueryWriter{client: client, table: table, retry: cfg.RetryPolicy.withDefaults()}, nil
}

func (w *BigQueryWriter) InsertOrderSales(ctx context.Context, rows []types.OrderSaleRow) error {
	if len(rows) == 0 {
		return nil
	}
	savers := make([]cbigquery.ValueSaver, 0, len(rows))
	for i := range rows {
		savers = append(savers, &rows[i])
	}

	var err error
	for attempt := 1; ; attempt++ {
		if err = w.client.InsertRows(ctx, w.table, savers); err == nil {
			return nil
		}
		if attempt == w.retry.MaxAttempts || !transient(err) {
			return fmt.Errorf("insert %d rows into %s after %d attempt(s): %w", len(savers), w.table, attempt, err)
		}

		wait := time.NewTimer(w.retry.delay(attempt))
		select {
		case <-ctx.Done():
			wait.Stop()
			return ctx.Err()
		case <-wait.C:
		}
	}
}

// transient reports whether retrying the same insert could succeed. Grouped
// errors are transient only when every member is.
func transient(err error) bool {
	var rows cbigquery.PutMultiError
	if errors.As(err, &rows) {
		if len(rows) == 0 {
			return false
		}
		for _, row := range rows {
			if !transient(row.Errors) {
				return false
			}
		}
		return true
	}

	var group cbigquery.MultiError
	if errors.As(err, &group) {
		if len(group) == 0 {
			return false
		}
		for _, inner := range group {
			if !transient(inner) {
				return false
			}
		}
		return true
	}

	var rowErr *cbigquery.Error
	if errors.As(err, &rowErr) {
		switch rowErr.Reason {
		case "backendError", "internalError", "rateLimitExceeded", "timeout", "stopped":
			return true
		}
		return false
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
		return false
	}

	return pkgbigquery.IsRetryable(err)
}

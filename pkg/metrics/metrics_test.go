package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestOrderMetricsCountsOutcomes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)
	m.ObservePlacement(OutcomePlaced, 20*time.Millisecond)
	m.ObservePlacement(OutcomePlaced, 10*time.Millisecond)
	m.ObservePlacement(OutcomeInsufficientStock, time.Millisecond)
	m.AddUnitsSold(3)
	m.AddUnitsSold(-1)

	require.Equal(t, 2.0, testutil.ToFloat64(m.placements.WithLabelValues(OutcomePlaced)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.placements.WithLabelValues(OutcomeInsufficientStock)))
	require.Equal(t, 3.0, testutil.ToFloat64(m.units))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	mf := findMetricFamily(mfs, "sportedge_orders_placement_duration_seconds")
	require.NotNil(t, mf)
	require.Equal(t, uint64(3), mf.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestWorkerMetricsExportsCountersAndHistogram(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewWorkerMetrics(reg)
	m.ObserveBatch("outbox", 250*time.Millisecond)
	m.AddProcessed("outbox", 4)
	m.AddFailed("outbox", 1)
	m.AddFailed("", 2)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "sportedge_worker_processed_total", "worker", "outbox")
	require.NoError(t, err)
	require.Equal(t, 4.0, got)

	got, err = fetchCounterValue(mfs, "sportedge_worker_failed_total", "worker", "unknown")
	require.NoError(t, err)
	require.Equal(t, 2.0, got)

	mf := findMetricFamily(mfs, "sportedge_worker_batch_duration_seconds")
	require.NotNil(t, mf)
	require.Greater(t, mf.GetMetric()[0].GetHistogram().GetSampleSum(), 0.0)
}

func TestJobMetricsSplitsResults(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)
	m.ObserveRun("outbox-retention", 40*time.Millisecond, nil)
	m.ObserveRun("outbox-retention", time.Millisecond, errors.New("db gone"))
	m.AddAffected("outbox-retention", 12)
	m.AddAffected("outbox-retention", 0)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("outbox-retention", JobSucceeded)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("outbox-retention", JobFailed)))
	require.Equal(t, 12.0, testutil.ToFloat64(m.affected.WithLabelValues("outbox-retention")))
}

func TestNilRecordersAreNoops(t *testing.T) {
	t.Parallel()

	var o *OrderMetrics
	o.ObservePlacement(OutcomePlaced, time.Second)
	NewOrderMetrics(nil).AddUnitsSold(1)
	NewWorkerMetrics(nil).AddProcessed("x", 1)
	NewJobMetrics(nil).ObserveRun("x", time.Second, nil)
	NewHTTPMetrics(nil).Observe(http.MethodGet, "/", 200, time.Second)
}

func TestHTTPMetricsHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe(http.MethodPost, "/api/v1/orders", http.StatusCreated, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, `sportedge_api_http_requests_total{method="POST",route="/api/v1/orders",status="201"} 1`), body)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		for _, pair := range metric.GetLabel() {
			if pair.GetName() == label && pair.GetValue() == value {
				return metric.GetCounter().GetValue(), nil
			}
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

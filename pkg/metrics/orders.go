package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Placement outcomes.
const (
	OutcomePlaced            = "placed"
	OutcomeEmptyCart         = "empty_cart"
	OutcomeVariationNotFound = "variation_not_found"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomePersistence       = "persistence_failure"
)

// OrderMetrics records order placement outcomes and latency.
type OrderMetrics struct {
	placements *prometheus.CounterVec
	duration   prometheus.Histogram
	units      prometheus.Counter
}

// NewOrderMetrics registers the order placement metrics on reg.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	placements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "placements_total",
		Help:      "Order placement attempts by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "placement_duration_seconds",
		Help:      "Duration of the order placement transaction.",
		Buckets:   prometheus.DefBuckets,
	})
	units := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "units_sold_total",
		Help:      "Stock units decremented by placed orders.",
	})
	reg.MustRegister(placements, duration, units)
	return &OrderMetrics{placements: placements, duration: duration, units: units}
}

// ObservePlacement records the outcome and elapsed time of one attempt.
func (m *OrderMetrics) ObservePlacement(outcome string, elapsed time.Duration) {
	if m == nil || m.placements == nil {
		return
	}
	m.placements.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// AddUnitsSold increments the decremented stock counter.
func (m *OrderMetrics) AddUnitsSold(units int) {
	if m == nil || m.units == nil || units <= 0 {
		return
	}
	m.units.Add(float64(units))
}

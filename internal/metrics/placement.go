package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины неудачного размещения заказа для метки reason.
const (
	ReasonInvalidInput      = "invalid_input"
	ReasonNotFound          = "not_found"
	ReasonInsufficientStock = "insufficient_stock"
	ReasonConflict          = "conflict"
	ReasonInternal          = "internal"
)

// PlacementMetrics — метрики размещения заказов. Nil-значение ничего не пишет.
type PlacementMetrics struct {
	placed        prometheus.Counter
	failed        *prometheus.CounterVec
	numberRetry   prometheus.Counter
	duration      prometheus.Histogram
	linesPerOrder prometheus.Histogram
}

// NewPlacementMetricsWith регистрирует метрики в переданном registerer (nil означает DefaultRegisterer).
func NewPlacementMetricsWith(registerer prometheus.Registerer) *PlacementMetrics {
	return &PlacementMetrics{
		placed: register(registerer, "storefront_orders_placed_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Total number of orders placed",
		})),
		failed: register(registerer, "storefront_order_placement_failures_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_order_placement_failures_total",
			Help: "Total number of rejected or failed order placements by reason",
		}, []string{"reason"})),
		numberRetry: register(registerer, "storefront_order_number_retries_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_order_number_retries_total",
			Help: "Total number of placement retries caused by a duplicate order number",
		})),
		duration: register(registerer, "storefront_order_placement_duration_seconds", prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_order_placement_duration_seconds",
			Help:    "Duration of order placement in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		})),
		linesPerOrder: register(registerer, "storefront_order_lines", prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_order_lines",
			Help:    "Number of lines in placed orders",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
		})),
	}
}

// RecordPlaced фиксирует успешно размещённый заказ.
func (m *PlacementMetrics) RecordPlaced(lines int, took time.Duration) {
	if m == nil {
		return
	}
	m.placed.Inc()
	m.linesPerOrder.Observe(float64(lines))
	m.duration.Observe(took.Seconds())
}

// RecordFailed фиксирует отказ с причиной reason.
func (m *PlacementMetrics) RecordFailed(reason string, took time.Duration) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(reason).Inc()
	m.duration.Observe(took.Seconds())
}

// RecordNumberRetry фиксирует повтор транзакции из-за занятого номера заказа.
func (m *PlacementMetrics) RecordNumberRetry() {
	if m == nil {
		return
	}
	m.numberRetry.Inc()
}

package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// VoucherEvaluationsTotal counts voucher evaluations by mode (apply, preview, checkout) and outcome.
	VoucherEvaluationsTotal *prometheus.CounterVec
	// VoucherAssignmentsTotal counts admin voucher assignments by outcome.
	VoucherAssignmentsTotal *prometheus.CounterVec
	// OrdersCreatedTotal counts orders created, split by whether a voucher was redeemed.
	OrdersCreatedTotal *prometheus.CounterVec
	// OrderTotalAmount observes order totals in currency units.
	OrderTotalAmount prometheus.Histogram
	// OrderStatusTransitionsTotal counts admin status changes.
	OrderStatusTransitionsTotal *prometheus.CounterVec
	// CatalogCacheTotal counts catalog cache lookups by result (hit, miss, error).
	CatalogCacheTotal *prometheus.CounterVec
	// EventsPublishedTotal counts domain events handed to a sink, by type and outcome.
	EventsPublishedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		VoucherEvaluationsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_evaluations_total",
			Help:      "Count of voucher evaluations by mode and outcome.",
		}, []string{"mode", "result"}))
		VoucherAssignmentsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_assignments_total",
			Help:      "Count of voucher assignments by outcome.",
		}, []string{"result"}))
		OrdersCreatedTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Count of orders created.",
		}, []string{"voucher"}))
		OrderTotalAmount = registerOrReuse[prometheus.Histogram](reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_total_amount",
			Help:      "Distribution of order totals.",
			Buckets:   prometheus.ExponentialBuckets(10000, 4, 8),
		}))
		OrderStatusTransitionsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_status_transitions_total",
			Help:      "Count of order status transitions.",
		}, []string{"from", "to"}))
		CatalogCacheTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_cache_total",
			Help:      "Catalog cache lookups by result.",
		}, []string{"result"}))
		EventsPublishedTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events delivered to sinks by type and outcome.",
		}, []string{"sink", "type", "result"}))
	})
}

// IncCounter increments a labelled counter when it has been registered.
func IncCounter(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}

// Observe records v on a histogram when it has been registered.
func Observe(h prometheus.Histogram, v float64) {
	if h == nil {
		return
	}
	h.Observe(v)
}

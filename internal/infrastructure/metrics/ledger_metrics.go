// Package metrics exposes prometheus collectors for ledger operations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tpvcore/internal/domain"
)

// Register operation results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// LedgerMetrics implements domain.Metrics.
type LedgerMetrics struct {
	invoicesIssued     *prometheus.CounterVec
	registerOperations *prometheus.CounterVec
	unitsRectified     prometheus.Counter
	cashDifference     prometheus.Histogram
	tenantLockWait     prometheus.Histogram
	gatherer           prometheus.Gatherer
}

var _ domain.Metrics = (*LedgerMetrics)(nil)

// New registers the ledger collectors on registry. A nil registry uses a fresh one.
func New(registry *prometheus.Registry) *LedgerMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	invoicesIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tpv_invoices_issued_total",
		Help: "Invoices issued by type.",
	}, []string{"type"})
	registerOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tpv_register_operations_total",
		Help: "Cash register open/close attempts by result.",
	}, []string{"op", "result"})
	unitsRectified := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tpv_rectified_units_total",
		Help: "Units returned through rectificativas.",
	})
	// Signed: surplus is positive, shortage negative
	cashDifference := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tpv_register_cash_difference",
		Help:    "Counted minus expected cash at register close.",
		Buckets: []float64{-50, -20, -10, -5, -1, -0.01, 0, 0.01, 1, 5, 10, 20, 50},
	})
	tenantLockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tpv_tenant_lock_wait_seconds",
		Help:    "Wait time for the tenant row lock (SELECT FOR UPDATE).",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	registry.MustRegister(
		invoicesIssued,
		registerOperations,
		unitsRectified,
		cashDifference,
		tenantLockWait,
	)

	return &LedgerMetrics{
		invoicesIssued:     invoicesIssued,
		registerOperations: registerOperations,
		unitsRectified:     unitsRectified,
		cashDifference:     cashDifference,
		tenantLockWait:     tenantLockWait,
		gatherer:           registry,
	}
}

func (m *LedgerMetrics) InvoiceIssued(invoiceType string) {
	m.invoicesIssued.WithLabelValues(invoiceType).Inc()
}

func (m *LedgerMetrics) RegisterOperation(op, result string) {
	m.registerOperations.WithLabelValues(op, result).Inc()
}

func (m *LedgerMetrics) UnitsRectified(units float64) {
	if units <= 0 {
		return
	}
	m.unitsRectified.Add(units)
}

func (m *LedgerMetrics) CashDifference(diff float64) {
	m.cashDifference.Observe(diff)
}

// ObserveLockWait records one tenant lock acquisition.
func (m *LedgerMetrics) ObserveLockWait(wait time.Duration) {
	m.tenantLockWait.Observe(wait.Seconds())
}

// Handler serves the registry in the prometheus exposition format.
func (m *LedgerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

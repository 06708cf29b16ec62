package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	ResultSuccess           = "success"
	ResultInsufficientStock = "insufficient_stock"
	ResultMismatch          = "reservation_mismatch"
	ResultError             = "error"
)

// InventoryMetrics counts ledger operations and commit mismatches.
type InventoryMetrics struct {
	operations *prometheus.CounterVec
	mismatches prometheus.Counter
	expired    prometheus.Counter
}

// NewInventoryMetrics registers the inventory metrics on reg. A nil registerer yields a no-op recorder.
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sareehub_inventory_operations_total",
		Help: "Inventory ledger operations by kind and result.",
	}, []string{"operation", "result"})
	mismatches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sareehub_inventory_commit_mismatch_total",
		Help: "Paid order items whose reservation could not be committed.",
	})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sareehub_orders_reservation_expired_total",
		Help: "Pending orders cancelled because their reservation expired.",
	})
	reg.MustRegister(operations, mismatches, expired)
	return &InventoryMetrics{operations: operations, mismatches: mismatches, expired: expired}
}

// ObserveOperation increments the operation counter.
func (m *InventoryMetrics) ObserveOperation(operation, result string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(operation), normalizeLabel(result)).Inc()
}

func (m *InventoryMetrics) IncCommitMismatch() {
	if m == nil || m.mismatches == nil {
		return
	}
	m.mismatches.Inc()
}

func (m *InventoryMetrics) AddExpired(n int) {
	if m == nil || m.expired == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

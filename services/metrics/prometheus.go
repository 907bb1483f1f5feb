package metricsvc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/trezcool/feeledger/core/fee"
)

const namespace = "feeledger"

// Prometheus collects the ledger metrics.
type Prometheus struct {
	paymentsRecorded   prometheus.Counter
	paymentClamps      prometheus.Counter
	concessionsApplied prometheus.Counter
	conflicts          *prometheus.CounterVec
	assignmentRows     *prometheus.CounterVec
	opDuration         *prometheus.HistogramVec
}

var _ fee.Metrics = (*Prometheus)(nil)

// NewPrometheus registers the collectors on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		paymentsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_recorded_total",
			Help:      "Payments recorded against ledger rows.",
		}),
		paymentClamps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_clamps_total",
			Help:      "Payments exceeding the due balance, clamped to it.",
		}),
		concessionsApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concessions_applied_total",
			Help:      "Concessions applied to ledger rows.",
		}),
		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Operations rejected because of a concurrent update.",
		}, []string{"op"}),
		assignmentRows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignment_rows_total",
			Help:      "Ledger rows created or skipped by fee assignments.",
		}, []string{"result"}),
		opDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of ledger operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
}

func (m *Prometheus) PaymentRecorded(clamped bool) {
	m.paymentsRecorded.Inc()
	if clamped {
		m.paymentClamps.Inc()
	}
}

func (m *Prometheus) ConcessionApplied() {
	m.concessionsApplied.Inc()
}

func (m *Prometheus) Conflict(op string) {
	m.conflicts.WithLabelValues(op).Inc()
}

func (m *Prometheus) AssignmentRows(created, skipped int) {
	m.assignmentRows.WithLabelValues("created").Add(float64(created))
	m.assignmentRows.WithLabelValues("skipped").Add(float64(skipped))
}

func (m *Prometheus) ObserveOperation(op string, d time.Duration) {
	m.opDuration.WithLabelValues(op).Observe(d.Seconds())
}

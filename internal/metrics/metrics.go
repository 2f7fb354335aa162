package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters the core increments. Register once at startup
// and share the instance; a nil registry gets a private one so tests and
// library callers need no wiring.
type Metrics struct {
	TransactionsProcessed *prometheus.CounterVec
	Transitions           *prometheus.CounterVec
	RefundsCreated        prometheus.Counter
	RefundsRecovered      prometheus.Counter
	JobsExecuted          *prometheus.CounterVec
	AuditFailures         prometheus.Counter
}

func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Metrics{
		TransactionsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_transactions_processed_total",
			Help: "Transactions accepted by the processor, by risk recommendation",
		}, []string{"recommendation"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_transitions_total",
			Help: "Status transitions applied, by target status",
		}, []string{"status"}),
		RefundsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "payments_refunds_created_total",
			Help: "Refund transactions created",
		}),
		RefundsRecovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "payments_refunds_recovered_total",
			Help: "Stuck refunds completed by the startup recovery sweep",
		}),
		JobsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_scheduled_jobs_executed_total",
			Help: "Durable scheduled jobs drained by the reaper, by kind",
		}, []string{"kind"}),
		AuditFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "payments_audit_write_failures_total",
			Help: "Audit events that failed to persist and were dropped",
		}),
	}
}

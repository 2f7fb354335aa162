package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dsapoetra/payment-processing-sub001/internal/processor"
	"github.com/dsapoetra/payment-processing-sub001/internal/repository"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	proc *processor.Service,
	txnRepo *repository.TransactionRepo,
	auditRepo *repository.AuditRepo,
	registry *prometheus.Registry,
) http.Handler {
	h := &Handlers{
		proc:      proc,
		txnRepo:   txnRepo,
		auditRepo: auditRepo,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if registry != nil {
		r.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		// Transactions.
		r.Post("/transactions", h.CreateTransaction)
		r.Get("/transactions", h.ListTransactions)
		r.Get("/transactions/{id}", h.GetTransaction)
		r.Post("/transactions/{id}/complete", h.CompleteTransaction)
		r.Post("/transactions/{id}/fail", h.FailTransaction)
		r.Post("/transactions/{id}/cancel", h.CancelTransaction)

		// Refunds are addressed by the parent's transaction reference.
		r.Post("/transactions/{id}/refund", h.RefundTransaction)

		// Audit trail.
		r.Get("/audit-events", h.ListAuditEvents)
	})

	return r
}

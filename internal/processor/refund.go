package processor

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dsapoetra/payment-processing-sub001/internal/domain"
	"github.com/dsapoetra/payment-processing-sub001/internal/repository"
)

// Refund creates a refund transaction linked to the parent payment, flips
// the parent's status and schedules the refund's deferred completion.
//
// The cumulative-amount check, the parent flip, the refund row and its
// completion job share one store transaction: either all of them land or
// none do, and a concurrent refund of the same parent serializes against
// the transaction instead of reading a stale sum. The flip itself is still
// a conditional update from {completed, partially_refunded}, so a refund
// racing an out-of-band status change loses cleanly.
func (s *Service) Refund(req *domain.RefundRequest, tenantID, actorID string) (*domain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, domain.InvalidArgumentf("refund amount must be positive, got %.2f", req.Amount)
	}

	parent, err := s.txnRepo.GetByReference(tenantID, req.ParentReference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("transaction %s", req.ParentReference)
		}
		return nil, fmt.Errorf("lookup parent: %w", err)
	}

	if parent.Status != domain.StatusCompleted && parent.Status != domain.StatusPartiallyRefunded {
		return nil, domain.InvalidStatef("can only refund completed transactions, %s is %s",
			parent.Reference, parent.Status)
	}

	sqlTx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin refund: %w", err)
	}
	defer sqlTx.Rollback()

	txns := s.txnRepo.WithTx(sqlTx)

	alreadyRefunded, err := txns.SumRefunded(tenantID, parent.Reference)
	if err != nil {
		return nil, fmt.Errorf("sum refunds: %w", err)
	}
	remaining := round2(parent.Amount - alreadyRefunded)
	if req.Amount > remaining {
		return nil, domain.InvalidArgumentf("refund amount %.2f exceeds refundable amount %.2f",
			req.Amount, remaining)
	}

	parentStatus := domain.StatusPartiallyRefunded
	if round2(req.Amount) == remaining {
		parentStatus = domain.StatusRefunded
	}

	changed, err := txns.UpdateStatus(tenantID, parent.ID, repository.StatusChange{
		From: []domain.TransactionStatus{domain.StatusCompleted, domain.StatusPartiallyRefunded},
		To:   parentStatus,
	})
	if err != nil {
		return nil, fmt.Errorf("update parent status: %w", err)
	}
	if !changed {
		return nil, domain.InvalidStatef("transaction %s was refunded concurrently", parent.Reference)
	}

	now := s.now()
	refund := &domain.Transaction{
		ID:              uuid.NewString(),
		Reference:       newReference(now),
		TenantID:        tenantID,
		MerchantID:      parent.MerchantID,
		Type:            domain.TypeRefund,
		Status:          domain.StatusProcessing,
		PaymentMethod:   parent.PaymentMethod,
		Amount:          round2(req.Amount),
		FeeAmount:       0,
		NetAmount:       round2(req.Amount),
		Currency:        parent.Currency,
		CustomerEmail:   parent.CustomerEmail,
		Description:     req.Reason,
		ParentReference: parent.Reference,
		CreatedAt:       now,
	}
	if err := txns.Insert(refund); err != nil {
		return nil, fmt.Errorf("persist refund: %w", err)
	}

	if err := s.scheduleJob(s.jobRepo.WithTx(sqlTx), tenantID, refund.ID,
		repository.JobCompleteRefund, s.refundDelay); err != nil {
		return nil, fmt.Errorf("schedule refund completion: %w", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit refund: %w", err)
	}

	s.audit(tenantID, actorID, "refund.created", refund.ID,
		fmt.Sprintf("Refund %s created for %.2f %s against %s",
			refund.Reference, refund.Amount, refund.Currency, parent.Reference),
		map[string]string{"parent_reference": parent.Reference, "reason": req.Reason})
	s.metrics.RefundsCreated.Inc()
	s.metrics.Transitions.WithLabelValues(string(parentStatus)).Inc()

	return refund, nil
}

// CompleteRefund finishes a processing refund, stamping both terminal
// timestamps. It is idempotent: if the refund already completed — the reaper
// and the recovery sweep can both reach the same row — the conditional
// update matches nothing and the call is a no-op.
func (s *Service) CompleteRefund(tenantID, id string) error {
	now := s.now()
	changed, err := s.txnRepo.UpdateStatus(tenantID, id, repository.StatusChange{
		From:        []domain.TransactionStatus{domain.StatusProcessing},
		To:          domain.StatusCompleted,
		ProcessedAt: &now,
		SettledAt:   &now,
	})
	if err != nil {
		return fmt.Errorf("complete refund: %w", err)
	}
	if !changed {
		return nil
	}

	s.metrics.Transitions.WithLabelValues(string(domain.StatusCompleted)).Inc()
	s.audit(tenantID, "", "refund.completed", id,
		fmt.Sprintf("Refund %s completed", id), nil)
	return nil
}

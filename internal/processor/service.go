package processor

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dsapoetra/payment-processing-sub001/internal/domain"
	"github.com/dsapoetra/payment-processing-sub001/internal/metrics"
	"github.com/dsapoetra/payment-processing-sub001/internal/repository"
	"github.com/dsapoetra/payment-processing-sub001/internal/risk"
)

// FailureCodeFraud is set on transactions auto-declined by the risk scorer.
const FailureCodeFraud = "FRAUD_SUSPECTED"

// Service orchestrates the transaction lifecycle: merchant validation, fee
// computation, risk scoring, persistence and the guarded state machine.
// All mutations go through conditional status updates so a transition can
// never be applied twice.
type Service struct {
	db           *sql.DB
	txnRepo      *repository.TransactionRepo
	merchantRepo *repository.MerchantRepo
	auditRepo    *repository.AuditRepo
	jobRepo      *repository.JobRepo
	scorer       *risk.Scorer
	metrics      *metrics.Metrics

	settlementDelay time.Duration
	refundDelay     time.Duration
	now             func() time.Time
}

func NewService(
	db *sql.DB,
	txnRepo *repository.TransactionRepo,
	merchantRepo *repository.MerchantRepo,
	auditRepo *repository.AuditRepo,
	jobRepo *repository.JobRepo,
	scorer *risk.Scorer,
	m *metrics.Metrics,
	settlementDelay, refundDelay time.Duration,
) *Service {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Service{
		db:              db,
		txnRepo:         txnRepo,
		merchantRepo:    merchantRepo,
		auditRepo:       auditRepo,
		jobRepo:         jobRepo,
		scorer:          scorer,
		metrics:         m,
		settlementDelay: settlementDelay,
		refundDelay:     refundDelay,
		now:             time.Now,
	}
}

// WithClock overrides the service's notion of the current time, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Process validates, scores and persists a new transaction, then applies the
// risk recommendation: approve schedules a deferred settlement, review parks
// the transaction in processing, decline fails it immediately.
func (s *Service) Process(req *domain.CreateTransactionRequest, tenantID, actorID string) (*domain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, domain.InvalidArgumentf("amount must be positive, got %.2f", req.Amount)
	}
	if req.Type == "" {
		req.Type = domain.TypePayment
	}

	merchant, err := s.merchantRepo.Get(tenantID, req.MerchantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("merchant %s", req.MerchantID)
		}
		return nil, fmt.Errorf("lookup merchant: %w", err)
	}
	if merchant.Status != domain.MerchantActive {
		return nil, domain.InvalidStatef("merchant %s is %s", merchant.ID, merchant.Status)
	}

	now := s.now()
	fee := round2(req.Amount * FeeRate(req.PaymentMethod))

	tx := &domain.Transaction{
		ID:            uuid.NewString(),
		Reference:     newReference(now),
		TenantID:      tenantID,
		MerchantID:    merchant.ID,
		Type:          req.Type,
		Status:        domain.StatusPending,
		PaymentMethod: req.PaymentMethod,
		Amount:        round2(req.Amount),
		FeeAmount:     fee,
		NetAmount:     round2(req.Amount - fee),
		Currency:      req.Currency,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		IPAddress:     req.IPAddress,
		Description:   req.Description,
		CreatedAt:     now,
	}

	// Risk scoring happens before the row exists, so velocity counts see
	// only prior transactions. Refunds and adjustments are not scored.
	recommendation := domain.RecommendApprove
	if tx.Type == domain.TypePayment {
		assessment, err := s.scorer.Assess(req, tenantID)
		if err != nil {
			return nil, fmt.Errorf("assess risk: %w", err)
		}
		tx.RiskAssessment = assessment
		recommendation = assessment.Recommendation
	}

	if err := s.txnRepo.Insert(tx); err != nil {
		return nil, fmt.Errorf("persist transaction: %w", err)
	}
	s.audit(tenantID, actorID, "transaction.created", tx.ID,
		fmt.Sprintf("Transaction %s created: %.2f %s via %s", tx.Reference, tx.Amount, tx.Currency, tx.PaymentMethod),
		map[string]string{"reference": tx.Reference, "merchant_id": tx.MerchantID})
	s.metrics.TransactionsProcessed.WithLabelValues(string(recommendation)).Inc()

	switch recommendation {
	case domain.RecommendApprove:
		if err := s.scheduleJob(s.jobRepo, tenantID, tx.ID, repository.JobCompletePayment, s.settlementDelay); err != nil {
			return nil, fmt.Errorf("schedule settlement: %w", err)
		}

	case domain.RecommendReview:
		processedAt := s.now()
		changed, err := s.txnRepo.UpdateStatus(tenantID, tx.ID, repository.StatusChange{
			From:        []domain.TransactionStatus{domain.StatusPending},
			To:          domain.StatusProcessing,
			ProcessedAt: &processedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("hold for review: %w", err)
		}
		if changed {
			s.metrics.Transitions.WithLabelValues(string(domain.StatusProcessing)).Inc()
			s.audit(tenantID, "", "transaction.review", tx.ID,
				fmt.Sprintf("Transaction %s held for manual review (score %d)", tx.Reference, tx.RiskAssessment.Score), nil)
		}

	case domain.RecommendDecline:
		processedAt := s.now()
		changed, err := s.txnRepo.UpdateStatus(tenantID, tx.ID, repository.StatusChange{
			From:          []domain.TransactionStatus{domain.StatusPending},
			To:            domain.StatusFailed,
			ProcessedAt:   &processedAt,
			FailureCode:   FailureCodeFraud,
			FailureReason: "declined by risk assessment",
		})
		if err != nil {
			return nil, fmt.Errorf("auto-decline: %w", err)
		}
		if changed {
			s.metrics.Transitions.WithLabelValues(string(domain.StatusFailed)).Inc()
			s.audit(tenantID, "", "transaction.declined", tx.ID,
				fmt.Sprintf("Transaction %s auto-declined (score %d)", tx.Reference, tx.RiskAssessment.Score), nil)
		}
	}

	return s.txnRepo.GetByID(tenantID, tx.ID)
}

// Complete moves a pending or processing transaction to completed, stamping
// both terminal timestamps. A second call fails with an invalid-state error.
func (s *Service) Complete(tenantID, id, actorID string) (*domain.Transaction, error) {
	now := s.now()
	return s.transition(tenantID, id, actorID, repository.StatusChange{
		From:        []domain.TransactionStatus{domain.StatusPending, domain.StatusProcessing},
		To:          domain.StatusCompleted,
		ProcessedAt: &now,
		SettledAt:   &now,
	}, "transaction.completed")
}

// Fail moves a pending or processing transaction to failed with the given
// failure code and reason.
func (s *Service) Fail(tenantID, id, actorID, code, reason string) (*domain.Transaction, error) {
	now := s.now()
	return s.transition(tenantID, id, actorID, repository.StatusChange{
		From:          []domain.TransactionStatus{domain.StatusPending, domain.StatusProcessing},
		To:            domain.StatusFailed,
		ProcessedAt:   &now,
		FailureCode:   code,
		FailureReason: reason,
	}, "transaction.failed")
}

// Cancel is legal only from pending.
func (s *Service) Cancel(tenantID, id, actorID string) (*domain.Transaction, error) {
	now := s.now()
	return s.transition(tenantID, id, actorID, repository.StatusChange{
		From:        []domain.TransactionStatus{domain.StatusPending},
		To:          domain.StatusCancelled,
		ProcessedAt: &now,
	}, "transaction.cancelled")
}

func (s *Service) transition(tenantID, id, actorID string, ch repository.StatusChange, action string) (*domain.Transaction, error) {
	changed, err := s.txnRepo.UpdateStatus(tenantID, id, ch)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if !changed {
		tx, err := s.txnRepo.GetByID(tenantID, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("transaction %s", id)
		}
		if err != nil {
			return nil, fmt.Errorf("lookup transaction: %w", err)
		}
		return nil, domain.InvalidStatef("cannot transition transaction %s from %s to %s", id, tx.Status, ch.To)
	}

	s.metrics.Transitions.WithLabelValues(string(ch.To)).Inc()
	s.audit(tenantID, actorID, action, id,
		fmt.Sprintf("Transaction %s moved to %s", id, ch.To), nil)

	return s.txnRepo.GetByID(tenantID, id)
}

// SettlePayment finalizes an approved payment once its settlement delay has
// elapsed. It is invoked by the scheduler and is a no-op if the transaction
// already left pending (for example a cancel raced the settlement).
func (s *Service) SettlePayment(tenantID, id string) error {
	now := s.now()
	changed, err := s.txnRepo.UpdateStatus(tenantID, id, repository.StatusChange{
		From:        []domain.TransactionStatus{domain.StatusPending},
		To:          domain.StatusCompleted,
		ProcessedAt: &now,
		SettledAt:   &now,
	})
	if err != nil {
		return fmt.Errorf("settle payment: %w", err)
	}
	if !changed {
		return nil
	}

	s.metrics.Transitions.WithLabelValues(string(domain.StatusCompleted)).Inc()
	s.audit(tenantID, "", "transaction.completed", id,
		fmt.Sprintf("Transaction %s settled", id), nil)
	return nil
}

func (s *Service) scheduleJob(jobs *repository.JobRepo, tenantID, transactionID, kind string, delay time.Duration) error {
	now := s.now()
	return jobs.Insert(&repository.ScheduledJob{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		TransactionID: transactionID,
		Kind:          kind,
		DueAt:         now.Add(delay),
		CreatedAt:     now,
	})
}

// audit appends an event and logs instead of failing: audit trouble must
// never block the transition it describes.
func (s *Service) audit(tenantID, actorID, action, entityID, description string, metadata map[string]string) {
	ev := &domain.AuditEvent{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		ActorID:     actorID,
		Action:      action,
		EntityType:  "transaction",
		EntityID:    entityID,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   s.now(),
	}
	if err := s.auditRepo.Append(ev); err != nil {
		log.Printf("[processor] WARNING: audit append failed for %s on %s: %v", action, entityID, err)
		s.metrics.AuditFailures.Inc()
	}
}

// newReference builds a human-meaningful transaction reference, unique per
// tenant in practice: millisecond timestamp in base36 plus a random suffix.
func newReference(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("TXN_%s_%s", strconv.FormatInt(now.UnixMilli(), 36), suffix)
}

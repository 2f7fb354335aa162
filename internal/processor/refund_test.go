package processor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsapoetra/payment-processing-sub001/internal/domain"
	"github.com/dsapoetra/payment-processing-sub001/internal/repository"
)

// completedPayment creates and completes a payment so it can be refunded.
func completedPayment(t *testing.T, f *fixture, email string, amount float64) *domain.Transaction {
	t.Helper()
	tx, err := f.svc.Process(paymentRequest(email, domain.MethodCreditCard, amount), tenant, "tester")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, tx.Status)

	done, err := f.svc.Complete(tenant, tx.ID, "tester")
	require.NoError(t, err)
	return done
}

func TestRefundFullAmount(t *testing.T) {
	f := newFixture(t)
	parent := completedPayment(t, f, "refund-full@example.com", 100)

	refund, err := f.svc.Refund(&domain.RefundRequest{
		ParentReference: parent.Reference,
		Amount:          100,
		Reason:          "customer request",
	}, tenant, "tester")
	require.NoError(t, err)

	assert.Equal(t, domain.TypeRefund, refund.Type)
	assert.Equal(t, domain.StatusProcessing, refund.Status)
	assert.Equal(t, float64(0), refund.FeeAmount)
	assert.Equal(t, float64(100), refund.Amount)
	assert.Equal(t, parent.Reference, refund.ParentReference)
	assert.Nil(t, refund.RiskAssessment)

	updated, err := f.txnRepo.GetByID(tenant, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, updated.Status)

	// Completion is scheduled as a durable job.
	jobs, err := f.jobRepo.ListDue(noon.Add(time.Minute))
	require.NoError(t, err)
	var kinds []string
	for _, j := range jobs {
		kinds = append(kinds, j.Kind)
	}
	assert.Contains(t, kinds, repository.JobCompleteRefund)
}

func TestRefundPartialAmount(t *testing.T) {
	f := newFixture(t)
	parent := completedPayment(t, f, "refund-partial@example.com", 100)

	_, err := f.svc.Refund(&domain.RefundRequest{
		ParentReference: parent.Reference,
		Amount:          40,
		Reason:          "partial return",
	}, tenant, "tester")
	require.NoError(t, err)

	updated, err := f.txnRepo.GetByID(tenant, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartiallyRefunded, updated.Status)

	// Refunding the remainder flips the parent to fully refunded.
	_, err = f.svc.Refund(&domain.RefundRequest{
		ParentReference: parent.Reference,
		Amount:          60,
		Reason:          "remaining return",
	}, tenant, "tester")
	require.NoError(t, err)

	updated, err = f.txnRepo.GetByID(tenant, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, updated.Status)
}

func TestRefundAmountExceedsParent(t *testing.T) {
	f := newFixture(t)
	parent := completedPayment(t, f, "refund-over@example.com", 100)

	_, err := f.svc.Refund(&domain.RefundRequest{
		ParentReference: parent.Reference,
		Amount:          100.01,
		Reason:          "too much",
	}, tenant, "tester")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	// No mutation happened: parent untouched, no refund rows.
	updated, err := f.txnRepo.GetByID(tenant, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, updated.Status)

	refunded, err := f.txnRepo.SumRefunded(tenant, parent.Reference)
	require.NoError(t, err)
	assert.Equal(t, float64(0), refunded)
}

func TestRefundCumulativeAmountGuard(t *testing.T) {
	f := newFixture(t)
	parent := completedPayment(t, f, "refund-cumulative@example.com", 100)

	_, err := f.svc.Refund(&domain.RefundRequest{
		ParentReference: parent.Reference,
		Amount:          70,
		Reason:          "first",
	}, tenant, "tester")
	require.NoError(t, err)

	// 70 already refunded: another 40 would exceed the original amount.
	_, err = f.svc.Refund(&domain.RefundRequest{
		ParentReference: parent.Reference,
		Amount:          40,
		Reason:          "second",
	}, tenant, "tester")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRefundIsAtomic(t *testing.T) {
	f := newFixture(t)
	parent := completedPayment(t, f, "refund-atomic@example.com", 100)

	jobsBefore, err := f.jobRepo.Count()
	require.NoError(t, err)

	// Reject refund rows at the store level, so the insert fails after the
	// parent flip inside the same store transaction.
	_, err = f.db.Exec(`CREATE TRIGGER reject_refund_rows
		BEFORE INSERT ON transactions
		WHEN NEW.type = 'refund'
		BEGIN SELECT RAISE(ABORT, 'refund rows rejected'); END`)
	require.NoError(t, err)

	_, err = f.svc.Refund(&domain.RefundRequest{
		ParentReference: parent.Reference,
		Amount:          100,
		Reason:          "will fail",
	}, tenant, "tester")
	require.Error(t, err)

	// Everything rolled back: parent still refundable, no refund rows, no
	// orphaned completion job.
	updated, err := f.txnRepo.GetByID(tenant, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, updated.Status)

	refunded, err := f.txnRepo.SumRefunded(tenant, parent.Reference)
	require.NoError(t, err)
	assert.Equal(t, float64(0), refunded)

	jobsAfter, err := f.jobRepo.Count()
	require.NoError(t, err)
	assert.Equal(t, jobsBefore, jobsAfter)

	// With the store healthy again the same refund goes through.
	_, err = f.db.Exec("DROP TRIGGER reject_refund_rows")
	require.NoError(t, err)

	_, err = f.svc.Refund(&domain.RefundRequest{
		ParentReference: parent.Reference,
		Amount:          100,
		Reason:          "retry",
	}, tenant, "tester")
	require.NoError(t, err)

	updated, err = f.txnRepo.GetByID(tenant, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, updated.Status)
}

func TestRefundRequiresCompletedParent(t *testing.T) {
	f := newFixture(t)

	pending, err := f.svc.Process(paymentRequest("refund-pending@example.com", domain.MethodCreditCard, 100), tenant, "tester")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, pending.Status)

	_, err = f.svc.Refund(&domain.RefundRequest{
		ParentReference: pending.Reference,
		Amount:          100,
		Reason:          "too early",
	}, tenant, "tester")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	failed, err := f.svc.Fail(tenant, pending.ID, "tester", "CARD_DECLINED", "issuer declined")
	require.NoError(t, err)

	_, err = f.svc.Refund(&domain.RefundRequest{
		ParentReference: failed.Reference,
		Amount:          100,
		Reason:          "failed parent",
	}, tenant, "tester")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestRefundUnknownParent(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Refund(&domain.RefundRequest{
		ParentReference: "TXN_missing_00000000",
		Amount:          10,
		Reason:          "ghost",
	}, tenant, "tester")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRefundParentScopedToTenant(t *testing.T) {
	f := newFixture(t)
	parent := completedPayment(t, f, "refund-tenant@example.com", 100)

	_, err := f.svc.Refund(&domain.RefundRequest{
		ParentReference: parent.Reference,
		Amount:          100,
		Reason:          "wrong tenant",
	}, "tenant-other", "tester")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCompleteRefundIsIdempotent(t *testing.T) {
	f := newFixture(t)
	parent := completedPayment(t, f, "refund-complete@example.com", 100)

	refund, err := f.svc.Refund(&domain.RefundRequest{
		ParentReference: parent.Reference,
		Amount:          100,
		Reason:          "customer request",
	}, tenant, "tester")
	require.NoError(t, err)

	require.NoError(t, f.svc.CompleteRefund(tenant, refund.ID))

	done, err := f.txnRepo.GetByID(tenant, refund.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.NotNil(t, done.ProcessedAt)
	assert.NotNil(t, done.SettledAt)

	// Re-applying the completion is a no-op, not an error.
	require.NoError(t, f.svc.CompleteRefund(tenant, refund.ID))

	again, err := f.txnRepo.GetByID(tenant, refund.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, again.Status)
}

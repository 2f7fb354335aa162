package repository_test

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsapoetra/payment-processing-sub001/internal/domain"
	"github.com/dsapoetra/payment-processing-sub001/internal/repository"
)

const tenant = "tenant-test"

var baseTime = time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) *repository.TransactionRepo {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return repository.NewTransactionRepo(db)
}

func sampleTransaction(tenantID string) *domain.Transaction {
	return &domain.Transaction{
		ID:            uuid.NewString(),
		Reference:     "TXN_sample_" + uuid.NewString()[:8],
		TenantID:      tenantID,
		MerchantID:    "merch-001",
		Type:          domain.TypePayment,
		Status:        domain.StatusPending,
		PaymentMethod: domain.MethodCreditCard,
		Amount:        100,
		FeeAmount:     2.9,
		NetAmount:     97.1,
		Currency:      "USD",
		CustomerEmail: "repo@example.com",
		RiskAssessment: &domain.RiskAssessment{
			Score:            11,
			Level:            domain.RiskLow,
			Factors:          []string{"new_customer", "payment_method_card"},
			FraudProbability: 0.11,
			Recommendation:   domain.RecommendApprove,
		},
		CreatedAt: baseTime,
	}
}

func TestInMemoryDBPinsSingleConnection(t *testing.T) {
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// An in-memory database is per connection; a second pooled connection
	// would see none of the tables.
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}

func TestWithTxRollsBackInsert(t *testing.T) {
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := repository.NewTransactionRepo(db)

	tx := sampleTransaction(tenant)
	sqlTx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.WithTx(sqlTx).Insert(tx))
	require.NoError(t, sqlTx.Rollback())

	_, err = repo.GetByID(tenant, tx.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestInsertAndGetRoundtrip(t *testing.T) {
	repo := newRepo(t)
	tx := sampleTransaction(tenant)
	require.NoError(t, repo.Insert(tx))

	got, err := repo.GetByID(tenant, tx.ID)
	require.NoError(t, err)

	assert.Equal(t, tx.Reference, got.Reference)
	assert.Equal(t, tx.Status, got.Status)
	assert.Equal(t, tx.Amount, got.Amount)
	assert.Equal(t, tx.CustomerEmail, got.CustomerEmail)
	require.NotNil(t, got.RiskAssessment)
	assert.Equal(t, tx.RiskAssessment.Score, got.RiskAssessment.Score)
	assert.Equal(t, tx.RiskAssessment.Factors, got.RiskAssessment.Factors)
	assert.Equal(t, tx.RiskAssessment.Recommendation, got.RiskAssessment.Recommendation)
	assert.Nil(t, got.ProcessedAt)
	assert.Nil(t, got.SettledAt)

	byRef, err := repo.GetByReference(tenant, tx.Reference)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, byRef.ID)
}

func TestGetScopedByTenant(t *testing.T) {
	repo := newRepo(t)
	tx := sampleTransaction(tenant)
	require.NoError(t, repo.Insert(tx))

	_, err := repo.GetByID("tenant-other", tx.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	_, err = repo.GetByReference("tenant-other", tx.Reference)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUpdateStatusIsConditional(t *testing.T) {
	repo := newRepo(t)
	tx := sampleTransaction(tenant)
	require.NoError(t, repo.Insert(tx))

	now := baseTime.Add(time.Minute)
	changed, err := repo.UpdateStatus(tenant, tx.ID, repository.StatusChange{
		From:        []domain.TransactionStatus{domain.StatusPending},
		To:          domain.StatusCompleted,
		ProcessedAt: &now,
		SettledAt:   &now,
	})
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := repo.GetByID(tenant, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	require.NotNil(t, got.SettledAt)
	assert.True(t, got.SettledAt.Equal(now))

	// The row is no longer pending: re-applying the transition changes nothing.
	changed, err = repo.UpdateStatus(tenant, tx.ID, repository.StatusChange{
		From: []domain.TransactionStatus{domain.StatusPending},
		To:   domain.StatusCompleted,
	})
	require.NoError(t, err)
	assert.False(t, changed)

	// A mismatched tenant can never flip the row.
	changed, err = repo.UpdateStatus("tenant-other", tx.ID, repository.StatusChange{
		From: []domain.TransactionStatus{domain.StatusCompleted},
		To:   domain.StatusRefunded,
	})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestUpdateStatusSetsFailureFields(t *testing.T) {
	repo := newRepo(t)
	tx := sampleTransaction(tenant)
	require.NoError(t, repo.Insert(tx))

	now := baseTime.Add(time.Minute)
	changed, err := repo.UpdateStatus(tenant, tx.ID, repository.StatusChange{
		From:          []domain.TransactionStatus{domain.StatusPending, domain.StatusProcessing},
		To:            domain.StatusFailed,
		ProcessedAt:   &now,
		FailureCode:   "FRAUD_SUSPECTED",
		FailureReason: "declined by risk assessment",
	})
	require.NoError(t, err)
	require.True(t, changed)

	got, err := repo.GetByID(tenant, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "FRAUD_SUSPECTED", got.FailureCode)
	assert.Equal(t, "declined by risk assessment", got.FailureReason)
}

func TestVelocityCounts(t *testing.T) {
	repo := newRepo(t)
	email := "velocity@example.com"

	insert := func(createdAt time.Time, status domain.TransactionStatus, typ domain.TransactionType) {
		tx := sampleTransaction(tenant)
		tx.CustomerEmail = email
		tx.CreatedAt = createdAt
		tx.Status = status
		tx.Type = typ
		require.NoError(t, repo.Insert(tx))
	}

	insert(baseTime.Add(-30*time.Minute), domain.StatusCompleted, domain.TypePayment)
	insert(baseTime.Add(-2*time.Hour), domain.StatusFailed, domain.TypePayment)
	insert(baseTime.Add(-30*time.Hour), domain.StatusCompleted, domain.TypeChargeback)

	hourCount, err := repo.CountByCustomerSince(tenant, email, baseTime.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, hourCount)

	dayCount, err := repo.CountByCustomerSince(tenant, email, baseTime.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, dayCount)

	failed, err := repo.CountByCustomerStatus(tenant, email, domain.StatusFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	chargebacks, err := repo.CountByCustomerType(tenant, email, domain.TypeChargeback)
	require.NoError(t, err)
	assert.Equal(t, 1, chargebacks)

	total, err := repo.CountByCustomer(tenant, email)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	// Another tenant's identical email sees nothing.
	otherTotal, err := repo.CountByCustomer("tenant-other", email)
	require.NoError(t, err)
	assert.Equal(t, 0, otherTotal)
}

func TestSumRefundedSkipsFailedRefunds(t *testing.T) {
	repo := newRepo(t)
	parentRef := "TXN_parent_00000000"

	insertRefund := func(amount float64, status domain.TransactionStatus) {
		tx := sampleTransaction(tenant)
		tx.Type = domain.TypeRefund
		tx.Status = status
		tx.Amount = amount
		tx.RiskAssessment = nil
		tx.ParentReference = parentRef
		require.NoError(t, repo.Insert(tx))
	}

	insertRefund(30, domain.StatusProcessing)
	insertRefund(20, domain.StatusCompleted)
	insertRefund(50, domain.StatusFailed)

	total, err := repo.SumRefunded(tenant, parentRef)
	require.NoError(t, err)
	assert.Equal(t, float64(50), total)
}

func TestListStaleProcessingRefunds(t *testing.T) {
	repo := newRepo(t)

	stale := sampleTransaction(tenant)
	stale.Type = domain.TypeRefund
	stale.Status = domain.StatusProcessing
	stale.RiskAssessment = nil
	stale.CreatedAt = baseTime.Add(-10 * time.Minute)
	require.NoError(t, repo.Insert(stale))

	fresh := sampleTransaction(tenant)
	fresh.Type = domain.TypeRefund
	fresh.Status = domain.StatusProcessing
	fresh.RiskAssessment = nil
	fresh.CreatedAt = baseTime.Add(-time.Minute)
	require.NoError(t, repo.Insert(fresh))

	payment := sampleTransaction(tenant)
	payment.Status = domain.StatusProcessing
	payment.CreatedAt = baseTime.Add(-10 * time.Minute)
	require.NoError(t, repo.Insert(payment))

	stuck, err := repo.ListStaleProcessingRefunds(baseTime.Add(-5 * time.Minute))
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, stale.ID, stuck[0].ID)
}

func TestListFiltersAndPaginates(t *testing.T) {
	repo := newRepo(t)

	for i := 0; i < 5; i++ {
		tx := sampleTransaction(tenant)
		tx.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
		if i%2 == 0 {
			tx.Status = domain.StatusCompleted
		}
		require.NoError(t, repo.Insert(tx))
	}
	require.NoError(t, repo.Insert(sampleTransaction("tenant-other")))

	all, total, err := repo.List(tenant, repository.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, all, 5)

	completed, total, err := repo.List(tenant, repository.TransactionFilter{
		Status: string(domain.StatusCompleted),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, completed, 3)

	page, total, err := repo.List(tenant, repository.TransactionFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 2)
}

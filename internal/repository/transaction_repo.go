package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dsapoetra/payment-processing-sub001/internal/domain"
)

type TransactionRepo struct {
	db dbtx
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

// WithTx returns a repo bound to the given store transaction. Mutations made
// through it become visible together when the transaction commits.
func (r *TransactionRepo) WithTx(tx *sql.Tx) *TransactionRepo {
	return &TransactionRepo{db: tx}
}

func (r *TransactionRepo) Insert(tx *domain.Transaction) error {
	riskScore, riskLevel, riskFactors, fraudProb, riskRec := flattenRisk(tx.RiskAssessment)

	_, err := r.db.Exec(
		`INSERT INTO transactions
		(id, reference, tenant_id, merchant_id, type, status, payment_method,
		 amount, fee_amount, net_amount, currency, customer_email,
		 customer_phone, ip_address, description, risk_score, risk_level,
		 risk_factors, fraud_probability, risk_recommendation, failure_code,
		 failure_reason, parent_reference, created_at, processed_at, settled_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		tx.ID, tx.Reference, tx.TenantID, tx.MerchantID, string(tx.Type),
		string(tx.Status), string(tx.PaymentMethod), tx.Amount, tx.FeeAmount,
		tx.NetAmount, tx.Currency, nullableString(tx.CustomerEmail),
		nullableString(tx.CustomerPhone), nullableString(tx.IPAddress),
		nullableString(tx.Description), riskScore, riskLevel, riskFactors,
		fraudProb, riskRec, nullableString(tx.FailureCode),
		nullableString(tx.FailureReason), nullableString(tx.ParentReference),
		tx.CreatedAt.UTC().Format(time.RFC3339),
		formatNullableTime(tx.ProcessedAt), formatNullableTime(tx.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepo) GetByID(tenantID, id string) (*domain.Transaction, error) {
	row := r.db.QueryRow(
		"SELECT * FROM transactions WHERE tenant_id = ? AND id = ?",
		tenantID, id,
	)
	return scanTransaction(row)
}

func (r *TransactionRepo) GetByReference(tenantID, reference string) (*domain.Transaction, error) {
	row := r.db.QueryRow(
		"SELECT * FROM transactions WHERE tenant_id = ? AND reference = ?",
		tenantID, reference,
	)
	return scanTransaction(row)
}

// StatusChange describes a guarded status transition. The update applies
// only if the row's current status is one of From; callers treat zero rows
// affected as an illegal transition.
type StatusChange struct {
	From          []domain.TransactionStatus
	To            domain.TransactionStatus
	ProcessedAt   *time.Time
	SettledAt     *time.Time
	FailureCode   string
	FailureReason string
}

// UpdateStatus performs a conditional status update scoped by tenant and ID.
// It reports whether a row was actually changed.
func (r *TransactionRepo) UpdateStatus(tenantID, id string, ch StatusChange) (bool, error) {
	sets := []string{"status = ?"}
	args := []any{string(ch.To)}

	if ch.ProcessedAt != nil {
		sets = append(sets, "processed_at = ?")
		args = append(args, ch.ProcessedAt.UTC().Format(time.RFC3339))
	}
	if ch.SettledAt != nil {
		sets = append(sets, "settled_at = ?")
		args = append(args, ch.SettledAt.UTC().Format(time.RFC3339))
	}
	if ch.FailureCode != "" {
		sets = append(sets, "failure_code = ?")
		args = append(args, ch.FailureCode)
	}
	if ch.FailureReason != "" {
		sets = append(sets, "failure_reason = ?")
		args = append(args, ch.FailureReason)
	}

	placeholders := make([]string, len(ch.From))
	for i, s := range ch.From {
		placeholders[i] = "?"
		args = append(args, string(s))
	}
	args = append(args, tenantID, id)

	query := "UPDATE transactions SET " + strings.Join(sets, ", ") +
		" WHERE status IN (" + strings.Join(placeholders, ",") + ")" +
		" AND tenant_id = ? AND id = ?"

	res, err := r.db.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// CountByCustomerSince counts a customer's transactions in the tenant created
// at or after the given instant. Used for velocity checks.
func (r *TransactionRepo) CountByCustomerSince(tenantID, email string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM transactions
		 WHERE tenant_id = ? AND customer_email = ? AND created_at >= ?`,
		tenantID, email, since.UTC().Format(time.RFC3339),
	).Scan(&count)
	return count, err
}

func (r *TransactionRepo) CountByCustomerStatus(tenantID, email string, status domain.TransactionStatus) (int, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM transactions
		 WHERE tenant_id = ? AND customer_email = ? AND status = ?`,
		tenantID, email, string(status),
	).Scan(&count)
	return count, err
}

func (r *TransactionRepo) CountByCustomerType(tenantID, email string, typ domain.TransactionType) (int, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM transactions
		 WHERE tenant_id = ? AND customer_email = ? AND type = ?`,
		tenantID, email, string(typ),
	).Scan(&count)
	return count, err
}

func (r *TransactionRepo) CountByCustomer(tenantID, email string) (int, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM transactions
		 WHERE tenant_id = ? AND customer_email = ?`,
		tenantID, email,
	).Scan(&count)
	return count, err
}

// SumRefunded returns the total amount of non-failed, non-cancelled refund
// transactions issued against the given parent reference.
func (r *TransactionRepo) SumRefunded(tenantID, parentReference string) (float64, error) {
	var total float64
	err := r.db.QueryRow(
		`SELECT COALESCE(SUM(amount), 0) FROM transactions
		 WHERE tenant_id = ? AND parent_reference = ? AND type = ?
		   AND status NOT IN (?, ?)`,
		tenantID, parentReference, string(domain.TypeRefund),
		string(domain.StatusFailed), string(domain.StatusCancelled),
	).Scan(&total)
	return total, err
}

// ListStaleProcessingRefunds returns refund transactions across all tenants
// that are still processing and were created before the cutoff. This is the
// one process-scoped query in the store; it feeds the startup recovery sweep
// and every follow-up mutation is tenant-scoped again.
func (r *TransactionRepo) ListStaleProcessingRefunds(cutoff time.Time) ([]domain.Transaction, error) {
	rows, err := r.db.Query(
		`SELECT * FROM transactions
		 WHERE type = ? AND status = ? AND created_at < ?
		 ORDER BY created_at`,
		string(domain.TypeRefund), string(domain.StatusProcessing),
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

type TransactionFilter struct {
	Status     string
	Type       string
	MerchantID string
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}

func (r *TransactionRepo) List(tenantID string, f TransactionFilter) ([]domain.Transaction, int, error) {
	where, args := buildTransactionWhere(tenantID, f)

	var total int
	countSQL := "SELECT COUNT(*) FROM transactions" + where
	if err := r.db.QueryRow(countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	querySQL := "SELECT * FROM transactions" + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.Query(querySQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	txns, err := collectTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// --- helpers ---

func buildTransactionWhere(tenantID string, f TransactionFilter) (string, []any) {
	clauses := []string{"tenant_id = ?"}
	args := []any{tenantID}

	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, f.Type)
	}
	if f.MerchantID != "" {
		clauses = append(clauses, "merchant_id = ?")
		args = append(args, f.MerchantID)
	}
	if f.From != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.From.UTC().Format(time.RFC3339))
	}
	if f.To != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.To.UTC().Format(time.RFC3339))
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func flattenRisk(ra *domain.RiskAssessment) (score, level, factors, prob, rec any) {
	if ra == nil {
		return nil, nil, nil, nil, nil
	}
	encoded, err := json.Marshal(ra.Factors)
	if err != nil {
		encoded = []byte("[]")
	}
	return ra.Score, string(ra.Level), string(encoded), ra.FraudProbability, string(ra.Recommendation)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var typ, status, method, createdAt string
	var email, phone, ip, desc sql.NullString
	var riskScore sql.NullInt64
	var riskLevel, riskFactors, riskRec sql.NullString
	var fraudProb sql.NullFloat64
	var failureCode, failureReason, parentRef sql.NullString
	var processedAt, settledAt sql.NullString

	err := row.Scan(
		&tx.ID, &tx.Reference, &tx.TenantID, &tx.MerchantID, &typ, &status,
		&method, &tx.Amount, &tx.FeeAmount, &tx.NetAmount, &tx.Currency,
		&email, &phone, &ip, &desc, &riskScore, &riskLevel, &riskFactors,
		&fraudProb, &riskRec, &failureCode, &failureReason, &parentRef,
		&createdAt, &processedAt, &settledAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Type = domain.TransactionType(typ)
	tx.Status = domain.TransactionStatus(status)
	tx.PaymentMethod = domain.PaymentMethod(method)
	tx.CustomerEmail = email.String
	tx.CustomerPhone = phone.String
	tx.IPAddress = ip.String
	tx.Description = desc.String
	tx.FailureCode = failureCode.String
	tx.FailureReason = failureReason.String
	tx.ParentReference = parentRef.String
	tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if riskScore.Valid {
		ra := &domain.RiskAssessment{
			Score:            int(riskScore.Int64),
			Level:            domain.RiskLevel(riskLevel.String),
			FraudProbability: fraudProb.Float64,
			Recommendation:   domain.Recommendation(riskRec.String),
		}
		if riskFactors.Valid {
			if err := json.Unmarshal([]byte(riskFactors.String), &ra.Factors); err != nil {
				ra.Factors = nil
			}
		}
		tx.RiskAssessment = ra
	}

	if processedAt.Valid {
		t, _ := time.Parse(time.RFC3339, processedAt.String)
		tx.ProcessedAt = &t
	}
	if settledAt.Valid {
		t, _ := time.Parse(time.RFC3339, settledAt.String)
		tx.SettledAt = &t
	}

	return &tx, nil
}

func collectTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	var txns []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		txns = append(txns, *tx)
	}
	return txns, rows.Err()
}

package repository

import (
	"database/sql"
	"fmt"
	"time"
)

// Job kinds understood by the scheduler.
const (
	JobCompletePayment = "complete_payment"
	JobCompleteRefund  = "complete_refund"
)

// ScheduledJob is a durable deferred completion. Jobs live in the store so a
// process restart cannot lose a pending settlement.
type ScheduledJob struct {
	ID            string
	TenantID      string
	TransactionID string
	Kind          string
	DueAt         time.Time
	CreatedAt     time.Time
}

type JobRepo struct {
	db dbtx
}

func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{db: db}
}

// WithTx returns a repo bound to the given store transaction.
func (r *JobRepo) WithTx(tx *sql.Tx) *JobRepo {
	return &JobRepo{db: tx}
}

func (r *JobRepo) Insert(job *ScheduledJob) error {
	_, err := r.db.Exec(
		`INSERT INTO scheduled_jobs (id, tenant_id, transaction_id, kind, due_at, created_at)
		 VALUES (?,?,?,?,?,?)`,
		job.ID, job.TenantID, job.TransactionID, job.Kind,
		job.DueAt.UTC().Format(time.RFC3339),
		job.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// ListDue returns jobs whose due time is at or before the given instant,
// oldest first.
func (r *JobRepo) ListDue(now time.Time) ([]ScheduledJob, error) {
	rows, err := r.db.Query(
		`SELECT id, tenant_id, transaction_id, kind, due_at, created_at
		 FROM scheduled_jobs WHERE due_at <= ? ORDER BY due_at`,
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var jobs []ScheduledJob
	for rows.Next() {
		var job ScheduledJob
		var dueAt, createdAt string
		if err := rows.Scan(&job.ID, &job.TenantID, &job.TransactionID,
			&job.Kind, &dueAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		job.DueAt, _ = time.Parse(time.RFC3339, dueAt)
		job.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Delete removes a job after it has been executed. Deleting an already
// deleted job is harmless.
func (r *JobRepo) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM scheduled_jobs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

func (r *JobRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM scheduled_jobs").Scan(&count)
	return count, err
}

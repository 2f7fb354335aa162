package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dsapoetra/payment-processing-sub001/internal/domain"
)

type MerchantRepo struct {
	db *sql.DB
}

func NewMerchantRepo(db *sql.DB) *MerchantRepo {
	return &MerchantRepo{db: db}
}

func (r *MerchantRepo) Insert(m *domain.Merchant) error {
	_, err := r.db.Exec(
		`INSERT OR IGNORE INTO merchants (id, tenant_id, name, status, created_at)
		 VALUES (?,?,?,?,?)`,
		m.ID, m.TenantID, m.Name, string(m.Status),
		m.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert merchant: %w", err)
	}
	return nil
}

func (r *MerchantRepo) Get(tenantID, id string) (*domain.Merchant, error) {
	var m domain.Merchant
	var status, createdAt string

	err := r.db.QueryRow(
		"SELECT id, tenant_id, name, status, created_at FROM merchants WHERE tenant_id = ? AND id = ?",
		tenantID, id,
	).Scan(&m.ID, &m.TenantID, &m.Name, &status, &createdAt)
	if err != nil {
		return nil, err
	}

	m.Status = domain.MerchantStatus(status)
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &m, nil
}

func (r *MerchantRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM merchants").Scan(&count)
	return count, err
}

func (r *MerchantRepo) BulkInsert(merchants []domain.Merchant) (int, error) {
	inserted := 0
	sqlTx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.Prepare(
		`INSERT OR IGNORE INTO merchants (id, tenant_id, name, status, created_at)
		 VALUES (?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range merchants {
		m := &merchants[i]
		res, err := stmt.Exec(
			m.ID, m.TenantID, m.Name, string(m.Status),
			m.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

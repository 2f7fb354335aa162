package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// An in-memory database exists per connection: a second pooled
	// connection would see an empty schema. Pin the pool to one.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

// dbtx is the subset of *sql.DB and *sql.Tx the repos need, so a repo can be
// rebound to a store transaction with WithTx.
type dbtx interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS merchants (
			id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (id, tenant_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_merchants_tenant ON merchants(tenant_id)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			reference TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			merchant_id TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			payment_method TEXT NOT NULL,
			amount REAL NOT NULL,
			fee_amount REAL NOT NULL,
			net_amount REAL NOT NULL,
			currency TEXT NOT NULL,
			customer_email TEXT,
			customer_phone TEXT,
			ip_address TEXT,
			description TEXT,
			risk_score INTEGER,
			risk_level TEXT,
			risk_factors TEXT,
			fraud_probability REAL,
			risk_recommendation TEXT,
			failure_code TEXT,
			failure_reason TEXT,
			parent_reference TEXT,
			created_at DATETIME NOT NULL,
			processed_at DATETIME,
			settled_at DATETIME,
			UNIQUE (tenant_id, reference)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_tenant_status ON transactions(tenant_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_tenant_email ON transactions(tenant_id, customer_email)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_tenant_parent ON transactions(tenant_id, parent_reference)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at)`,

		`CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			actor_id TEXT,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			description TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_tenant ON audit_events(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_entity ON audit_events(entity_type, entity_id)`,

		`CREATE TABLE IF NOT EXISTS scheduled_jobs (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			transaction_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			due_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_jobs_due_at ON scheduled_jobs(due_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}

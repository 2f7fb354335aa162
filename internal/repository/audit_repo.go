package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dsapoetra/payment-processing-sub001/internal/domain"
)

type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Append inserts an audit event. The table is append-only; nothing in the
// core ever updates or deletes these rows.
func (r *AuditRepo) Append(ev *domain.AuditEvent) error {
	var metadata any
	if len(ev.Metadata) > 0 {
		encoded, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = string(encoded)
	}

	_, err := r.db.Exec(
		`INSERT INTO audit_events
		(id, tenant_id, actor_id, action, entity_type, entity_id, description, metadata, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		ev.ID, ev.TenantID, nullableString(ev.ActorID), ev.Action,
		ev.EntityType, ev.EntityID, ev.Description, metadata,
		ev.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r *AuditRepo) ListByEntity(tenantID, entityType, entityID string) ([]domain.AuditEvent, error) {
	rows, err := r.db.Query(
		`SELECT id, tenant_id, actor_id, action, entity_type, entity_id, description, metadata, created_at
		 FROM audit_events
		 WHERE tenant_id = ? AND entity_type = ? AND entity_id = ?
		 ORDER BY created_at`,
		tenantID, entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var ev domain.AuditEvent
		var actorID, metadata sql.NullString
		var createdAt string

		if err := rows.Scan(&ev.ID, &ev.TenantID, &actorID, &ev.Action,
			&ev.EntityType, &ev.EntityID, &ev.Description, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		ev.ActorID = actorID.String
		ev.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &ev.Metadata); err != nil {
				ev.Metadata = nil
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *AuditRepo) ListByTenant(tenantID string, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(
		`SELECT id, tenant_id, actor_id, action, entity_type, entity_id, description, metadata, created_at
		 FROM audit_events WHERE tenant_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var ev domain.AuditEvent
		var actorID, metadata sql.NullString
		var createdAt string

		if err := rows.Scan(&ev.ID, &ev.TenantID, &actorID, &ev.Action,
			&ev.EntityType, &ev.EntityID, &ev.Description, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		ev.ActorID = actorID.String
		ev.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &ev.Metadata); err != nil {
				ev.Metadata = nil
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

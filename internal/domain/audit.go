package domain

import "time"

// AuditEvent is an append-only record of a state change. The core writes
// these fire-and-forget; it never reads them back to make decisions.
type AuditEvent struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	ActorID     string            `json:"actor_id,omitempty"`
	Action      string            `json:"action"`
	EntityType  string            `json:"entity_type"`
	EntityID    string            `json:"entity_id"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

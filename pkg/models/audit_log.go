package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog is an append-only record of a change to a tenant entity.
type AuditLog struct {
	ID         uuid.UUID       `db:"id"          json:"id"`
	TenantID   uuid.UUID       `db:"tenant_id"   json:"tenant_id"`
	EntityName string          `db:"entity_name" json:"entity_name"`
	EntityID   uuid.UUID       `db:"entity_id"   json:"entity_id"`
	Action     string          `db:"action"      json:"action"`
	OldValues  json.RawMessage `db:"old_values"  json:"old_values,omitempty"`
	NewValues  json.RawMessage `db:"new_values"  json:"new_values,omitempty"`
	UserID     string          `db:"user_id"     json:"user_id"`
	CreatedAt  time.Time       `db:"created_at"  json:"created_at"`
}

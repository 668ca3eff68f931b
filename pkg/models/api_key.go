package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ScopeRead     = "read"
	ScopeDispatch = "dispatch"
	ScopeAdmin    = "admin"
)

// APIKey represents an authentication key for dispatcher and integration access.
// Raw keys are shown once at creation; only the bcrypt hash is stored.
// Owner is the user the key acts on behalf of and is recorded on audit entries.
type APIKey struct {
	ID         uuid.UUID  `db:"id"           json:"id"`
	TenantID   uuid.UUID  `db:"tenant_id"    json:"tenant_id"`
	Name       string     `db:"name"         json:"name"`
	Owner      string     `db:"owner"        json:"owner"`
	KeyHash    string     `db:"key_hash"     json:"-"`
	KeyPrefix  string     `db:"key_prefix"   json:"key_prefix"`
	Scopes     []string   `db:"scopes"       json:"scopes"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	DeletedAt  *time.Time `db:"deleted_at"   json:"-"`
	CreatedAt  time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"   json:"updated_at"`
}

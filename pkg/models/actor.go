package models

import "github.com/google/uuid"

// SystemUser is recorded as the acting user for changes made by event consumers.
const SystemUser = "system"

// Actor identifies who is performing an operation and in which tenant.
// It is resolved once per request and passed explicitly to every service call.
type Actor struct {
	TenantID uuid.UUID `json:"tenant_id"`
	UserID   string    `json:"user_id"`
}

// SystemActor returns the actor used by background consumers.
func SystemActor(tenantID uuid.UUID) Actor {
	return Actor{TenantID: tenantID, UserID: SystemUser}
}

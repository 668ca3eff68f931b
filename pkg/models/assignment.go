package models

import (
	"time"

	"github.com/google/uuid"
)

type AssignmentStatus string

const (
	AssignmentActive    AssignmentStatus = "active"
	AssignmentRevoked   AssignmentStatus = "revoked"
	AssignmentCompleted AssignmentStatus = "completed"
)

// Assignment records a vendor being responsible for a job during a time window.
// Assignments are never deleted; a job has at most one active assignment.
type Assignment struct {
	ID          uuid.UUID        `db:"id"           json:"id"`
	TenantID    uuid.UUID        `db:"tenant_id"    json:"tenant_id"`
	JobID       uuid.UUID        `db:"job_id"       json:"job_id"`
	VendorID    uuid.UUID        `db:"vendor_id"    json:"vendor_id"`
	VendorName  string           `db:"vendor_name"  json:"vendor_name"`
	Status      AssignmentStatus `db:"status"       json:"status"`
	Notes       string           `db:"notes"        json:"notes,omitempty"`
	AssignedBy  string           `db:"assigned_by"  json:"assigned_by"`
	AssignedAt  time.Time        `db:"assigned_at"  json:"assigned_at"`
	RevokedBy   *string          `db:"revoked_by"   json:"revoked_by,omitempty"`
	RevokedAt   *time.Time       `db:"revoked_at"   json:"revoked_at,omitempty"`
	CompletedAt *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time        `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at"   json:"updated_at"`
}

func (a *Assignment) IsActive() bool { return a.Status == AssignmentActive }

// Revoke marks the assignment revoked by user at now.
func (a *Assignment) Revoke(user string, now time.Time) {
	a.Status = AssignmentRevoked
	a.RevokedAt = &now
	a.RevokedBy = &user
	a.UpdatedAt = now
}

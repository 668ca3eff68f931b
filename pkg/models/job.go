package models

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusNew        JobStatus = "new"
	JobStatusInReview   JobStatus = "in_review"
	JobStatusAssigned   JobStatus = "assigned"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

var jobStatuses = map[JobStatus]bool{
	JobStatusNew:        true,
	JobStatusInReview:   true,
	JobStatusAssigned:   true,
	JobStatusInProgress: true,
	JobStatusCompleted:  true,
	JobStatusCancelled:  true,
}

func (s JobStatus) Valid() bool { return jobStatuses[s] }

type JobPriority string

const (
	PriorityLow      JobPriority = "low"
	PriorityMedium   JobPriority = "medium"
	PriorityHigh     JobPriority = "high"
	PriorityCritical JobPriority = "critical"
)

var priorityRank = map[JobPriority]int{
	PriorityLow:      0,
	PriorityMedium:   1,
	PriorityHigh:     2,
	PriorityCritical: 3,
}

func (p JobPriority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Rank orders priorities from low (0) to critical (3).
func (p JobPriority) Rank() int { return priorityRank[p] }

// Job is a customer service request tracked from creation to completion or cancellation.
// AssignedVendorName is a read-model copy of the active assignment's vendor name and is
// only written by the assignment workflow.
type Job struct {
	ID                 uuid.UUID   `db:"id"                   json:"id"`
	TenantID           uuid.UUID   `db:"tenant_id"            json:"tenant_id"`
	JobNumber          string      `db:"job_number"           json:"job_number"`
	Title              string      `db:"title"                json:"title"`
	Description        string      `db:"description"          json:"description"`
	CustomerName       string      `db:"customer_name"        json:"customer_name"`
	CustomerEmail      string      `db:"customer_email"       json:"customer_email,omitempty"`
	CustomerPhone      string      `db:"customer_phone"       json:"customer_phone,omitempty"`
	ServiceAddress     string      `db:"service_address"      json:"service_address"`
	ServiceType        string      `db:"service_type"         json:"service_type"`
	Status             JobStatus   `db:"status"               json:"status"`
	Priority           JobPriority `db:"priority"             json:"priority"`
	ScheduledAt        *time.Time  `db:"scheduled_at"         json:"scheduled_at,omitempty"`
	CompletedAt        *time.Time  `db:"completed_at"         json:"completed_at,omitempty"`
	CancelledAt        *time.Time  `db:"cancelled_at"         json:"cancelled_at,omitempty"`
	AssignedVendorName *string     `db:"assigned_vendor_name" json:"assigned_vendor_name,omitempty"`
	CreatedBy          string      `db:"created_by"           json:"created_by"`
	Version            int         `db:"version"              json:"version"`
	CreatedAt          time.Time   `db:"created_at"           json:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at"           json:"updated_at"`
}

// SetStatus moves the job to status and stamps the terminal timestamps.
func (j *Job) SetStatus(status JobStatus, now time.Time) {
	j.Status = status
	switch status {
	case JobStatusCompleted:
		j.CompletedAt = &now
	case JobStatusCancelled:
		j.CancelledAt = &now
	}
	j.UpdatedAt = now
}

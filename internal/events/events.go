// Package events defines the domain events exchanged between the command path
// and the asynchronous consumers. Each payload carries the denormalized fields a
// consumer needs when the store has not yet caught up with the write.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

const (
	TopicJobCreated              = "job.created"
	TopicJobAssigned             = "job.assigned"
	TopicRecommendationRequested = "ai_recommendation.requested"
	TopicRecommendationGenerated = "ai_recommendation.generated"
)

// Event is any payload that can be published.
type Event interface {
	Topic() string
}

type JobCreated struct {
	TenantID       uuid.UUID          `json:"tenant_id"`
	JobID          uuid.UUID          `json:"job_id"`
	JobNumber      string             `json:"job_number"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	ServiceType    string             `json:"service_type"`
	ServiceAddress string             `json:"service_address"`
	Priority       models.JobPriority `json:"priority"`
	CreatedBy      string             `json:"created_by"`
	CreatedAt      time.Time          `json:"created_at"`
}

func (JobCreated) Topic() string { return TopicJobCreated }

type JobAssigned struct {
	TenantID     uuid.UUID `json:"tenant_id"`
	JobID        uuid.UUID `json:"job_id"`
	JobNumber    string    `json:"job_number"`
	Title        string    `json:"title"`
	AssignmentID uuid.UUID `json:"assignment_id"`
	VendorID     uuid.UUID `json:"vendor_id"`
	VendorName   string    `json:"vendor_name"`
	AssignedBy   string    `json:"assigned_by"`
	AssignedAt   time.Time `json:"assigned_at"`
}

func (JobAssigned) Topic() string { return TopicJobAssigned }

type AIRecommendationRequested struct {
	TenantID         uuid.UUID `json:"tenant_id"`
	JobID            uuid.UUID `json:"job_id"`
	RecommendationID uuid.UUID `json:"recommendation_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	ServiceType      string    `json:"service_type"`
	ServiceAddress   string    `json:"service_address"`
	RequestedBy      string    `json:"requested_by"`
	RequestedAt      time.Time `json:"requested_at"`
}

func (AIRecommendationRequested) Topic() string { return TopicRecommendationRequested }

type AIRecommendationGenerated struct {
	TenantID             uuid.UUID                   `json:"tenant_id"`
	JobID                uuid.UUID                   `json:"job_id"`
	RecommendationID     uuid.UUID                   `json:"recommendation_id"`
	Status               models.RecommendationStatus `json:"status"`
	RecommendedVendorIDs []uuid.UUID                 `json:"recommended_vendor_ids"`
	Provider             string                      `json:"provider"`
	ErrorMessage         string                      `json:"error_message,omitempty"`
	CompletedAt          time.Time                   `json:"completed_at"`
}

func (AIRecommendationGenerated) Topic() string { return TopicRecommendationGenerated }

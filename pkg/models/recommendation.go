package models

import (
	"time"

	"github.com/google/uuid"
)

type RecommendationStatus string

const (
	RecommendationPending   RecommendationStatus = "pending"
	RecommendationCompleted RecommendationStatus = "completed"
	RecommendationFailed    RecommendationStatus = "failed"
)

// Terminal reports whether the status is final. A terminal recommendation never
// returns to pending.
func (s RecommendationStatus) Terminal() bool {
	return s == RecommendationCompleted || s == RecommendationFailed
}

// AIRecommendation is one request/response cycle with the AI provider for a job.
type AIRecommendation struct {
	ID                   uuid.UUID            `db:"id"                     json:"id"`
	TenantID             uuid.UUID            `db:"tenant_id"              json:"tenant_id"`
	JobID                uuid.UUID            `db:"job_id"                 json:"job_id"`
	Status               RecommendationStatus `db:"status"                 json:"status"`
	RequestedBy          string               `db:"requested_by"           json:"requested_by"`
	RequestedAt          time.Time            `db:"requested_at"           json:"requested_at"`
	CompletedAt          *time.Time           `db:"completed_at"           json:"completed_at,omitempty"`
	Provider             string               `db:"provider"               json:"provider,omitempty"`
	ModelVersion         string               `db:"model_version"          json:"model_version,omitempty"`
	LatencyMs            *int                 `db:"latency_ms"             json:"latency_ms,omitempty"`
	RecommendedVendorIDs []uuid.UUID          `db:"recommended_vendor_ids" json:"recommended_vendor_ids"`
	Reasoning            *string              `db:"reasoning"              json:"reasoning,omitempty"`
	JobSummary           *string              `db:"job_summary"            json:"job_summary,omitempty"`
	PromptSummary        *string              `db:"prompt_summary"         json:"prompt_summary,omitempty"`
	ErrorMessage         *string              `db:"error_message"          json:"error_message,omitempty"`
	CreatedAt            time.Time            `db:"created_at"             json:"created_at"`
	UpdatedAt            time.Time            `db:"updated_at"             json:"updated_at"`
}

// ApplyResult moves a pending recommendation to its terminal state from a provider result.
func (r *AIRecommendation) ApplyResult(res RecommendationResult, now time.Time) {
	r.Provider = res.Provider
	r.ModelVersion = res.ModelVersion
	latency := res.LatencyMs
	r.LatencyMs = &latency
	r.CompletedAt = &now
	r.UpdatedAt = now

	if !res.Success {
		msg := res.ErrorMessage
		if msg == "" {
			msg = "AI provider returned no result"
		}
		r.Status = RecommendationFailed
		r.ErrorMessage = &msg
		return
	}

	r.Status = RecommendationCompleted
	r.RecommendedVendorIDs = res.RecommendedVendorIDs
	if res.Reasoning != "" {
		r.Reasoning = &res.Reasoning
	}
	if res.JobSummary != "" {
		r.JobSummary = &res.JobSummary
	}
}

// Fail marks the recommendation failed without a provider call.
func (r *AIRecommendation) Fail(msg string, now time.Time) {
	r.Status = RecommendationFailed
	r.ErrorMessage = &msg
	r.CompletedAt = &now
	r.UpdatedAt = now
}

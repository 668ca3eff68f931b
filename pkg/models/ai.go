// Package models contains shared data models used across the dispatch codebase.
package models

import (
	"context"

	"github.com/google/uuid"
)

// AIProvider is the core interface that all AI integrations must implement.
// Exactly one provider is selected at startup; business logic only sees this interface.
// Recommend never returns an error: failures are reported in the result.
type AIProvider interface {
	// Recommend ranks candidate vendors for a job.
	Recommend(ctx context.Context, req RecommendationRequest) RecommendationResult
	// Name returns the provider identifier (e.g., "gemini", "openai").
	Name() string
}

// RecommendationRequest is the provider-agnostic job context sent to an AI provider.
type RecommendationRequest struct {
	JobID          uuid.UUID
	TenantID       uuid.UUID
	Title          string
	Description    string
	ServiceType    string
	ServiceAddress string
	Candidates     []VendorCandidate
}

// VendorCandidate is a vendor eligible for recommendation.
type VendorCandidate struct {
	VendorID        uuid.UUID `json:"vendor_id"`
	Name            string    `json:"name"`
	ServiceArea     string    `json:"service_area,omitempty"`
	Specializations []string  `json:"specializations,omitempty"`
	Rating          *float64  `json:"rating,omitempty"`
	AvailableSlots  int       `json:"available_slots"`
}

// RecommendationResult is what a provider returns. RecommendedVendorIDs only ever
// contains ids present in the request's candidate list.
type RecommendationResult struct {
	Success              bool
	RecommendedVendorIDs []uuid.UUID
	Reasoning            string
	JobSummary           string
	Provider             string
	ModelVersion         string
	LatencyMs            int
	ErrorMessage         string
}

// CandidateFromVendor builds a candidate entry from a vendor record.
func CandidateFromVendor(v *Vendor) VendorCandidate {
	return VendorCandidate{
		VendorID:        v.ID,
		Name:            v.Name,
		ServiceArea:     v.ServiceArea,
		Specializations: v.Specializations,
		Rating:          v.Rating,
		AvailableSlots:  v.AvailableSlots(),
	}
}

package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/api/response"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

// StatusReader reads the cached outcome of the latest recommendation run.
type StatusReader interface {
	GetRecommendationStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error)
}

type recommendationStatus struct {
	JobID  uuid.UUID `json:"job_id"`
	Status string    `json:"status"`
	Cached bool      `json:"cached"`
}

// NewListRecommendationsHandler handles GET /api/v1/jobs/{jobID}/recommendations.
func NewListRecommendationsHandler(svc RecommendationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID", "job")
		if !ok {
			return
		}

		recs, err := svc.ListRecommendations(r.Context(), actor, jobID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if recs == nil {
			recs = []*models.AIRecommendation{}
		}
		response.JSON(w, recs)
	}
}

// NewRequestRecommendationHandler handles POST /api/v1/jobs/{jobID}/recommendations.
// The result arrives asynchronously, so the pending record is returned with 202.
func NewRequestRecommendationHandler(svc RecommendationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID", "job")
		if !ok {
			return
		}

		rec, err := svc.RequestRecommendation(r.Context(), actor, jobID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.Accepted(w, rec)
	}
}

// NewLatestRecommendationHandler handles GET /api/v1/jobs/{jobID}/recommendations/latest.
func NewLatestRecommendationHandler(svc RecommendationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID", "job")
		if !ok {
			return
		}

		rec, err := svc.LatestRecommendation(r.Context(), actor, jobID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, rec)
	}
}

// NewRecommendationStatusHandler handles GET /api/v1/jobs/{jobID}/recommendations/status.
// The cache only holds outcomes written by the consumer, so a miss or a cache
// error falls back to the latest stored recommendation. Ownership is checked
// against the store first since cache keys are not tenant-scoped.
func NewRecommendationStatusHandler(svc RecommendationService, jobs JobService, cache StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID", "job")
		if !ok {
			return
		}

		if _, err := jobs.GetJob(r.Context(), actor, jobID); err != nil {
			writeServiceError(w, r, err)
			return
		}

		if cache != nil {
			status, found, err := cache.GetRecommendationStatus(r.Context(), jobID)
			if err != nil {
				slog.Warn("recommendation status cache read failed", "job_id", jobID, "error", err)
			} else if found {
				response.JSON(w, recommendationStatus{JobID: jobID, Status: status, Cached: true})
				return
			}
		}

		rec, err := svc.LatestRecommendation(r.Context(), actor, jobID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, recommendationStatus{JobID: jobID, Status: string(rec.Status)})
	}
}

package handler

import (
	"net/http"

	"github.com/kiranshivaraju/fielddispatch/internal/api/response"
	"github.com/kiranshivaraju/fielddispatch/internal/dispatch"
	"github.com/kiranshivaraju/fielddispatch/internal/store"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

type updateJobRequest struct {
	dispatch.JobDetails
	Version int `json:"version"`
}

type updateStatusRequest struct {
	Status models.JobStatus `json:"status"`
}

// NewListJobsHandler handles GET /api/v1/jobs.
// Query: status and priority take comma-separated lists; search, service_type,
// sort_by, sort_dir (asc|desc), page and limit are optional.
func NewListJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}

		page, limit, err := pageParams(r)
		if err != nil {
			response.BadRequest(w, err.Error(), nil)
			return
		}

		q := r.URL.Query()
		filter := store.JobFilter{
			Search:      q.Get("search"),
			ServiceType: q.Get("service_type"),
			SortBy:      q.Get("sort_by"),
			Page:        page,
			Limit:       limit,
		}
		switch q.Get("sort_dir") {
		case "", "desc":
			filter.SortDesc = true
		case "asc":
		default:
			response.BadRequest(w, "sort_dir must be asc or desc", nil)
			return
		}
		for _, s := range listParam(r, "status") {
			filter.Statuses = append(filter.Statuses, models.JobStatus(s))
		}
		for _, p := range listParam(r, "priority") {
			filter.Priorities = append(filter.Priorities, models.JobPriority(p))
		}

		jobs, total, err := svc.ListJobs(r.Context(), actor, filter)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		filter.Normalize()
		response.Collection(w, jobs, response.Page(filter.Page, filter.Limit, total))
	}
}

// NewCreateJobHandler handles POST /api/v1/jobs.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}

		var req dispatch.JobDetails
		if !decodeBody(w, r, &req) {
			return
		}

		job, err := svc.CreateJob(r.Context(), actor, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.Created(w, job)
	}
}

// NewGetJobHandler handles GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID", "job")
		if !ok {
			return
		}

		job, err := svc.GetJob(r.Context(), actor, jobID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewUpdateJobHandler handles PUT /api/v1/jobs/{jobID}. The body carries the
// full set of editable fields plus the version the client last read.
func NewUpdateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID", "job")
		if !ok {
			return
		}

		var req updateJobRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Version < 1 {
			response.BadRequest(w, "Validation failed",
				map[string]string{"version": "is required"})
			return
		}

		job, err := svc.UpdateJob(r.Context(), actor, jobID, req.JobDetails, req.Version)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewUpdateJobStatusHandler handles PATCH /api/v1/jobs/{jobID}/status.
func NewUpdateJobStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID", "job")
		if !ok {
			return
		}

		var req updateStatusRequest
		if !decodeBody(w, r, &req) {
			return
		}

		job, err := svc.UpdateJobStatus(r.Context(), actor, jobID, req.Status)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewCancelJobHandler handles DELETE /api/v1/jobs/{jobID}/cancel.
func NewCancelJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID", "job")
		if !ok {
			return
		}

		job, err := svc.CancelJob(r.Context(), actor, jobID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

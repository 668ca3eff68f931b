package handler

import (
	"net/http"

	"github.com/kiranshivaraju/fielddispatch/internal/api/response"
	"github.com/kiranshivaraju/fielddispatch/internal/dispatch"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

// NewListAssignmentsHandler handles GET /api/v1/jobs/{jobID}/assignments.
func NewListAssignmentsHandler(svc AssignmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID", "job")
		if !ok {
			return
		}

		assignments, err := svc.ListAssignments(r.Context(), actor, jobID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if assignments == nil {
			assignments = []*models.Assignment{}
		}
		response.JSON(w, assignments)
	}
}

// NewAssignVendorHandler handles POST /api/v1/jobs/{jobID}/assignments.
func NewAssignVendorHandler(svc AssignmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID", "job")
		if !ok {
			return
		}

		var req dispatch.AssignVendorInput
		if !decodeBody(w, r, &req) {
			return
		}

		assignment, err := svc.AssignVendor(r.Context(), actor, jobID, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.Created(w, assignment)
	}
}

// NewRevokeAssignmentHandler handles
// DELETE /api/v1/jobs/{jobID}/assignments/{assignmentID}.
func NewRevokeAssignmentHandler(svc AssignmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID", "job")
		if !ok {
			return
		}
		assignmentID, ok := pathID(w, r, "assignmentID", "assignment")
		if !ok {
			return
		}

		if _, err := svc.RevokeAssignment(r.Context(), actor, jobID, assignmentID); err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}

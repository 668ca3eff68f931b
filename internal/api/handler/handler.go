// Package handler holds the HTTP handlers. Each constructor takes the narrow
// interface it needs so handlers can be tested against fakes or the in-memory
// store.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/fielddispatch/internal/api/middleware"
	"github.com/kiranshivaraju/fielddispatch/internal/api/response"
	"github.com/kiranshivaraju/fielddispatch/internal/dispatch"
	"github.com/kiranshivaraju/fielddispatch/internal/store"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

const maxBodyBytes = 1 << 20

// JobService is the job part of *dispatch.Service.
type JobService interface {
	CreateJob(ctx context.Context, actor models.Actor, in dispatch.JobDetails) (*models.Job, error)
	GetJob(ctx context.Context, actor models.Actor, jobID uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, actor models.Actor, filter store.JobFilter) ([]*models.Job, int, error)
	UpdateJob(ctx context.Context, actor models.Actor, jobID uuid.UUID, in dispatch.JobDetails, expectedVersion int) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, actor models.Actor, jobID uuid.UUID, status models.JobStatus) (*models.Job, error)
	CancelJob(ctx context.Context, actor models.Actor, jobID uuid.UUID) (*models.Job, error)
}

// VendorService is the vendor part of *dispatch.Service.
type VendorService interface {
	CreateVendor(ctx context.Context, actor models.Actor, in dispatch.CreateVendorInput) (*models.Vendor, error)
	GetVendor(ctx context.Context, actor models.Actor, vendorID uuid.UUID) (*models.Vendor, error)
	ListVendors(ctx context.Context, actor models.Actor, filter store.VendorFilter) ([]*models.Vendor, int, error)
	SetVendorActive(ctx context.Context, actor models.Actor, vendorID uuid.UUID, active bool) (*models.Vendor, error)
}

// AssignmentService is the assignment part of *dispatch.Service.
type AssignmentService interface {
	AssignVendor(ctx context.Context, actor models.Actor, jobID uuid.UUID, in dispatch.AssignVendorInput) (*models.Assignment, error)
	RevokeAssignment(ctx context.Context, actor models.Actor, jobID, assignmentID uuid.UUID) (*models.Assignment, error)
	ListAssignments(ctx context.Context, actor models.Actor, jobID uuid.UUID) ([]*models.Assignment, error)
}

// RecommendationService is the recommendation part of *dispatch.Service.
type RecommendationService interface {
	RequestRecommendation(ctx context.Context, actor models.Actor, jobID uuid.UUID) (*models.AIRecommendation, error)
	ListRecommendations(ctx context.Context, actor models.Actor, jobID uuid.UUID) ([]*models.AIRecommendation, error)
	LatestRecommendation(ctx context.Context, actor models.Actor, jobID uuid.UUID) (*models.AIRecommendation, error)
}

// actorOf returns the authenticated actor or writes a 401.
func actorOf(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := mw.GetActor(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, "Missing tenant", nil)
	}
	return actor, ok
}

// pathID parses the named URL parameter as a UUID or writes a 400.
func pathID(w http.ResponseWriter, r *http.Request, param, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		response.BadRequest(w, "Invalid "+label+" ID format", nil)
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody reads a JSON body into v or writes a 400.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.BadRequest(w, "Invalid JSON body", nil)
		return false
	}
	return true
}

// pageParams reads page and limit. Missing values are left at zero for the
// store filter to default.
func pageParams(r *http.Request) (page, limit int, err error) {
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil || page < 1 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 {
			return 0, 0, fmt.Errorf("limit must be a positive integer")
		}
	}
	return page, limit, nil
}

func boolParam(r *http.Request, name string) (*bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false", name)
	}
	return &b, nil
}

// listParam splits a comma-separated query value, dropping blanks.
func listParam(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.URL.Query()[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// writeServiceError maps a dispatch error to its HTTP status.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *dispatch.Error
	if errors.As(err, &de) {
		switch de.Kind {
		case dispatch.KindValidation:
			response.BadRequest(w, de.Message, de.Fields)
			return
		case dispatch.KindNotFound:
			response.Error(w, http.StatusNotFound, response.CodeNotFound, de.Message, nil)
			return
		case dispatch.KindInvalidOperation:
			response.Error(w, http.StatusUnprocessableEntity, response.CodeInvalidOperation, de.Message, nil)
			return
		case dispatch.KindConflict:
			response.Error(w, http.StatusConflict, response.CodeConflict, de.Message, nil)
			return
		}
	}

	slog.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	response.Error(w, http.StatusInternalServerError, response.CodeInternal, "An unexpected error occurred", nil)
}

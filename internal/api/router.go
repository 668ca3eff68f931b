package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/fielddispatch/internal/api/middleware"
	"github.com/kiranshivaraju/fielddispatch/internal/api/response"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	ListJobs        http.HandlerFunc
	CreateJob       http.HandlerFunc
	GetJob          http.HandlerFunc
	UpdateJob       http.HandlerFunc
	UpdateJobStatus http.HandlerFunc
	CancelJob       http.HandlerFunc

	ListAssignments  http.HandlerFunc
	AssignVendor     http.HandlerFunc
	RevokeAssignment http.HandlerFunc

	ListRecommendations   http.HandlerFunc
	RequestRecommendation http.HandlerFunc
	LatestRecommendation  http.HandlerFunc
	RecommendationStatus  http.HandlerFunc

	ListVendors      http.HandlerFunc
	CreateVendor     http.HandlerFunc
	GetVendor        http.HandlerFunc
	ActivateVendor   http.HandlerFunc
	DeactivateVendor http.HandlerFunc

	Stream        http.HandlerFunc
	ListAuditLogs http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
// Any valid key may read; changes need the dispatch scope and audit and key
// management need admin.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public routes
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobs))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJob))
		r.Get("/api/v1/jobs/{jobID}/assignments", orNotImplemented(deps.ListAssignments))
		r.Get("/api/v1/jobs/{jobID}/recommendations", orNotImplemented(deps.ListRecommendations))
		r.Get("/api/v1/jobs/{jobID}/recommendations/latest", orNotImplemented(deps.LatestRecommendation))
		r.Get("/api/v1/jobs/{jobID}/recommendations/status", orNotImplemented(deps.RecommendationStatus))

		r.Get("/api/v1/vendors", orNotImplemented(deps.ListVendors))
		r.Get("/api/v1/vendors/{vendorID}", orNotImplemented(deps.GetVendor))

		r.Get("/api/v1/stream", orNotImplemented(deps.Stream))

		// Dispatcher routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeDispatch))

			r.Post("/api/v1/jobs", orNotImplemented(deps.CreateJob))
			r.Put("/api/v1/jobs/{jobID}", orNotImplemented(deps.UpdateJob))
			r.Patch("/api/v1/jobs/{jobID}/status", orNotImplemented(deps.UpdateJobStatus))
			r.Delete("/api/v1/jobs/{jobID}/cancel", orNotImplemented(deps.CancelJob))

			r.Post("/api/v1/jobs/{jobID}/assignments", orNotImplemented(deps.AssignVendor))
			r.Delete("/api/v1/jobs/{jobID}/assignments/{assignmentID}", orNotImplemented(deps.RevokeAssignment))

			r.Post("/api/v1/jobs/{jobID}/recommendations", orNotImplemented(deps.RequestRecommendation))

			r.Post("/api/v1/vendors", orNotImplemented(deps.CreateVendor))
			r.Patch("/api/v1/vendors/{vendorID}/activate", orNotImplemented(deps.ActivateVendor))
			r.Patch("/api/v1/vendors/{vendorID}/deactivate", orNotImplemented(deps.DeactivateVendor))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Get("/api/v1/audit-logs", orNotImplemented(deps.ListAuditLogs))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, response.CodeNotImplemented, "Endpoint not yet implemented", nil)
	}
}

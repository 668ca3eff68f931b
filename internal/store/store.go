package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrConflict is returned when a versioned or status-guarded update finds the row
// changed since it was read.
var ErrConflict = errors.New("concurrent modification")

// Store is the data access interface. All database operations go through here.
// Every entity lookup is scoped by tenant.
type Store interface {
	Ping(ctx context.Context) error

	// WithTx runs fn against a Store bound to a single transaction. The transaction
	// commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Job, error)
	// UpdateJob persists job if its Version still matches and bumps Version.
	UpdateJob(ctx context.Context, job *models.Job) error
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)
	NextJobNumber(ctx context.Context, tenantID uuid.UUID, year int) (int, error)

	CreateVendor(ctx context.Context, vendor *models.Vendor) error
	GetVendor(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Vendor, error)
	// UpdateVendor persists vendor if its Version still matches and bumps Version.
	UpdateVendor(ctx context.Context, vendor *models.Vendor) error
	ListVendors(ctx context.Context, filter VendorFilter) ([]*models.Vendor, int, error)
	// ListAvailableVendors returns active vendors with spare capacity.
	ListAvailableVendors(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.Vendor, error)

	CreateAssignment(ctx context.Context, a *models.Assignment) error
	GetAssignment(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Assignment, error)
	// TransitionAssignment persists a only if the stored status is still from.
	TransitionAssignment(ctx context.Context, a *models.Assignment, from models.AssignmentStatus) error
	ListAssignmentsByJob(ctx context.Context, jobID uuid.UUID, tenantID uuid.UUID) ([]*models.Assignment, error)

	CreateRecommendation(ctx context.Context, r *models.AIRecommendation) error
	GetRecommendation(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.AIRecommendation, error)
	// CompleteRecommendation writes the terminal state of a pending recommendation.
	// It returns ErrConflict if the stored row is no longer pending.
	CompleteRecommendation(ctx context.Context, r *models.AIRecommendation) error
	ListRecommendationsByJob(ctx context.Context, jobID uuid.UUID, tenantID uuid.UUID) ([]*models.AIRecommendation, error)

	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
	ListAuditLogs(ctx context.Context, filter AuditFilter) ([]*models.AuditLog, int, error)
}

const (
	defaultJobPageSize    = 25
	defaultVendorPageSize = 50
	maxPageSize           = 100
)

type JobFilter struct {
	TenantID    uuid.UUID
	Statuses    []models.JobStatus
	Priorities  []models.JobPriority
	Search      string
	ServiceType string
	SortBy      string
	SortDesc    bool
	Page        int
	Limit       int
}

var jobSortColumns = map[string]bool{
	"created_at": true,
	"priority":   true,
	"status":     true,
	"job_number": true,
}

// Normalize applies paging defaults and falls back to created_at ordering.
func (f *JobFilter) Normalize() {
	f.Page, f.Limit = normalizePage(f.Page, f.Limit, defaultJobPageSize)
	if !jobSortColumns[f.SortBy] {
		f.SortBy = "created_at"
	}
}

type VendorFilter struct {
	TenantID    uuid.UUID
	IsActive    *bool
	HasCapacity *bool
	ServiceType string
	Page        int
	Limit       int
}

func (f *VendorFilter) Normalize() {
	f.Page, f.Limit = normalizePage(f.Page, f.Limit, defaultVendorPageSize)
}

type AuditFilter struct {
	TenantID   uuid.UUID
	EntityName string
	EntityID   *uuid.UUID
	Since      time.Time
	Page       int
	Limit      int
}

func (f *AuditFilter) Normalize() {
	f.Page, f.Limit = normalizePage(f.Page, f.Limit, defaultVendorPageSize)
}

func normalizePage(page, limit, def int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = def
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

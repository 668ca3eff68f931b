package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   dbtx
	inTx bool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithTx runs fn inside a transaction. Nested calls reuse the outer transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresStore{pool: s.pool, db: tx, inTx: true}); err != nil {
		return retryableAsConflict(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return retryableAsConflict(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// --- Tenants ---

func (s *PostgresStore) CreateTenant(ctx context.Context, t *models.Tenant) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tenants (id, name, slug, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Name, t.Slug, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.QueryRow(ctx,
		`SELECT id, name, slug, created_at, updated_at FROM tenants WHERE slug = $1`, slug,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by slug: %w", err)
	}
	return &t, nil
}

// --- API Keys ---

const apiKeyColumns = `id, tenant_id, name, owner, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.Owner, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, owner, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		key.ID, key.TenantID, key.Name, key.Owner, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE tenant_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, id, tenantID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

const jobColumns = `id, tenant_id, job_number, title, description, customer_name, customer_email, customer_phone,
	service_address, service_type, status, priority, scheduled_at, completed_at, cancelled_at,
	assigned_vendor_name, created_by, version, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.TenantID, &j.JobNumber, &j.Title, &j.Description, &j.CustomerName,
		&j.CustomerEmail, &j.CustomerPhone, &j.ServiceAddress, &j.ServiceType, &j.Status, &j.Priority,
		&j.ScheduledAt, &j.CompletedAt, &j.CancelledAt, &j.AssignedVendorName, &j.CreatedBy,
		&j.Version, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, j *models.Job) error {
	if j.Version == 0 {
		j.Version = 1
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		j.ID, j.TenantID, j.JobNumber, j.Title, j.Description, j.CustomerName, j.CustomerEmail, j.CustomerPhone,
		j.ServiceAddress, j.ServiceType, j.Status, j.Priority, j.ScheduledAt, j.CompletedAt, j.CancelledAt,
		j.AssignedVendorName, j.CreatedBy, j.Version, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, j *models.Job) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE jobs SET title = $4, description = $5, customer_name = $6, customer_email = $7,
		   customer_phone = $8, service_address = $9, service_type = $10, status = $11, priority = $12,
		   scheduled_at = $13, completed_at = $14, cancelled_at = $15, assigned_vendor_name = $16,
		   version = version + 1, updated_at = $17
		 WHERE id = $1 AND tenant_id = $2 AND version = $3`,
		j.ID, j.TenantID, j.Version, j.Title, j.Description, j.CustomerName, j.CustomerEmail,
		j.CustomerPhone, j.ServiceAddress, j.ServiceType, j.Status, j.Priority,
		j.ScheduledAt, j.CompletedAt, j.CancelledAt, j.AssignedVendorName, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrConflict(ctx, "jobs", j.ID, j.TenantID)
	}
	j.Version++
	return nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error) {
	filter.Normalize()

	where := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	argN := 2

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, fmt.Sprintf("status = ANY($%d)", argN))
		args = append(args, statuses)
		argN++
	}
	if len(filter.Priorities) > 0 {
		priorities := make([]string, len(filter.Priorities))
		for i, p := range filter.Priorities {
			priorities[i] = string(p)
		}
		where = append(where, fmt.Sprintf("priority = ANY($%d)", argN))
		args = append(args, priorities)
		argN++
	}
	if filter.ServiceType != "" {
		where = append(where, fmt.Sprintf("LOWER(service_type) = LOWER($%d)", argN))
		args = append(args, filter.ServiceType)
		argN++
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf(
			"(title ILIKE $%d OR customer_name ILIKE $%d OR job_number ILIKE $%d)", argN, argN, argN))
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		argN++
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM jobs WHERE "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	orderExpr := filter.SortBy
	if filter.SortBy == "priority" {
		orderExpr = `CASE priority WHEN 'low' THEN 0 WHEN 'medium' THEN 1 WHEN 'high' THEN 2 ELSE 3 END`
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	offset := (filter.Page - 1) * filter.Limit
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE %s ORDER BY %s %s, created_at DESC LIMIT $%d OFFSET $%d`,
		jobColumns, whereClause, orderExpr, direction, argN, argN+1)
	args = append(args, filter.Limit, offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, total, rows.Err()
}

func (s *PostgresStore) NextJobNumber(ctx context.Context, tenantID uuid.UUID, year int) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`INSERT INTO job_sequences (tenant_id, year, last_value) VALUES ($1, $2, 1)
		 ON CONFLICT (tenant_id, year) DO UPDATE SET last_value = job_sequences.last_value + 1
		 RETURNING last_value`, tenantID, year).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next job number: %w", err)
	}
	return n, nil
}

// --- Vendors ---

const vendorColumns = `id, tenant_id, name, contact_email, contact_phone, service_area, specializations,
	capacity_limit, current_capacity, rating, is_active, version, created_at, updated_at`

func scanVendor(row pgx.Row) (*models.Vendor, error) {
	var v models.Vendor
	err := row.Scan(&v.ID, &v.TenantID, &v.Name, &v.ContactEmail, &v.ContactPhone, &v.ServiceArea,
		&v.Specializations, &v.CapacityLimit, &v.CurrentCapacity, &v.Rating, &v.IsActive,
		&v.Version, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func scanVendors(rows pgx.Rows) ([]*models.Vendor, error) {
	defer rows.Close()

	var vendors []*models.Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

func (s *PostgresStore) CreateVendor(ctx context.Context, v *models.Vendor) error {
	if v.Version == 0 {
		v.Version = 1
	}
	if v.Specializations == nil {
		v.Specializations = []string{}
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO vendors (`+vendorColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		v.ID, v.TenantID, v.Name, v.ContactEmail, v.ContactPhone, v.ServiceArea, v.Specializations,
		v.CapacityLimit, v.CurrentCapacity, v.Rating, v.IsActive, v.Version, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create vendor: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVendor(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Vendor, error) {
	v, err := scanVendor(s.db.QueryRow(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vendor: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) UpdateVendor(ctx context.Context, v *models.Vendor) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE vendors SET name = $4, contact_email = $5, contact_phone = $6, service_area = $7,
		   specializations = $8, capacity_limit = $9, current_capacity = $10, rating = $11,
		   is_active = $12, version = version + 1, updated_at = $13
		 WHERE id = $1 AND tenant_id = $2 AND version = $3`,
		v.ID, v.TenantID, v.Version, v.Name, v.ContactEmail, v.ContactPhone, v.ServiceArea,
		v.Specializations, v.CapacityLimit, v.CurrentCapacity, v.Rating, v.IsActive, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update vendor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrConflict(ctx, "vendors", v.ID, v.TenantID)
	}
	v.Version++
	return nil
}

func (s *PostgresStore) ListVendors(ctx context.Context, filter VendorFilter) ([]*models.Vendor, int, error) {
	filter.Normalize()

	where := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	argN := 2

	if filter.IsActive != nil {
		where = append(where, fmt.Sprintf("is_active = $%d", argN))
		args = append(args, *filter.IsActive)
		argN++
	}
	if filter.HasCapacity != nil {
		if *filter.HasCapacity {
			where = append(where, "current_capacity < capacity_limit")
		} else {
			where = append(where, "current_capacity >= capacity_limit")
		}
	}
	if filter.ServiceType != "" {
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM unnest(specializations) sp WHERE LOWER(sp) = LOWER($%d))", argN))
		args = append(args, filter.ServiceType)
		argN++
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM vendors WHERE "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count vendors: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	query := fmt.Sprintf(`SELECT %s FROM vendors WHERE %s ORDER BY name ASC LIMIT $%d OFFSET $%d`,
		vendorColumns, whereClause, argN, argN+1)
	args = append(args, filter.Limit, offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list vendors: %w", err)
	}
	vendors, err := scanVendors(rows)
	if err != nil {
		return nil, 0, err
	}
	return vendors, total, nil
}

func (s *PostgresStore) ListAvailableVendors(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.Vendor, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+vendorColumns+` FROM vendors
		 WHERE tenant_id = $1 AND is_active AND current_capacity < capacity_limit
		 ORDER BY rating DESC NULLS LAST, name ASC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list available vendors: %w", err)
	}
	return scanVendors(rows)
}

// --- Assignments ---

const assignmentColumns = `id, tenant_id, job_id, vendor_id, vendor_name, status, notes, assigned_by,
	assigned_at, revoked_by, revoked_at, completed_at, created_at, updated_at`

func scanAssignment(row pgx.Row) (*models.Assignment, error) {
	var a models.Assignment
	err := row.Scan(&a.ID, &a.TenantID, &a.JobID, &a.VendorID, &a.VendorName, &a.Status, &a.Notes,
		&a.AssignedBy, &a.AssignedAt, &a.RevokedBy, &a.RevokedAt, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO assignments (`+assignmentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.TenantID, a.JobID, a.VendorID, a.VendorName, a.Status, a.Notes, a.AssignedBy,
		a.AssignedAt, a.RevokedBy, a.RevokedAt, a.CompletedAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAssignment(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Assignment, error) {
	a, err := scanAssignment(s.db.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) TransitionAssignment(ctx context.Context, a *models.Assignment, from models.AssignmentStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE assignments SET status = $4, revoked_by = $5, revoked_at = $6, completed_at = $7, updated_at = $8
		 WHERE id = $1 AND tenant_id = $2 AND status = $3`,
		a.ID, a.TenantID, from, a.Status, a.RevokedBy, a.RevokedAt, a.CompletedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrConflict(ctx, "assignments", a.ID, a.TenantID)
	}
	return nil
}

func (s *PostgresStore) ListAssignmentsByJob(ctx context.Context, jobID uuid.UUID, tenantID uuid.UUID) ([]*models.Assignment, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+assignmentColumns+` FROM assignments
		 WHERE job_id = $1 AND tenant_id = $2 ORDER BY assigned_at DESC`, jobID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []*models.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- AI Recommendations ---

const recommendationColumns = `id, tenant_id, job_id, status, requested_by, requested_at, completed_at,
	provider, model_version, latency_ms, recommended_vendor_ids, reasoning, job_summary, prompt_summary,
	error_message, created_at, updated_at`

func scanRecommendation(row pgx.Row) (*models.AIRecommendation, error) {
	var r models.AIRecommendation
	err := row.Scan(&r.ID, &r.TenantID, &r.JobID, &r.Status, &r.RequestedBy, &r.RequestedAt, &r.CompletedAt,
		&r.Provider, &r.ModelVersion, &r.LatencyMs, &r.RecommendedVendorIDs, &r.Reasoning, &r.JobSummary,
		&r.PromptSummary, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) CreateRecommendation(ctx context.Context, r *models.AIRecommendation) error {
	if r.RecommendedVendorIDs == nil {
		r.RecommendedVendorIDs = []uuid.UUID{}
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO ai_recommendations (`+recommendationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		r.ID, r.TenantID, r.JobID, r.Status, r.RequestedBy, r.RequestedAt, r.CompletedAt,
		r.Provider, r.ModelVersion, r.LatencyMs, r.RecommendedVendorIDs, r.Reasoning, r.JobSummary,
		r.PromptSummary, r.ErrorMessage, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create recommendation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRecommendation(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.AIRecommendation, error) {
	r, err := scanRecommendation(s.db.QueryRow(ctx,
		`SELECT `+recommendationColumns+` FROM ai_recommendations WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recommendation: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) CompleteRecommendation(ctx context.Context, r *models.AIRecommendation) error {
	if r.RecommendedVendorIDs == nil {
		r.RecommendedVendorIDs = []uuid.UUID{}
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE ai_recommendations SET status = $3, completed_at = $4, provider = $5, model_version = $6,
		   latency_ms = $7, recommended_vendor_ids = $8, reasoning = $9, job_summary = $10,
		   prompt_summary = $11, error_message = $12, updated_at = $13
		 WHERE id = $1 AND tenant_id = $2 AND status = 'pending'`,
		r.ID, r.TenantID, r.Status, r.CompletedAt, r.Provider, r.ModelVersion, r.LatencyMs,
		r.RecommendedVendorIDs, r.Reasoning, r.JobSummary, r.PromptSummary, r.ErrorMessage, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("complete recommendation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrConflict(ctx, "ai_recommendations", r.ID, r.TenantID)
	}
	return nil
}

func (s *PostgresStore) ListRecommendationsByJob(ctx context.Context, jobID uuid.UUID, tenantID uuid.UUID) ([]*models.AIRecommendation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+recommendationColumns+` FROM ai_recommendations
		 WHERE job_id = $1 AND tenant_id = $2 ORDER BY requested_at DESC`, jobID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()

	var out []*models.AIRecommendation
	for rows.Next() {
		r, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Audit Logs ---

func (s *PostgresStore) CreateAuditLog(ctx context.Context, e *models.AuditLog) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO audit_logs (id, tenant_id, entity_name, entity_id, action, old_values, new_values, user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.TenantID, e.EntityName, e.EntityID, e.Action, e.OldValues, e.NewValues, e.UserID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAuditLogs(ctx context.Context, filter AuditFilter) ([]*models.AuditLog, int, error) {
	filter.Normalize()

	where := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	argN := 2

	if filter.EntityName != "" {
		where = append(where, fmt.Sprintf("entity_name = $%d", argN))
		args = append(args, filter.EntityName)
		argN++
	}
	if filter.EntityID != nil {
		where = append(where, fmt.Sprintf("entity_id = $%d", argN))
		args = append(args, *filter.EntityID)
		argN++
	}
	if !filter.Since.IsZero() {
		where = append(where, fmt.Sprintf("created_at >= $%d", argN))
		args = append(args, filter.Since)
		argN++
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs WHERE "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	query := fmt.Sprintf(`SELECT id, tenant_id, entity_name, entity_id, action, old_values, new_values, user_id, created_at
		FROM audit_logs WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, whereClause, argN, argN+1)
	args = append(args, filter.Limit, offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditLog
	for rows.Next() {
		var e models.AuditLog
		if err := rows.Scan(&e.ID, &e.TenantID, &e.EntityName, &e.EntityID, &e.Action,
			&e.OldValues, &e.NewValues, &e.UserID, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan audit log: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, total, rows.Err()
}

// --- Helpers ---

// missingOrConflict distinguishes a guarded update that matched no row because
// the row is gone from one that lost a race.
func (s *PostgresStore) missingOrConflict(ctx context.Context, table string, id, tenantID uuid.UUID) error {
	var exists bool
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1 AND tenant_id = $2)`, table),
		id, tenantID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check %s row: %w", table, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

// retryableAsConflict marks deadlocks and serialization failures as ErrConflict
// so callers rerun the whole transaction.
func retryableAsConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40P01" || pgErr.Code == "40001") {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

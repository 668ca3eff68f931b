// Package memstore is an in-memory store.Store used by tests and local runs.
// It keeps the same version and status guards as the Postgres store.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/store"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

type state struct {
	tenants         map[uuid.UUID]models.Tenant
	apiKeys         map[uuid.UUID]models.APIKey
	jobs            map[uuid.UUID]models.Job
	sequences       map[string]int
	vendors         map[uuid.UUID]models.Vendor
	assignments     map[uuid.UUID]models.Assignment
	recommendations map[uuid.UUID]models.AIRecommendation
	auditLogs       []models.AuditLog
}

func newState() *state {
	return &state{
		tenants:         map[uuid.UUID]models.Tenant{},
		apiKeys:         map[uuid.UUID]models.APIKey{},
		jobs:            map[uuid.UUID]models.Job{},
		sequences:       map[string]int{},
		vendors:         map[uuid.UUID]models.Vendor{},
		assignments:     map[uuid.UUID]models.Assignment{},
		recommendations: map[uuid.UUID]models.AIRecommendation{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.tenants {
		c.tenants[k] = v
	}
	for k, v := range s.apiKeys {
		c.apiKeys[k] = v
	}
	for k, v := range s.jobs {
		c.jobs[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	for k, v := range s.vendors {
		c.vendors[k] = v
	}
	for k, v := range s.assignments {
		c.assignments[k] = v
	}
	for k, v := range s.recommendations {
		c.recommendations[k] = v
	}
	c.auditLogs = append([]models.AuditLog(nil), s.auditLogs...)
	return c
}

type shared struct {
	mu   sync.Mutex
	txMu sync.Mutex
	data *state
}

// Store is safe for concurrent use. Transactions are serialized; callers
// outside a transaction wait for it to commit or roll back, so a rollback
// restoring the snapshot taken at the start of WithTx never discards their writes.
type Store struct {
	*shared
	tx bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{shared: &shared{data: newState()}}
}

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) WithTx(_ context.Context, fn func(tx store.Store) error) error {
	if s.tx {
		return fn(s)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(&Store{shared: s.shared, tx: true}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// lock takes the data lock, first waiting out any open transaction unless s
// is bound to it.
func (s *Store) lock() func() {
	if !s.tx {
		s.txMu.Lock()
	}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		if !s.tx {
			s.txMu.Unlock()
		}
	}
}

// --- Tenants ---

func (s *Store) CreateTenant(_ context.Context, t *models.Tenant) error {
	defer s.lock()()
	for _, existing := range s.data.tenants {
		if existing.Slug == t.Slug {
			return store.ErrDuplicateKey
		}
	}
	s.data.tenants[t.ID] = *t
	return nil
}

func (s *Store) GetTenantBySlug(_ context.Context, slug string) (*models.Tenant, error) {
	defer s.lock()()
	for _, t := range s.data.tenants {
		if t.Slug == slug {
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

// --- API Keys ---

func (s *Store) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	defer s.lock()()
	var out []*models.APIKey
	for _, k := range s.data.apiKeys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			k := k
			out = append(out, &k)
		}
	}
	return out, nil
}

func (s *Store) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	defer s.lock()()
	if k, ok := s.data.apiKeys[id]; ok {
		now := nowUTC()
		k.LastUsedAt = &now
		s.data.apiKeys[id] = k
	}
	return nil
}

func (s *Store) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	defer s.lock()()
	if _, ok := s.data.apiKeys[key.ID]; ok {
		return store.ErrDuplicateKey
	}
	s.data.apiKeys[key.ID] = *key
	return nil
}

func (s *Store) ListAPIKeys(_ context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	defer s.lock()()
	var out []*models.APIKey
	for _, k := range s.data.apiKeys {
		if k.TenantID == tenantID && k.DeletedAt == nil {
			k := k
			out = append(out, &k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) RevokeAPIKey(_ context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	defer s.lock()()
	k, ok := s.data.apiKeys[id]
	if !ok || k.TenantID != tenantID || k.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := nowUTC()
	k.DeletedAt = &now
	s.data.apiKeys[id] = k
	return nil
}

// --- Jobs ---

func (s *Store) CreateJob(_ context.Context, j *models.Job) error {
	defer s.lock()()
	if j.Version == 0 {
		j.Version = 1
	}
	for _, existing := range s.data.jobs {
		if existing.ID == j.ID || (existing.TenantID == j.TenantID && existing.JobNumber == j.JobNumber) {
			return store.ErrDuplicateKey
		}
	}
	s.data.jobs[j.ID] = *j
	return nil
}

func (s *Store) GetJob(_ context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Job, error) {
	defer s.lock()()
	j, ok := s.data.jobs[id]
	if !ok || j.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &j, nil
}

func (s *Store) UpdateJob(_ context.Context, j *models.Job) error {
	defer s.lock()()
	existing, ok := s.data.jobs[j.ID]
	if !ok || existing.TenantID != j.TenantID {
		return store.ErrNotFound
	}
	if existing.Version != j.Version {
		return store.ErrConflict
	}
	j.Version++
	s.data.jobs[j.ID] = *j
	return nil
}

func (s *Store) ListJobs(_ context.Context, filter store.JobFilter) ([]*models.Job, int, error) {
	filter.Normalize()
	defer s.lock()()

	search := strings.ToLower(filter.Search)
	var matched []*models.Job
	for _, j := range s.data.jobs {
		if j.TenantID != filter.TenantID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, j.Status) {
			continue
		}
		if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, j.Priority) {
			continue
		}
		if filter.ServiceType != "" && !strings.EqualFold(filter.ServiceType, j.ServiceType) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(j.Title), search) &&
			!strings.Contains(strings.ToLower(j.CustomerName), search) &&
			!strings.Contains(strings.ToLower(j.JobNumber), search) {
			continue
		}
		j := j
		matched = append(matched, &j)
	}

	less := jobLess(filter.SortBy)
	sort.SliceStable(matched, func(a, b int) bool {
		if filter.SortDesc {
			return less(matched[b], matched[a])
		}
		return less(matched[a], matched[b])
	})

	return paginate(matched, filter.Page, filter.Limit), len(matched), nil
}

func jobLess(sortBy string) func(a, b *models.Job) bool {
	switch sortBy {
	case "priority":
		return func(a, b *models.Job) bool { return a.Priority.Rank() < b.Priority.Rank() }
	case "status":
		return func(a, b *models.Job) bool { return a.Status < b.Status }
	case "job_number":
		return func(a, b *models.Job) bool { return a.JobNumber < b.JobNumber }
	default:
		return func(a, b *models.Job) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
}

func (s *Store) NextJobNumber(_ context.Context, tenantID uuid.UUID, year int) (int, error) {
	defer s.lock()()
	key := tenantID.String() + ":" + itoa(year)
	s.data.sequences[key]++
	return s.data.sequences[key], nil
}

// --- Vendors ---

func (s *Store) CreateVendor(_ context.Context, v *models.Vendor) error {
	defer s.lock()()
	if v.Version == 0 {
		v.Version = 1
	}
	if _, ok := s.data.vendors[v.ID]; ok {
		return store.ErrDuplicateKey
	}
	s.data.vendors[v.ID] = cloneVendor(*v)
	return nil
}

func (s *Store) GetVendor(_ context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Vendor, error) {
	defer s.lock()()
	v, ok := s.data.vendors[id]
	if !ok || v.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	v = cloneVendor(v)
	return &v, nil
}

func (s *Store) UpdateVendor(_ context.Context, v *models.Vendor) error {
	defer s.lock()()
	existing, ok := s.data.vendors[v.ID]
	if !ok || existing.TenantID != v.TenantID {
		return store.ErrNotFound
	}
	if existing.Version != v.Version {
		return store.ErrConflict
	}
	v.Version++
	s.data.vendors[v.ID] = cloneVendor(*v)
	return nil
}

func (s *Store) ListVendors(_ context.Context, filter store.VendorFilter) ([]*models.Vendor, int, error) {
	filter.Normalize()
	defer s.lock()()

	var matched []*models.Vendor
	for _, v := range s.data.vendors {
		if v.TenantID != filter.TenantID {
			continue
		}
		if filter.IsActive != nil && v.IsActive != *filter.IsActive {
			continue
		}
		if filter.HasCapacity != nil && (v.CurrentCapacity < v.CapacityLimit) != *filter.HasCapacity {
			continue
		}
		if filter.ServiceType != "" && !hasSpecialization(v.Specializations, filter.ServiceType) {
			continue
		}
		v = cloneVendor(v)
		matched = append(matched, &v)
	}
	sort.Slice(matched, func(a, b int) bool { return matched[a].Name < matched[b].Name })

	return paginate(matched, filter.Page, filter.Limit), len(matched), nil
}

func (s *Store) ListAvailableVendors(_ context.Context, tenantID uuid.UUID, limit int) ([]*models.Vendor, error) {
	defer s.lock()()

	var out []*models.Vendor
	for _, v := range s.data.vendors {
		if v.TenantID != tenantID || !v.IsActive || v.CurrentCapacity >= v.CapacityLimit {
			continue
		}
		v = cloneVendor(v)
		out = append(out, &v)
	}
	sort.Slice(out, func(a, b int) bool {
		ra, rb := ratingOf(out[a]), ratingOf(out[b])
		if ra != rb {
			return ra > rb
		}
		return out[a].Name < out[b].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Assignments ---

func (s *Store) CreateAssignment(_ context.Context, a *models.Assignment) error {
	defer s.lock()()
	for _, existing := range s.data.assignments {
		if existing.ID == a.ID {
			return store.ErrDuplicateKey
		}
		if a.Status == models.AssignmentActive && existing.JobID == a.JobID && existing.Status == models.AssignmentActive {
			return store.ErrDuplicateKey
		}
	}
	s.data.assignments[a.ID] = *a
	return nil
}

func (s *Store) GetAssignment(_ context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Assignment, error) {
	defer s.lock()()
	a, ok := s.data.assignments[id]
	if !ok || a.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *Store) TransitionAssignment(_ context.Context, a *models.Assignment, from models.AssignmentStatus) error {
	defer s.lock()()
	existing, ok := s.data.assignments[a.ID]
	if !ok || existing.TenantID != a.TenantID {
		return store.ErrNotFound
	}
	if existing.Status != from {
		return store.ErrConflict
	}
	s.data.assignments[a.ID] = *a
	return nil
}

func (s *Store) ListAssignmentsByJob(_ context.Context, jobID uuid.UUID, tenantID uuid.UUID) ([]*models.Assignment, error) {
	defer s.lock()()
	var out []*models.Assignment
	for _, a := range s.data.assignments {
		if a.JobID == jobID && a.TenantID == tenantID {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.After(out[j].AssignedAt) })
	return out, nil
}

// --- AI Recommendations ---

func (s *Store) CreateRecommendation(_ context.Context, r *models.AIRecommendation) error {
	defer s.lock()()
	if _, ok := s.data.recommendations[r.ID]; ok {
		return store.ErrDuplicateKey
	}
	s.data.recommendations[r.ID] = *r
	return nil
}

func (s *Store) GetRecommendation(_ context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.AIRecommendation, error) {
	defer s.lock()()
	r, ok := s.data.recommendations[id]
	if !ok || r.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *Store) CompleteRecommendation(_ context.Context, r *models.AIRecommendation) error {
	defer s.lock()()
	existing, ok := s.data.recommendations[r.ID]
	if !ok || existing.TenantID != r.TenantID {
		return store.ErrNotFound
	}
	if existing.Status != models.RecommendationPending {
		return store.ErrConflict
	}
	s.data.recommendations[r.ID] = *r
	return nil
}

func (s *Store) ListRecommendationsByJob(_ context.Context, jobID uuid.UUID, tenantID uuid.UUID) ([]*models.AIRecommendation, error) {
	defer s.lock()()
	var out []*models.AIRecommendation
	for _, r := range s.data.recommendations {
		if r.JobID == jobID && r.TenantID == tenantID {
			r := r
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

// --- Audit Logs ---

func (s *Store) CreateAuditLog(_ context.Context, e *models.AuditLog) error {
	defer s.lock()()
	s.data.auditLogs = append(s.data.auditLogs, *e)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, filter store.AuditFilter) ([]*models.AuditLog, int, error) {
	filter.Normalize()
	defer s.lock()()

	var matched []*models.AuditLog
	for i := len(s.data.auditLogs) - 1; i >= 0; i-- {
		e := s.data.auditLogs[i]
		if e.TenantID != filter.TenantID {
			continue
		}
		if filter.EntityName != "" && e.EntityName != filter.EntityName {
			continue
		}
		if filter.EntityID != nil && e.EntityID != *filter.EntityID {
			continue
		}
		if !filter.Since.IsZero() && e.CreatedAt.Before(filter.Since) {
			continue
		}
		matched = append(matched, &e)
	}
	return paginate(matched, filter.Page, filter.Limit), len(matched), nil
}

var _ store.Store = (*Store)(nil)

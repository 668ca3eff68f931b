package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/store"
	"github.com/kiranshivaraju/fielddispatch/internal/store/memstore"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(tenantID uuid.UUID, number string) *models.Job {
	now := time.Now().UTC()
	return &models.Job{
		ID:        uuid.New(),
		TenantID:  tenantID,
		JobNumber: number,
		Title:     "Leaking pipe " + number,
		Status:    models.JobStatusNew,
		Priority:  models.PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestUpdateJob_StaleVersionConflicts(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	tenantID := uuid.New()

	job := newJob(tenantID, "JOB-2025-00001")
	require.NoError(t, s.CreateJob(ctx, job))

	first, err := s.GetJob(ctx, job.ID, tenantID)
	require.NoError(t, err)
	second, err := s.GetJob(ctx, job.ID, tenantID)
	require.NoError(t, err)

	first.Title = "first"
	require.NoError(t, s.UpdateJob(ctx, first))
	assert.Equal(t, 2, first.Version)

	second.Title = "second"
	assert.ErrorIs(t, s.UpdateJob(ctx, second), store.ErrConflict)

	got, err := s.GetJob(ctx, job.ID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)
}

func TestGetJob_OtherTenantNotFound(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	job := newJob(uuid.New(), "JOB-2025-00001")
	require.NoError(t, s.CreateJob(ctx, job))

	_, err := s.GetJob(ctx, job.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	tenantID := uuid.New()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Store) error {
		require.NoError(t, tx.CreateJob(ctx, newJob(tenantID, "JOB-2025-00001")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	jobs, total, err := s.ListJobs(ctx, store.JobFilter{TenantID: tenantID})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, jobs)
}

func TestWithTx_RollbackKeepsWritesMadeOutsideTx(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	tenantID := uuid.New()
	boom := errors.New("boom")

	rec := &models.AIRecommendation{
		ID:          uuid.New(),
		TenantID:    tenantID,
		JobID:       uuid.New(),
		Status:      models.RecommendationPending,
		RequestedAt: time.Now().UTC(),
	}

	inTx := make(chan struct{})
	txDone := make(chan error, 1)
	go func() {
		txDone <- s.WithTx(ctx, func(tx store.Store) error {
			require.NoError(t, tx.CreateJob(ctx, newJob(tenantID, "JOB-2025-00001")))
			close(inTx)
			time.Sleep(100 * time.Millisecond)
			return boom
		})
	}()

	<-inTx
	require.NoError(t, s.CreateRecommendation(ctx, rec))
	assert.ErrorIs(t, <-txDone, boom)

	got, err := s.GetRecommendation(ctx, rec.ID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	_, total, err := s.ListJobs(ctx, store.JobFilter{TenantID: tenantID})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestWithTx_NestedReusesTransaction(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	tenantID := uuid.New()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Store) error {
		return tx.WithTx(ctx, func(inner store.Store) error {
			require.NoError(t, inner.CreateJob(ctx, newJob(tenantID, "JOB-2025-00001")))
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	_, total, err := s.ListJobs(ctx, store.JobFilter{TenantID: tenantID})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestCompleteRecommendation_OnlyFromPending(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	tenantID := uuid.New()

	rec := &models.AIRecommendation{
		ID:          uuid.New(),
		TenantID:    tenantID,
		JobID:       uuid.New(),
		Status:      models.RecommendationPending,
		RequestedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateRecommendation(ctx, rec))

	rec.Fail("broker down", time.Now().UTC())
	require.NoError(t, s.CompleteRecommendation(ctx, rec))

	rec.Status = models.RecommendationCompleted
	assert.ErrorIs(t, s.CompleteRecommendation(ctx, rec), store.ErrConflict)

	got, err := s.GetRecommendation(ctx, rec.ID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, models.RecommendationFailed, got.Status)
}

func TestCreateAssignment_SecondActiveRejected(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	tenantID := uuid.New()
	jobID := uuid.New()

	a1 := &models.Assignment{ID: uuid.New(), TenantID: tenantID, JobID: jobID, Status: models.AssignmentActive}
	a2 := &models.Assignment{ID: uuid.New(), TenantID: tenantID, JobID: jobID, Status: models.AssignmentActive}

	require.NoError(t, s.CreateAssignment(ctx, a1))
	assert.ErrorIs(t, s.CreateAssignment(ctx, a2), store.ErrDuplicateKey)
}

func TestListJobs_FiltersAndSorts(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	tenantID := uuid.New()

	low := newJob(tenantID, "JOB-2025-00001")
	low.Priority = models.PriorityLow
	critical := newJob(tenantID, "JOB-2025-00002")
	critical.Priority = models.PriorityCritical
	critical.Title = "Broken freezer"
	done := newJob(tenantID, "JOB-2025-00003")
	done.Status = models.JobStatusCompleted

	for _, j := range []*models.Job{low, critical, done} {
		require.NoError(t, s.CreateJob(ctx, j))
	}

	jobs, total, err := s.ListJobs(ctx, store.JobFilter{
		TenantID: tenantID,
		Statuses: []models.JobStatus{models.JobStatusNew},
		SortBy:   "priority",
		SortDesc: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, jobs, 2)
	assert.Equal(t, critical.ID, jobs[0].ID)

	jobs, total, err = s.ListJobs(ctx, store.JobFilter{TenantID: tenantID, Search: "freezer"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, critical.ID, jobs[0].ID)
}

func TestListAvailableVendors_ExcludesFullAndInactive(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	tenantID := uuid.New()

	open := &models.Vendor{ID: uuid.New(), TenantID: tenantID, Name: "Open", CapacityLimit: 2, IsActive: true}
	full := &models.Vendor{ID: uuid.New(), TenantID: tenantID, Name: "Full", CapacityLimit: 1, CurrentCapacity: 1, IsActive: true}
	off := &models.Vendor{ID: uuid.New(), TenantID: tenantID, Name: "Off", CapacityLimit: 3, IsActive: false}
	for _, v := range []*models.Vendor{open, full, off} {
		require.NoError(t, s.CreateVendor(ctx, v))
	}

	vendors, err := s.ListAvailableVendors(ctx, tenantID, 20)
	require.NoError(t, err)
	require.Len(t, vendors, 1)
	assert.Equal(t, open.ID, vendors[0].ID)
}

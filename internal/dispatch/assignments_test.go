package dispatch_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/dispatch"
	"github.com/kiranshivaraju/fielddispatch/internal/events"
	"github.com/kiranshivaraju/fielddispatch/internal/store/memstore"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignVendor_FullVendorRejectsSecondJob(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	vendor := f.vendor(t, "Solo Plumbing", 1)
	jobA := f.job(t, "Job A")
	jobB := f.job(t, "Job B")

	a, err := f.svc.AssignVendor(ctx, f.actor, jobA.ID, dispatch.AssignVendorInput{VendorID: vendor.ID})
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentActive, a.Status)
	assert.Equal(t, "Solo Plumbing", a.VendorName)
	assert.Equal(t, "dispatcher@example.com", a.AssignedBy)

	assert.Equal(t, 1, f.reloadVendor(t, vendor.ID).CurrentCapacity)
	assert.Equal(t, models.JobStatusAssigned, f.reloadJob(t, jobA.ID).Status)
	assert.Len(t, f.activeAssignments(t, jobA.ID), 1)

	_, err = f.svc.AssignVendor(ctx, f.actor, jobB.ID, dispatch.AssignVendorInput{VendorID: vendor.ID})
	require.ErrorIs(t, err, dispatch.ErrInvalidOperation)
	assert.Equal(t, "Vendor is at full capacity", err.Error())
	assert.Equal(t, 1, f.reloadVendor(t, vendor.ID).CurrentCapacity)
	assert.Empty(t, f.activeAssignments(t, jobB.ID))
	assert.Equal(t, models.JobStatusNew, f.reloadJob(t, jobB.ID).Status)
}

func TestAssignVendor_SupersedesPriorAssignment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	x := f.vendor(t, "Vendor X", 3)
	y := f.vendor(t, "Vendor Y", 3)
	job := f.job(t, "Job A")

	first, err := f.svc.AssignVendor(ctx, f.actor, job.ID, dispatch.AssignVendorInput{VendorID: x.ID})
	require.NoError(t, err)
	second, err := f.svc.AssignVendor(ctx, f.actor, job.ID, dispatch.AssignVendorInput{VendorID: y.ID, Notes: "closer"})
	require.NoError(t, err)

	prior, err := f.store.GetAssignment(ctx, first.ID, f.actor.TenantID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentRevoked, prior.Status)
	require.NotNil(t, prior.RevokedAt)

	active := f.activeAssignments(t, job.ID)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
	assert.Equal(t, "closer", active[0].Notes)

	assert.Equal(t, 0, f.reloadVendor(t, x.ID).CurrentCapacity)
	assert.Equal(t, 1, f.reloadVendor(t, y.ID).CurrentCapacity)

	reloaded := f.reloadJob(t, job.ID)
	require.NotNil(t, reloaded.AssignedVendorName)
	assert.Equal(t, "Vendor Y", *reloaded.AssignedVendorName)
}

func TestAssignVendor_ReassignSameVendorKeepsOneSlot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	v := f.vendor(t, "Same Co", 2)
	job := f.job(t, "Job A")

	_, err := f.svc.AssignVendor(ctx, f.actor, job.ID, dispatch.AssignVendorInput{VendorID: v.ID})
	require.NoError(t, err)
	_, err = f.svc.AssignVendor(ctx, f.actor, job.ID, dispatch.AssignVendorInput{VendorID: v.ID})
	require.NoError(t, err)

	assert.Equal(t, 1, f.reloadVendor(t, v.ID).CurrentCapacity)
	assert.Len(t, f.activeAssignments(t, job.ID), 1)
}

func TestAssignVendor_CapacityBoundary(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	v := f.vendor(t, "Pair Co", 2)
	jobs := []*models.Job{f.job(t, "One"), f.job(t, "Two"), f.job(t, "Three")}

	_, err := f.svc.AssignVendor(ctx, f.actor, jobs[0].ID, dispatch.AssignVendorInput{VendorID: v.ID})
	require.NoError(t, err)
	require.Equal(t, 1, f.reloadVendor(t, v.ID).CurrentCapacity)

	_, err = f.svc.AssignVendor(ctx, f.actor, jobs[1].ID, dispatch.AssignVendorInput{VendorID: v.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, f.reloadVendor(t, v.ID).CurrentCapacity)

	_, err = f.svc.AssignVendor(ctx, f.actor, jobs[2].ID, dispatch.AssignVendorInput{VendorID: v.ID})
	assert.ErrorIs(t, err, dispatch.ErrInvalidOperation)
	assert.Equal(t, 2, f.reloadVendor(t, v.ID).CurrentCapacity)
}

func TestAssignVendor_InactiveVendor(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	v := f.vendor(t, "Sleepy Co", 5)
	job := f.job(t, "Job A")
	_, err := f.svc.SetVendorActive(ctx, f.actor, v.ID, false)
	require.NoError(t, err)

	_, err = f.svc.AssignVendor(ctx, f.actor, job.ID, dispatch.AssignVendorInput{VendorID: v.ID})
	require.ErrorIs(t, err, dispatch.ErrInvalidOperation)
	assert.Equal(t, "Cannot assign an inactive vendor", err.Error())
}

func TestAssignVendor_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	v := f.vendor(t, "Real Co", 5)
	job := f.job(t, "Job A")

	_, err := f.svc.AssignVendor(ctx, f.actor, uuid.New(), dispatch.AssignVendorInput{VendorID: v.ID})
	require.ErrorIs(t, err, dispatch.ErrNotFound)
	assert.Equal(t, "Job not found", err.Error())

	_, err = f.svc.AssignVendor(ctx, f.actor, job.ID, dispatch.AssignVendorInput{VendorID: uuid.New()})
	require.ErrorIs(t, err, dispatch.ErrNotFound)
	assert.Equal(t, "Vendor not found", err.Error())

	other := models.Actor{TenantID: uuid.New(), UserID: "intruder"}
	_, err = f.svc.AssignVendor(ctx, other, job.ID, dispatch.AssignVendorInput{VendorID: v.ID})
	assert.ErrorIs(t, err, dispatch.ErrNotFound)
}

func TestAssignVendor_PublishesJobAssigned(t *testing.T) {
	f := newFixture(t, nil)
	v := f.vendor(t, "Loud Co", 5)
	job := f.job(t, "Job A")

	a, err := f.svc.AssignVendor(context.Background(), f.actor, job.ID, dispatch.AssignVendorInput{VendorID: v.ID})
	require.NoError(t, err)

	published := f.pub.OfTopic(events.TopicJobAssigned)
	require.Len(t, published, 1)
	evt := published[0].(events.JobAssigned)
	assert.Equal(t, a.ID, evt.AssignmentID)
	assert.Equal(t, job.JobNumber, evt.JobNumber)
	assert.Equal(t, "Loud Co", evt.VendorName)
	assert.Equal(t, f.actor.TenantID, evt.TenantID)
}

func TestAssignVendor_BrokerDownStillAssigns(t *testing.T) {
	f := newFixture(t, nil)
	v := f.vendor(t, "Quiet Co", 5)
	job := f.job(t, "Job A")
	f.pub.Err = events.ErrBrokerDown

	a, err := f.svc.AssignVendor(context.Background(), f.actor, job.ID, dispatch.AssignVendorInput{VendorID: v.ID})
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentActive, a.Status)
	assert.Equal(t, 1, f.reloadVendor(t, v.ID).CurrentCapacity)
	assert.Empty(t, f.pub.OfTopic(events.TopicJobAssigned))
}

func TestAssignVendor_RetriesAfterConflict(t *testing.T) {
	cs := newConflictStore(0)
	f := newFixture(t, cs)
	v := f.vendor(t, "Busy Co", 2)
	job := f.job(t, "Job A")
	cs.remaining.Store(1)

	_, err := f.svc.AssignVendor(context.Background(), f.actor, job.ID, dispatch.AssignVendorInput{VendorID: v.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, f.reloadVendor(t, v.ID).CurrentCapacity)
	assert.Len(t, f.activeAssignments(t, job.ID), 1)
}

func TestAssignVendor_ConflictAfterRetriesExhausted(t *testing.T) {
	cs := newConflictStore(0)
	f := newFixture(t, cs, dispatch.WithConflictRetries(3))
	v := f.vendor(t, "Busy Co", 2)
	job := f.job(t, "Job A")
	cs.remaining.Store(10)

	_, err := f.svc.AssignVendor(context.Background(), f.actor, job.ID, dispatch.AssignVendorInput{VendorID: v.ID})
	require.ErrorIs(t, err, dispatch.ErrConflict)

	assert.Equal(t, 0, f.reloadVendor(t, v.ID).CurrentCapacity)
	assert.Empty(t, f.activeAssignments(t, job.ID))
	assert.Equal(t, models.JobStatusNew, f.reloadJob(t, job.ID).Status)
	assert.Empty(t, f.pub.OfTopic(events.TopicJobAssigned))
}

func TestAssignVendor_RetriesDeadlockVictim(t *testing.T) {
	as := &abortingStore{Store: memstore.New()}
	f := newFixture(t, as)
	v := f.vendor(t, "Busy Co", 2)
	job := f.job(t, "Job A")
	as.remaining.Store(2)

	_, err := f.svc.AssignVendor(context.Background(), f.actor, job.ID, dispatch.AssignVendorInput{VendorID: v.ID})
	require.NoError(t, err)

	assert.Equal(t, 1, f.reloadVendor(t, v.ID).CurrentCapacity)
	assert.Len(t, f.activeAssignments(t, job.ID), 1)
	assert.Len(t, f.pub.OfTopic(events.TopicJobAssigned), 1)
}

func TestAssignVendor_ConcurrentNeverExceedsCapacity(t *testing.T) {
	f := newFixture(t, nil)
	v := f.vendor(t, "Crowded Co", 3)
	jobs := make([]*models.Job, 10)
	for i := range jobs {
		jobs[i] = f.job(t, vendorName(i))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, j := range jobs {
		wg.Add(1)
		go func(jobID uuid.UUID) {
			defer wg.Done()
			_, err := f.svc.AssignVendor(context.Background(), f.actor, jobID, dispatch.AssignVendorInput{VendorID: v.ID})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(j.ID)
	}
	wg.Wait()

	assert.Equal(t, 3, successes)
	assert.Equal(t, 3, f.reloadVendor(t, v.ID).CurrentCapacity)
}

func TestAssignVendor_ValidatesInput(t *testing.T) {
	f := newFixture(t, nil)
	job := f.job(t, "Job A")

	_, err := f.svc.AssignVendor(context.Background(), f.actor, job.ID, dispatch.AssignVendorInput{})
	require.ErrorIs(t, err, dispatch.ErrValidation)

	var de *dispatch.Error
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Fields, "vendor_id")
}

func TestRevokeAssignment_RestoresCapacityAndReviewState(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	v := f.vendor(t, "Solo Plumbing", 1)
	job := f.job(t, "Job A")
	a, err := f.svc.AssignVendor(ctx, f.actor, job.ID, dispatch.AssignVendorInput{VendorID: v.ID})
	require.NoError(t, err)

	revoked, err := f.svc.RevokeAssignment(ctx, f.actor, job.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentRevoked, revoked.Status)
	require.NotNil(t, revoked.RevokedBy)
	assert.Equal(t, "dispatcher@example.com", *revoked.RevokedBy)

	assert.Equal(t, 0, f.reloadVendor(t, v.ID).CurrentCapacity)
	reloaded := f.reloadJob(t, job.ID)
	assert.Equal(t, models.JobStatusInReview, reloaded.Status)
	assert.Nil(t, reloaded.AssignedVendorName)
	assert.Len(t, f.pub.Events(), 2, "revoke publishes nothing")
}

func TestRevokeAssignment_TwiceFailsWithoutDoubleRelease(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	v := f.vendor(t, "Double Co", 3)
	jobA := f.job(t, "Job A")
	jobB := f.job(t, "Job B")
	a, err := f.svc.AssignVendor(ctx, f.actor, jobA.ID, dispatch.AssignVendorInput{VendorID: v.ID})
	require.NoError(t, err)
	_, err = f.svc.AssignVendor(ctx, f.actor, jobB.ID, dispatch.AssignVendorInput{VendorID: v.ID})
	require.NoError(t, err)

	_, err = f.svc.RevokeAssignment(ctx, f.actor, jobA.ID, a.ID)
	require.NoError(t, err)
	require.Equal(t, 1, f.reloadVendor(t, v.ID).CurrentCapacity)

	_, err = f.svc.RevokeAssignment(ctx, f.actor, jobA.ID, a.ID)
	require.ErrorIs(t, err, dispatch.ErrInvalidOperation)
	assert.Equal(t, "Only active assignments can be revoked", err.Error())
	assert.Equal(t, 1, f.reloadVendor(t, v.ID).CurrentCapacity)
}

func TestRevokeAssignment_FloorsCapacityAtZero(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	v := f.vendor(t, "Drifted Co", 2)
	job := f.job(t, "Job A")
	a, err := f.svc.AssignVendor(ctx, f.actor, job.ID, dispatch.AssignVendorInput{VendorID: v.ID})
	require.NoError(t, err)

	drifted := f.reloadVendor(t, v.ID)
	drifted.CurrentCapacity = 0
	require.NoError(t, f.store.UpdateVendor(ctx, drifted))

	_, err = f.svc.RevokeAssignment(ctx, f.actor, job.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.reloadVendor(t, v.ID).CurrentCapacity)
}

func TestRevokeAssignment_WrongJob(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	v := f.vendor(t, "Strict Co", 2)
	jobA := f.job(t, "Job A")
	jobB := f.job(t, "Job B")
	a, err := f.svc.AssignVendor(ctx, f.actor, jobA.ID, dispatch.AssignVendorInput{VendorID: v.ID})
	require.NoError(t, err)

	_, err = f.svc.RevokeAssignment(ctx, f.actor, jobB.ID, a.ID)
	require.ErrorIs(t, err, dispatch.ErrInvalidOperation)
	assert.Equal(t, "Assignment does not belong to this job", err.Error())
	assert.Len(t, f.activeAssignments(t, jobA.ID), 1)
	assert.Equal(t, 1, f.reloadVendor(t, v.ID).CurrentCapacity)
}

func TestRevokeAssignment_Missing(t *testing.T) {
	f := newFixture(t, nil)
	job := f.job(t, "Job A")

	_, err := f.svc.RevokeAssignment(context.Background(), f.actor, job.ID, uuid.New())
	require.ErrorIs(t, err, dispatch.ErrNotFound)
	assert.Equal(t, "Assignment not found", err.Error())
}

func TestListAssignments_History(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	x := f.vendor(t, "X", 2)
	y := f.vendor(t, "Y", 2)
	job := f.job(t, "Job A")
	_, err := f.svc.AssignVendor(ctx, f.actor, job.ID, dispatch.AssignVendorInput{VendorID: x.ID})
	require.NoError(t, err)
	_, err = f.svc.AssignVendor(ctx, f.actor, job.ID, dispatch.AssignVendorInput{VendorID: y.ID})
	require.NoError(t, err)

	history, err := f.svc.ListAssignments(ctx, f.actor, job.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = f.svc.ListAssignments(ctx, f.actor, uuid.New())
	assert.ErrorIs(t, err, dispatch.ErrNotFound)
}

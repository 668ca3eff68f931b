package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/dispatch"
	"github.com/kiranshivaraju/fielddispatch/internal/events"
	"github.com/kiranshivaraju/fielddispatch/internal/store"
	"github.com/kiranshivaraju/fielddispatch/internal/store/memstore"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store *memstore.Store
	pub   *events.Recorder
	svc   *dispatch.Service
	actor models.Actor
}

func newFixture(t *testing.T, st store.Store, opts ...dispatch.Option) *fixture {
	t.Helper()
	mem := memstore.New()
	if st == nil {
		st = mem
	}
	if w, ok := st.(interface{ Mem() *memstore.Store }); ok {
		mem = w.Mem()
	}
	pub := &events.Recorder{}
	opts = append([]dispatch.Option{
		dispatch.WithClock(func() time.Time { return fixedNow }),
		dispatch.WithLookupRetry(5, time.Millisecond),
	}, opts...)
	return &fixture{
		store: mem,
		pub:   pub,
		svc:   dispatch.NewService(st, pub, nil, nil, opts...),
		actor: models.Actor{TenantID: uuid.New(), UserID: "dispatcher@example.com"},
	}
}

func (f *fixture) job(t *testing.T, title string) *models.Job {
	t.Helper()
	job, err := f.svc.CreateJob(context.Background(), f.actor, dispatch.JobDetails{
		Title:          title,
		Description:    title + " needs attention",
		CustomerName:   "Pat Customer",
		CustomerEmail:  "pat@example.com",
		ServiceAddress: "42 Harbor Rd",
		ServiceType:    "plumbing",
	})
	require.NoError(t, err)
	return job
}

func (f *fixture) vendor(t *testing.T, name string, capacity int) *models.Vendor {
	t.Helper()
	v, err := f.svc.CreateVendor(context.Background(), f.actor, dispatch.CreateVendorInput{
		Name:            name,
		ServiceArea:     "Downtown",
		Specializations: []string{"plumbing"},
		CapacityLimit:   capacity,
	})
	require.NoError(t, err)
	return v
}

func (f *fixture) reloadVendor(t *testing.T, id uuid.UUID) *models.Vendor {
	t.Helper()
	v, err := f.store.GetVendor(context.Background(), id, f.actor.TenantID)
	require.NoError(t, err)
	return v
}

func (f *fixture) reloadJob(t *testing.T, id uuid.UUID) *models.Job {
	t.Helper()
	j, err := f.store.GetJob(context.Background(), id, f.actor.TenantID)
	require.NoError(t, err)
	return j
}

func (f *fixture) activeAssignments(t *testing.T, jobID uuid.UUID) []*models.Assignment {
	t.Helper()
	all, err := f.store.ListAssignmentsByJob(context.Background(), jobID, f.actor.TenantID)
	require.NoError(t, err)
	var active []*models.Assignment
	for _, a := range all {
		if a.IsActive() {
			active = append(active, a)
		}
	}
	return active
}

// conflictStore makes the first n vendor updates inside a transaction lose
// their version check.
type conflictStore struct {
	*memstore.Store
	remaining atomic.Int32
}

func newConflictStore(n int32) *conflictStore {
	c := &conflictStore{Store: memstore.New()}
	c.remaining.Store(n)
	return c
}

func (c *conflictStore) Mem() *memstore.Store { return c.Store }

func (c *conflictStore) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	return c.Store.WithTx(ctx, func(tx store.Store) error {
		return fn(&conflictTx{Store: tx, parent: c})
	})
}

type conflictTx struct {
	store.Store
	parent *conflictStore
}

func (t *conflictTx) UpdateVendor(ctx context.Context, v *models.Vendor) error {
	if t.parent.remaining.Add(-1) >= 0 {
		return store.ErrConflict
	}
	return t.Store.UpdateVendor(ctx, v)
}

// abortingStore rolls back the first n transactions the way Postgres aborts a
// deadlock victim.
type abortingStore struct {
	*memstore.Store
	remaining atomic.Int32
}

func (a *abortingStore) Mem() *memstore.Store { return a.Store }

func (a *abortingStore) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	return a.Store.WithTx(ctx, func(tx store.Store) error {
		if err := fn(tx); err != nil {
			return err
		}
		if a.remaining.Add(-1) >= 0 {
			return fmt.Errorf("%w: %w", store.ErrConflict, errors.New("ERROR: deadlock detected (SQLSTATE 40P01)"))
		}
		return nil
	})
}

// laggingStore hides recommendations for the first misses lookups.
type laggingStore struct {
	*memstore.Store
	misses int32
	calls  atomic.Int32
}

func (l *laggingStore) Mem() *memstore.Store { return l.Store }

func (l *laggingStore) GetRecommendation(ctx context.Context, id, tenantID uuid.UUID) (*models.AIRecommendation, error) {
	if l.calls.Add(1) <= l.misses {
		return nil, store.ErrNotFound
	}
	return l.Store.GetRecommendation(ctx, id, tenantID)
}

// brokenStore fails selected writes.
type brokenStore struct {
	*memstore.Store
	completeErr error
	auditErr    error
}

func (b *brokenStore) Mem() *memstore.Store { return b.Store }

func (b *brokenStore) CompleteRecommendation(ctx context.Context, r *models.AIRecommendation) error {
	if b.completeErr != nil {
		return b.completeErr
	}
	return b.Store.CompleteRecommendation(ctx, r)
}

func (b *brokenStore) CreateAuditLog(ctx context.Context, e *models.AuditLog) error {
	if b.auditErr != nil {
		return b.auditErr
	}
	return b.Store.CreateAuditLog(ctx, e)
}

var errDiskFull = errors.New("disk full")

func vendorName(i int) string { return fmt.Sprintf("Vendor %02d", i) }

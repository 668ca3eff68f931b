package consumer_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/ai"
	"github.com/kiranshivaraju/fielddispatch/internal/ai/mock"
	"github.com/kiranshivaraju/fielddispatch/internal/audit"
	"github.com/kiranshivaraju/fielddispatch/internal/broker"
	"github.com/kiranshivaraju/fielddispatch/internal/consumer"
	"github.com/kiranshivaraju/fielddispatch/internal/dispatch"
	"github.com/kiranshivaraju/fielddispatch/internal/events"
	"github.com/kiranshivaraju/fielddispatch/internal/store"
	"github.com/kiranshivaraju/fielddispatch/internal/store/memstore"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type push struct {
	Group   string
	JobID   uuid.UUID
	Tenant  uuid.UUID
	Event   string
	Payload map[string]any
}

type fakeNotifier struct {
	mu     sync.Mutex
	pushes []push
	err    error
}

func (f *fakeNotifier) NotifyTenant(_ context.Context, tenantID uuid.UUID, event string, payload any) error {
	return f.record(push{Group: "tenant", Tenant: tenantID, Event: event, Payload: payload.(map[string]any)})
}

func (f *fakeNotifier) NotifyJob(_ context.Context, jobID, tenantID uuid.UUID, event string, payload any) error {
	return f.record(push{Group: "job", JobID: jobID, Tenant: tenantID, Event: event, Payload: payload.(map[string]any)})
}

func (f *fakeNotifier) record(p push) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, p)
	return f.err
}

func (f *fakeNotifier) all() []push {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]push(nil), f.pushes...)
}

type fakeCache struct {
	statuses map[uuid.UUID]string
	err      error
}

func (f *fakeCache) SetRecommendationStatus(_ context.Context, jobID uuid.UUID, status string, _ time.Duration) error {
	if f.err != nil {
		return f.err
	}
	if f.statuses == nil {
		f.statuses = map[uuid.UUID]string{}
	}
	f.statuses[jobID] = status
	return nil
}

type topicRecorder struct{ topics []string }

func (r *topicRecorder) Subscribe(topic string, _ broker.Handler) { r.topics = append(r.topics, topic) }

func message(t *testing.T, evt events.Event) broker.Message {
	t.Helper()
	raw, err := json.Marshal(evt)
	require.NoError(t, err)
	return broker.Message{ID: uuid.NewString(), Topic: evt.Topic(), Payload: raw, Attempt: 1}
}

func auditActions(t *testing.T, st store.Store, tenantID uuid.UUID) []string {
	t.Helper()
	logs, _, err := st.ListAuditLogs(context.Background(), store.AuditFilter{TenantID: tenantID})
	require.NoError(t, err)
	var out []string
	for _, l := range logs {
		out = append(out, l.EntityName+"."+l.Action)
	}
	return out
}

func TestRegister_AllTopics(t *testing.T) {
	rec := &topicRecorder{}
	(&consumer.Handlers{}).Register(rec)

	assert.ElementsMatch(t, []string{
		events.TopicJobCreated,
		events.TopicJobAssigned,
		events.TopicRecommendationRequested,
		events.TopicRecommendationGenerated,
	}, rec.topics)
}

func TestJobAssigned_PushesToTenantAndAudits(t *testing.T) {
	st := memstore.New()
	notifier := &fakeNotifier{}
	h := &consumer.Handlers{Notifier: notifier, Audit: audit.NewRecorder(st, nil)}
	evt := events.JobAssigned{
		TenantID:     uuid.New(),
		JobID:        uuid.New(),
		JobNumber:    "JOB-2025-00007",
		AssignmentID: uuid.New(),
		VendorID:     uuid.New(),
		VendorName:   "Rapid Repairs",
		AssignedBy:   "dispatcher@example.com",
		AssignedAt:   time.Now().UTC(),
	}

	require.NoError(t, h.JobAssigned(context.Background(), message(t, evt)))

	pushes := notifier.all()
	require.Len(t, pushes, 1)
	assert.Equal(t, "tenant", pushes[0].Group)
	assert.Equal(t, evt.TenantID, pushes[0].Tenant)
	assert.Equal(t, "JobAssigned", pushes[0].Event)
	assert.Equal(t, "Rapid Repairs", pushes[0].Payload["vendor_name"])

	logs, _, err := st.ListAuditLogs(context.Background(), store.AuditFilter{TenantID: evt.TenantID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Assigned", logs[0].Action)
	assert.Equal(t, evt.JobID, logs[0].EntityID)
	assert.Equal(t, "dispatcher@example.com", logs[0].UserID)
}

func TestJobAssigned_PushFailureIsNotRetried(t *testing.T) {
	h := &consumer.Handlers{Notifier: &fakeNotifier{err: errors.New("hub gone")}}
	err := h.JobAssigned(context.Background(), message(t, events.JobAssigned{TenantID: uuid.New(), JobID: uuid.New()}))
	assert.NoError(t, err)
}

func TestRecommendationGenerated_PushAuditAndCache(t *testing.T) {
	st := memstore.New()
	notifier := &fakeNotifier{}
	statusCache := &fakeCache{}
	h := &consumer.Handlers{Notifier: notifier, Audit: audit.NewRecorder(st, nil), Cache: statusCache}

	ok := events.AIRecommendationGenerated{
		TenantID:         uuid.New(),
		JobID:            uuid.New(),
		RecommendationID: uuid.New(),
		Status:           models.RecommendationCompleted,
		Provider:         "mock",
		CompletedAt:      time.Now().UTC(),
	}
	require.NoError(t, h.RecommendationGenerated(context.Background(), message(t, ok)))

	failed := ok
	failed.RecommendationID = uuid.New()
	failed.Status = models.RecommendationFailed
	failed.ErrorMessage = "provider down"
	require.NoError(t, h.RecommendationGenerated(context.Background(), message(t, failed)))

	pushes := notifier.all()
	require.Len(t, pushes, 2)
	assert.Equal(t, "job", pushes[0].Group)
	assert.Equal(t, ok.JobID, pushes[0].JobID)
	assert.Equal(t, "AIRecommendationReady", pushes[0].Event)
	assert.Equal(t, true, pushes[0].Payload["success"])
	assert.Equal(t, false, pushes[1].Payload["success"])

	assert.ElementsMatch(t, []string{"AIRecommendation.Generated", "AIRecommendation.Failed"}, auditActions(t, st, ok.TenantID))
	assert.Equal(t, "failed", statusCache.statuses[ok.JobID])
}

func TestRecommendationGenerated_CacheFailureIsNotRetried(t *testing.T) {
	h := &consumer.Handlers{Cache: &fakeCache{err: errors.New("redis down")}}
	err := h.RecommendationGenerated(context.Background(), message(t, events.AIRecommendationGenerated{JobID: uuid.New()}))
	assert.NoError(t, err)
}

func TestUndecodablePayloadIsRetried(t *testing.T) {
	h := &consumer.Handlers{}
	bad := broker.Message{Topic: events.TopicJobAssigned, Payload: json.RawMessage(`"not an object"`)}
	assert.Error(t, h.JobAssigned(context.Background(), bad))
}

type failingFulfiller struct{ err error }

func (f failingFulfiller) Fulfill(context.Context, events.AIRecommendationRequested) (*models.AIRecommendation, error) {
	return nil, f.err
}

func TestRecommendationRequested_PersistErrorRedelivers(t *testing.T) {
	h := &consumer.Handlers{Fulfiller: failingFulfiller{err: errors.New("persist recommendation result: disk full")}}
	err := h.RecommendationRequested(context.Background(), message(t, events.AIRecommendationRequested{RecommendationID: uuid.New()}))
	assert.Error(t, err)
}

// TestPipeline_JobCreatedToRecommendationReady runs the whole asynchronous workflow through a Redis broker:
// job created, triaged, recommendation fulfilled, clients notified.
func TestPipeline_JobCreatedToRecommendationReady(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rb := broker.NewRedisBroker(rdb, broker.WithPrefix("test:"+uuid.NewString()[:8]))
	bus := events.NewBus(rb)
	st := memstore.New()
	svc := dispatch.NewService(st, bus, nil, nil, dispatch.WithLookupRetry(5, 10*time.Millisecond))
	ful := dispatch.NewFulfiller(st, ai.Guard(mock.NewMockProvider(), time.Second, nil), bus, nil)
	notifier := &fakeNotifier{}
	statusCache := &fakeCache{}

	c := broker.NewConsumer(rb, broker.ConsumerConfig{WorkersPerTopic: 1, ClaimWait: 50 * time.Millisecond}, nil)
	(&consumer.Handlers{
		Triager:   svc,
		Fulfiller: ful,
		Notifier:  notifier,
		Audit:     audit.NewRecorder(st, nil),
		Cache:     statusCache,
	}).Register(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	actor := models.Actor{TenantID: uuid.New(), UserID: "dispatcher@example.com"}
	vendor, err := svc.CreateVendor(ctx, actor, dispatch.CreateVendorInput{Name: "Pipeline Plumbing", Specializations: []string{"plumbing"}})
	require.NoError(t, err)
	job, err := svc.CreateJob(ctx, actor, dispatch.JobDetails{
		Title:          "Burst pipe",
		CustomerName:   "Pat Customer",
		ServiceAddress: "42 Harbor Rd",
		ServiceType:    "plumbing",
		Priority:       models.PriorityCritical,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, p := range notifier.all() {
			if p.Event == "AIRecommendationReady" && p.JobID == job.ID {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	stored, err := st.GetJob(ctx, job.ID, actor.TenantID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInReview, stored.Status)

	latest, err := svc.LatestRecommendation(ctx, actor, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecommendationCompleted, latest.Status)
	assert.Equal(t, []uuid.UUID{vendor.ID}, latest.RecommendedVendorIDs)
	assert.Equal(t, models.SystemUser, latest.RequestedBy)
}

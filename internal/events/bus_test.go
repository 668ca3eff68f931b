package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/broker"
	"github.com/kiranshivaraju/fielddispatch/internal/events"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panickingPublisher struct{}

func (panickingPublisher) Publish(_ context.Context, _ events.Event) error { panic("boom") }

func TestBus_RoundTripThroughBroker(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	b := broker.NewRedisBroker(rdb)
	bus := events.NewBus(b)
	ctx := context.Background()

	sent := events.JobAssigned{
		TenantID:   uuid.New(),
		JobID:      uuid.New(),
		VendorID:   uuid.New(),
		VendorName: "Acme Plumbing",
	}
	require.NoError(t, bus.Publish(ctx, sent))

	_, msg, err := b.Claim(ctx, events.TopicJobAssigned, time.Second)
	require.NoError(t, err)

	got, err := events.Decode[events.JobAssigned](msg)
	require.NoError(t, err)
	assert.Equal(t, sent.JobID, got.JobID)
	assert.Equal(t, "Acme Plumbing", got.VendorName)
}

func TestPublishBestEffort_Success(t *testing.T) {
	rec := &events.Recorder{}
	out := events.PublishBestEffort(context.Background(), rec, events.JobCreated{JobID: uuid.New()}, time.Second)

	assert.True(t, out.Published())
	assert.Equal(t, events.TopicJobCreated, out.Topic)
	assert.Len(t, rec.Events(), 1)
}

func TestPublishBestEffort_BrokerError(t *testing.T) {
	rec := &events.Recorder{Err: events.ErrBrokerDown}
	out := events.PublishBestEffort(context.Background(), rec, events.JobCreated{}, time.Second)

	assert.False(t, out.Published())
	assert.ErrorIs(t, out.Err, events.ErrBrokerDown)
}

func TestPublishBestEffort_Timeout(t *testing.T) {
	rec := &events.Recorder{Block: true}
	out := events.PublishBestEffort(context.Background(), rec, events.JobCreated{}, 20*time.Millisecond)

	assert.False(t, out.Published())
	assert.True(t, errors.Is(out.Err, context.DeadlineExceeded))
}

func TestPublishBestEffort_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &events.Recorder{Block: true}
	out := events.PublishBestEffort(ctx, rec, events.JobCreated{}, time.Minute)

	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestPublishBestEffort_PanicAndNil(t *testing.T) {
	out := events.PublishBestEffort(context.Background(), panickingPublisher{}, events.JobCreated{}, time.Second)
	assert.False(t, out.Published())

	out = events.PublishBestEffort(context.Background(), nil, events.JobCreated{}, time.Second)
	assert.False(t, out.Published())
}

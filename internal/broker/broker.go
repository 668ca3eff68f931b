// Package broker is a reliable at-least-once message queue on Redis lists.
//
// Each topic has three lists: a queue, a processing list and a dead-letter list.
// Workers claim with BRPOPLPUSH queue -> processing and record a lease (claim
// time) in a sorted set. They remove the entry on success and requeue it with
// an incremented attempt on failure. RequeueStale returns entries to the queue
// only once their lease is older than the visibility timeout, so messages still
// held by a live worker are never handed out twice.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrClosed = errors.New("broker closed")

// DefaultVisibilityTimeout bounds how long a claimed message may stay unacked
// before the reaper hands it to another worker. It must exceed the slowest
// handler run.
const DefaultVisibilityTimeout = 2 * time.Minute

// touchLease starts the lease clock for a processing entry that has none,
// provided the entry is still in the processing list.
var touchLease = redis.NewScript(`
for _, v in ipairs(redis.call('LRANGE', KEYS[1], 0, -1)) do
  if v == ARGV[1] then
    return redis.call('ZADD', KEYS[2], 'NX', ARGV[2], ARGV[1])
  end
end
return 0
`)

// requeueExpired moves one processing entry back to the queue unless a worker
// removed it first.
var requeueExpired = redis.NewScript(`
local n = redis.call('LREM', KEYS[1], 1, ARGV[1])
if n == 1 then
  redis.call('LPUSH', KEYS[2], ARGV[1])
end
redis.call('ZREM', KEYS[3], ARGV[1])
return n
`)

// Message is the envelope stored in Redis.
type Message struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	PublishedAt time.Time       `json:"published_at"`
}

// Publisher sends raw payloads to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Handler processes one message. A non-nil error causes redelivery.
type Handler func(ctx context.Context, msg Message) error

// RedisBroker implements Publisher and the claim/ack/retry operations used by Consumer.
type RedisBroker struct {
	rdb           *redis.Client
	prefix        string
	maxDeliveries int
	visibility    time.Duration
	now           func() time.Time
}

// Option configures a RedisBroker.
type Option func(*RedisBroker)

// WithPrefix sets the key prefix for all topic lists.
func WithPrefix(prefix string) Option {
	return func(b *RedisBroker) { b.prefix = prefix }
}

// WithMaxDeliveries sets how many times a message is attempted before it is dead-lettered.
func WithMaxDeliveries(n int) Option {
	return func(b *RedisBroker) {
		if n > 0 {
			b.maxDeliveries = n
		}
	}
}

// WithVisibilityTimeout sets how old a lease must be before RequeueStale reclaims it.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(b *RedisBroker) {
		if d > 0 {
			b.visibility = d
		}
	}
}

// WithClock replaces the lease clock.
func WithClock(now func() time.Time) Option {
	return func(b *RedisBroker) { b.now = now }
}

// NewRedisBroker creates a broker on an existing client.
func NewRedisBroker(rdb *redis.Client, opts ...Option) *RedisBroker {
	b := &RedisBroker{
		rdb:           rdb,
		prefix:        "dispatch:events",
		maxDeliveries: 5,
		visibility:    DefaultVisibilityTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RedisBroker) queueKey(topic string) string      { return fmt.Sprintf("%s:%s:queue", b.prefix, topic) }
func (b *RedisBroker) processingKey(topic string) string { return fmt.Sprintf("%s:%s:processing", b.prefix, topic) }
func (b *RedisBroker) deadKey(topic string) string       { return fmt.Sprintf("%s:%s:dead", b.prefix, topic) }
func (b *RedisBroker) leaseKey(topic string) string      { return fmt.Sprintf("%s:%s:leases", b.prefix, topic) }

// Publish pushes a new message onto the topic queue.
func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	raw, err := json.Marshal(Message{
		ID:          uuid.NewString(),
		Topic:       topic,
		Payload:     payload,
		Attempt:     1,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := b.rdb.LPush(ctx, b.queueKey(topic), raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Claim blocks up to wait for the next message, moves it to the processing list
// and leases it. It returns redis.Nil when nothing arrived in time.
func (b *RedisBroker) Claim(ctx context.Context, topic string, wait time.Duration) (string, Message, error) {
	raw, err := b.rdb.BRPopLPush(ctx, b.queueKey(topic), b.processingKey(topic), wait).Result()
	if err != nil {
		return "", Message{}, err
	}
	// A failed lease write leaves the entry unleased; RequeueStale starts its clock.
	_ = b.rdb.ZAdd(ctx, b.leaseKey(topic), redis.Z{Score: b.score(b.now()), Member: raw}).Err()

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		// Undecodable entries can never succeed; park them.
		_ = b.deadLetter(ctx, topic, raw)
		return "", Message{}, fmt.Errorf("decode message: %w", err)
	}
	return raw, msg, nil
}

// Ack removes a processed entry from the processing list and drops its lease.
func (b *RedisBroker) Ack(ctx context.Context, topic, raw string) error {
	pipe := b.rdb.TxPipeline()
	pipe.LRem(ctx, b.processingKey(topic), 1, raw)
	pipe.ZRem(ctx, b.leaseKey(topic), raw)
	_, err := pipe.Exec(ctx)
	return err
}

// Retry removes the entry from processing and either requeues it with the next
// attempt number or moves it to the dead-letter list. It reports whether the
// message was dead-lettered.
func (b *RedisBroker) Retry(ctx context.Context, topic, raw string, msg Message) (bool, error) {
	if msg.Attempt >= b.maxDeliveries {
		return true, b.deadLetter(ctx, topic, raw)
	}

	msg.Attempt++
	next, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("encode message: %w", err)
	}

	pipe := b.rdb.TxPipeline()
	pipe.LRem(ctx, b.processingKey(topic), 1, raw)
	pipe.ZRem(ctx, b.leaseKey(topic), raw)
	pipe.LPush(ctx, b.queueKey(topic), next)
	_, err = pipe.Exec(ctx)
	return false, err
}

func (b *RedisBroker) deadLetter(ctx context.Context, topic, raw string) error {
	pipe := b.rdb.TxPipeline()
	pipe.LRem(ctx, b.processingKey(topic), 1, raw)
	pipe.ZRem(ctx, b.leaseKey(topic), raw)
	pipe.LPush(ctx, b.deadKey(topic), raw)
	_, err := pipe.Exec(ctx)
	return err
}

// RequeueStale examines up to max processing entries and moves those whose
// lease has expired back to the queue. An entry without a lease gets one
// stamped now and is reclaimed on a later pass.
func (b *RedisBroker) RequeueStale(ctx context.Context, topic string, max int64) (int64, error) {
	entries, err := b.rdb.LRange(ctx, b.processingKey(topic), 0, max-1).Result()
	if err != nil {
		return 0, err
	}

	now := b.now()
	cutoff := b.score(now.Add(-b.visibility))
	keys := []string{b.processingKey(topic), b.queueKey(topic), b.leaseKey(topic)}

	var moved int64
	for _, raw := range entries {
		claimedAt, err := b.rdb.ZScore(ctx, b.leaseKey(topic), raw).Result()
		if errors.Is(err, redis.Nil) {
			if err := touchLease.Run(ctx, b.rdb, []string{keys[0], keys[2]}, raw, b.score(now)).Err(); err != nil && !errors.Is(err, redis.Nil) {
				return moved, err
			}
			continue
		}
		if err != nil {
			return moved, err
		}
		if claimedAt > cutoff {
			continue
		}

		n, err := requeueExpired.Run(ctx, b.rdb, keys, raw).Int64()
		if err != nil {
			return moved, err
		}
		moved += n
	}
	return moved, nil
}

func (b *RedisBroker) score(t time.Time) float64 { return float64(t.UnixMilli()) }

// DeadLetters returns the number of dead-lettered messages for topic.
func (b *RedisBroker) DeadLetters(ctx context.Context, topic string) (int64, error) {
	return b.rdb.LLen(ctx, b.deadKey(topic)).Result()
}

// Pending returns the number of queued messages for topic.
func (b *RedisBroker) Pending(ctx context.Context, topic string) (int64, error) {
	return b.rdb.LLen(ctx, b.queueKey(topic)).Result()
}

var _ Publisher = (*RedisBroker)(nil)

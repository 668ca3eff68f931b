package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis pub/sub channel shared by all instances.
const DefaultChannel = "dispatch:realtime"

// RedisNotifier publishes notifications on a Redis channel so that every
// instance's Hub can deliver them to its own subscribers.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
}

func NewRedisNotifier(rdb *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{rdb: rdb, channel: channel}
}

func (r *RedisNotifier) NotifyTenant(ctx context.Context, tenantID uuid.UUID, event string, payload any) error {
	n, err := newNotification(TenantGroup(tenantID), tenantID, event, payload)
	if err != nil {
		return err
	}
	return r.send(ctx, n)
}

func (r *RedisNotifier) NotifyJob(ctx context.Context, jobID, tenantID uuid.UUID, event string, payload any) error {
	n, err := newNotification(JobGroup(jobID), tenantID, event, payload)
	if err != nil {
		return err
	}
	return r.send(ctx, n)
}

func (r *RedisNotifier) send(ctx context.Context, n Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, r.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish realtime %s: %w", n.Event, err)
	}
	return nil
}

var _ Notifier = (*RedisNotifier)(nil)

// Run subscribes to channel and delivers every notification to local
// subscribers until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, rdb *redis.Client, channel string) error {
	if channel == "" {
		channel = DefaultChannel
	}
	sub := rdb.Subscribe(ctx, channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed so nothing published after
	// Run starts is missed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	h.logger.Info("realtime fan-out subscribed", "channel", channel)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			var n Notification
			if err := json.Unmarshal([]byte(m.Payload), &n); err != nil {
				h.logger.Warn("undecodable realtime notification", "channel", channel, "error", err)
				continue
			}
			h.Deliver(n)
		}
	}
}

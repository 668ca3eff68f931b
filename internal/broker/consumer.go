package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/fielddispatch/internal/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	defaultWorkers   = 2
	defaultClaimWait = 2 * time.Second
	reapBatch        = 1000
)

// Consumer runs a worker pool per subscribed topic.
type Consumer struct {
	broker         *RedisBroker
	workers        int
	claimWait      time.Duration
	reaperInterval time.Duration
	logger         *slog.Logger

	mu       sync.Mutex
	handlers map[string]Handler
}

// ConsumerConfig tunes the worker pools.
type ConsumerConfig struct {
	WorkersPerTopic int
	ClaimWait       time.Duration
	// ReaperInterval controls how often stale processing entries are requeued.
	// Zero means only once at startup.
	ReaperInterval time.Duration
}

// NewConsumer creates a Consumer over b.
func NewConsumer(b *RedisBroker, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if cfg.WorkersPerTopic <= 0 {
		cfg.WorkersPerTopic = defaultWorkers
	}
	if cfg.ClaimWait <= 0 {
		cfg.ClaimWait = defaultClaimWait
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		broker:         b,
		workers:        cfg.WorkersPerTopic,
		claimWait:      cfg.ClaimWait,
		reaperInterval: cfg.ReaperInterval,
		logger:         logger,
		handlers:       map[string]Handler{},
	}
}

// Subscribe registers the handler for topic. One handler per topic; later calls replace earlier ones.
func (c *Consumer) Subscribe(topic string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = h
}

// Run starts all worker pools and blocks until ctx is cancelled and every worker has returned.
func (c *Consumer) Run(ctx context.Context) {
	c.mu.Lock()
	handlers := make(map[string]Handler, len(c.handlers))
	for t, h := range c.handlers {
		handlers[t] = h
	}
	c.mu.Unlock()

	c.reap(ctx, handlers)

	var wg sync.WaitGroup
	for topic, h := range handlers {
		for i := 0; i < c.workers; i++ {
			wg.Add(1)
			go func(topic string, h Handler, n int) {
				defer wg.Done()
				c.work(ctx, topic, h, n)
			}(topic, h, i+1)
		}
	}

	if c.reaperInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(c.reaperInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.reap(ctx, handlers)
				}
			}
		}()
	}

	c.logger.Info("event consumer started", "topics", len(handlers), "workers_per_topic", c.workers)
	wg.Wait()
	c.logger.Info("event consumer stopped")
}

func (c *Consumer) reap(ctx context.Context, handlers map[string]Handler) {
	for topic := range handlers {
		moved, err := c.broker.RequeueStale(ctx, topic, reapBatch)
		if err != nil {
			c.logger.Warn("requeue stale messages failed", "topic", topic, "error", err)
			continue
		}
		if moved > 0 {
			c.logger.Info("requeued stale messages", "topic", topic, "count", moved)
		}
	}
}

func (c *Consumer) work(ctx context.Context, topic string, h Handler, n int) {
	for {
		if ctx.Err() != nil {
			return
		}

		raw, msg, err := c.broker.Claim(ctx, topic, c.claimWait)
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			c.logger.Warn("claim message failed", "topic", topic, "worker", n, "error", err)
			sleepCtx(ctx, c.claimWait)
			continue
		}

		c.dispatch(ctx, topic, h, raw, msg)
	}
}

func (c *Consumer) dispatch(ctx context.Context, topic string, h Handler, raw string, msg Message) {
	start := time.Now()
	err := c.invoke(ctx, h, msg)
	metrics.EventHandleDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())

	// Acks and retries must land even while shutting down.
	bg := context.WithoutCancel(ctx)

	if err == nil {
		metrics.EventsConsumed.WithLabelValues(topic, "ok").Inc()
		if ackErr := c.broker.Ack(bg, topic, raw); ackErr != nil {
			c.logger.Warn("ack message failed", "topic", topic, "message_id", msg.ID, "error", ackErr)
		}
		return
	}

	dead, retryErr := c.broker.Retry(bg, topic, raw, msg)
	switch {
	case retryErr != nil:
		metrics.EventsConsumed.WithLabelValues(topic, "error").Inc()
		c.logger.Error("requeue message failed", "topic", topic, "message_id", msg.ID, "error", retryErr)
	case dead:
		metrics.EventsConsumed.WithLabelValues(topic, "dead_letter").Inc()
		c.logger.Error("message dead-lettered", "topic", topic, "message_id", msg.ID,
			"attempt", msg.Attempt, "error", err)
	default:
		metrics.EventsConsumed.WithLabelValues(topic, "retry").Inc()
		c.logger.Warn("message handler failed, will redeliver", "topic", topic, "message_id", msg.ID,
			"attempt", msg.Attempt, "error", err)
	}
}

// invoke converts a handler panic into an error so the message is redelivered.
func (c *Consumer) invoke(ctx context.Context, h Handler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errPanic{value: r}
		}
	}()
	return h(ctx, msg)
}

type errPanic struct{ value any }

func (e errPanic) Error() string { return fmt.Sprintf("handler panicked: %v", e.value) }

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

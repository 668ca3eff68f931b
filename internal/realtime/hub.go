package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/metrics"
)

const defaultBuffer = 16

// Subscriber receives notifications for the groups it joined. C is closed
// when the subscriber is removed from the hub.
type Subscriber struct {
	C        <-chan Notification
	ch       chan Notification
	groups   []string
	tenantID uuid.UUID
}

// Hub holds this instance's subscribers. It is also a Notifier that only
// reaches local subscribers, which is enough for a single instance.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*Subscriber]struct{}
	buffer int
	closed bool
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		groups: map[string]map[*Subscriber]struct{}{},
		buffer: defaultBuffer,
		logger: logger,
	}
}

// Subscribe joins the given groups on behalf of tenantID. Notifications for
// other tenants are never delivered, even on a matching group. After Close the
// returned subscriber's channel is already closed.
func (h *Hub) Subscribe(tenantID uuid.UUID, groups ...string) *Subscriber {
	ch := make(chan Notification, h.buffer)
	s := &Subscriber{C: ch, ch: ch, groups: groups, tenantID: tenantID}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return s
	}
	for _, g := range groups {
		if h.groups[g] == nil {
			h.groups[g] = map[*Subscriber]struct{}{}
		}
		h.groups[g][s] = struct{}{}
	}
	h.mu.Unlock()

	metrics.RealtimeSubscribers.Inc()
	return s
}

// Unsubscribe removes s and closes its channel. Calling it twice is a no-op.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := false
	for _, g := range s.groups {
		members := h.groups[g]
		if _, ok := members[s]; !ok {
			continue
		}
		removed = true
		delete(members, s)
		if len(members) == 0 {
			delete(h.groups, g)
		}
	}
	if removed {
		close(s.ch)
		metrics.RealtimeSubscribers.Dec()
	}
}

// Close removes every subscriber and closes its channel so open streams end.
// It is registered as an http.Server shutdown hook.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	subs := map[*Subscriber]struct{}{}
	for _, members := range h.groups {
		for s := range members {
			subs[s] = struct{}{}
		}
	}
	h.groups = map[string]map[*Subscriber]struct{}{}
	for s := range subs {
		close(s.ch)
		metrics.RealtimeSubscribers.Dec()
	}
	if len(subs) > 0 {
		h.logger.Info("realtime hub closed", "subscribers", len(subs))
	}
}

// Deliver hands n to every local subscriber of its group and returns how many
// received it. Subscribers with a full buffer miss the notification.
func (h *Hub) Deliver(n Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for s := range h.groups[n.Group] {
		if s.tenantID != n.TenantID {
			continue
		}
		select {
		case s.ch <- n:
			delivered++
		default:
			h.logger.Warn("realtime subscriber too slow, dropping notification",
				"group", n.Group,
				"event", n.Event,
			)
		}
	}
	return delivered
}

// Subscribers returns the number of local subscribers in group.
func (h *Hub) Subscribers(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

func (h *Hub) NotifyTenant(_ context.Context, tenantID uuid.UUID, event string, payload any) error {
	n, err := newNotification(TenantGroup(tenantID), tenantID, event, payload)
	if err != nil {
		return err
	}
	h.Deliver(n)
	return nil
}

func (h *Hub) NotifyJob(_ context.Context, jobID, tenantID uuid.UUID, event string, payload any) error {
	n, err := newNotification(JobGroup(jobID), tenantID, event, payload)
	if err != nil {
		return err
	}
	h.Deliver(n)
	return nil
}

var _ Notifier = (*Hub)(nil)

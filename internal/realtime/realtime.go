// Package realtime pushes named notifications to connected clients. Delivery
// is fire-and-forget: a slow or absent subscriber never blocks the caller.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventJobAssigned           = "JobAssigned"
	EventAIRecommendationReady = "AIRecommendationReady"
)

// Notifier fans named events out to subscriber groups.
type Notifier interface {
	NotifyTenant(ctx context.Context, tenantID uuid.UUID, event string, payload any) error
	NotifyJob(ctx context.Context, jobID, tenantID uuid.UUID, event string, payload any) error
}

// Notification is one pushed event as seen by subscribers and as carried over
// the Redis channel.
type Notification struct {
	Group    string          `json:"group"`
	TenantID uuid.UUID       `json:"tenant_id"`
	Event    string          `json:"event"`
	Payload  json.RawMessage `json:"payload"`
	SentAt   time.Time       `json:"sent_at"`
}

func TenantGroup(tenantID uuid.UUID) string { return "tenant:" + tenantID.String() }

func JobGroup(jobID uuid.UUID) string { return "job:" + jobID.String() }

func newNotification(group string, tenantID uuid.UUID, event string, payload any) (Notification, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Notification{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Notification{
		Group:    group,
		TenantID: tenantID,
		Event:    event,
		Payload:  raw,
		SentAt:   time.Now().UTC(),
	}, nil
}

// Package consumer binds the dispatch workflow to broker topics.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/audit"
	"github.com/kiranshivaraju/fielddispatch/internal/broker"
	"github.com/kiranshivaraju/fielddispatch/internal/events"
	"github.com/kiranshivaraju/fielddispatch/internal/realtime"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

// DefaultStatusTTL bounds how long a cached recommendation status is served.
const DefaultStatusTTL = 10 * time.Minute

// Triager moves freshly created jobs into review.
type Triager interface {
	TriageNewJob(ctx context.Context, evt events.JobCreated) error
}

// Fulfiller produces a recommendation for a request.
type Fulfiller interface {
	Fulfill(ctx context.Context, evt events.AIRecommendationRequested) (*models.AIRecommendation, error)
}

// StatusCache remembers the latest recommendation status per job.
type StatusCache interface {
	SetRecommendationStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error
}

// Subscriber is satisfied by *broker.Consumer.
type Subscriber interface {
	Subscribe(topic string, h broker.Handler)
}

// Handlers holds one handler per topic. Notifier and Cache are optional.
type Handlers struct {
	Triager   Triager
	Fulfiller Fulfiller
	Notifier  realtime.Notifier
	Audit     *audit.Recorder
	Cache     StatusCache
	Logger    *slog.Logger
	StatusTTL time.Duration
}

// Register subscribes every handler on s.
func (h *Handlers) Register(s Subscriber) {
	s.Subscribe(events.TopicJobCreated, h.JobCreated)
	s.Subscribe(events.TopicRecommendationRequested, h.RecommendationRequested)
	s.Subscribe(events.TopicJobAssigned, h.JobAssigned)
	s.Subscribe(events.TopicRecommendationGenerated, h.RecommendationGenerated)
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// JobCreated triages the new job and requests its first recommendation.
func (h *Handlers) JobCreated(ctx context.Context, msg broker.Message) error {
	evt, err := events.Decode[events.JobCreated](msg)
	if err != nil {
		return err
	}
	return h.Triager.TriageNewJob(ctx, evt)
}

// RecommendationRequested runs the provider for a pending recommendation. An
// error means the result was not saved and the request must be redelivered.
func (h *Handlers) RecommendationRequested(ctx context.Context, msg broker.Message) error {
	evt, err := events.Decode[events.AIRecommendationRequested](msg)
	if err != nil {
		return err
	}
	_, err = h.Fulfiller.Fulfill(ctx, evt)
	return err
}

// JobAssigned tells the tenant's dispatchers about the assignment and records it.
func (h *Handlers) JobAssigned(ctx context.Context, msg broker.Message) error {
	evt, err := events.Decode[events.JobAssigned](msg)
	if err != nil {
		return err
	}
	log := h.logger().With("job_id", evt.JobID, "vendor_id", evt.VendorID, "tenant_id", evt.TenantID)
	log.Info("broadcasting job assignment")

	h.notify(log, func(n realtime.Notifier) error {
		return n.NotifyTenant(ctx, evt.TenantID, realtime.EventJobAssigned, map[string]any{
			"job_id":      evt.JobID,
			"job_number":  evt.JobNumber,
			"vendor_id":   evt.VendorID,
			"vendor_name": evt.VendorName,
			"assigned_by": evt.AssignedBy,
			"assigned_at": evt.AssignedAt,
		})
	})

	if h.Audit != nil {
		h.Audit.Record(ctx, models.Actor{TenantID: evt.TenantID, UserID: evt.AssignedBy},
			audit.EntityJob, evt.JobID, audit.ActionAssigned, nil, map[string]any{
				"assignment_id": evt.AssignmentID,
				"vendor_id":     evt.VendorID,
				"vendor_name":   evt.VendorName,
			})
	}
	return nil
}

// RecommendationGenerated tells clients watching the job that a result is
// ready, records the outcome and refreshes the cached status.
func (h *Handlers) RecommendationGenerated(ctx context.Context, msg broker.Message) error {
	evt, err := events.Decode[events.AIRecommendationGenerated](msg)
	if err != nil {
		return err
	}
	log := h.logger().With("job_id", evt.JobID, "recommendation_id", evt.RecommendationID, "tenant_id", evt.TenantID)
	success := evt.Status == models.RecommendationCompleted
	log.Info("broadcasting AI recommendation ready", "status", evt.Status)

	h.notify(log, func(n realtime.Notifier) error {
		return n.NotifyJob(ctx, evt.JobID, evt.TenantID, realtime.EventAIRecommendationReady, map[string]any{
			"job_id":            evt.JobID,
			"recommendation_id": evt.RecommendationID,
			"success":           success,
			"status":            evt.Status,
			"completed_at":      evt.CompletedAt,
		})
	})

	if h.Audit != nil {
		action := audit.ActionGenerated
		if !success {
			action = audit.ActionFailed
		}
		h.Audit.Record(ctx, models.SystemActor(evt.TenantID), audit.EntityRecommendation, evt.RecommendationID, action,
			nil, map[string]any{
				"success":                success,
				"provider":               evt.Provider,
				"recommended_vendor_ids": evt.RecommendedVendorIDs,
			})
	}

	if h.Cache != nil {
		ttl := h.StatusTTL
		if ttl <= 0 {
			ttl = DefaultStatusTTL
		}
		if err := h.Cache.SetRecommendationStatus(ctx, evt.JobID, string(evt.Status), ttl); err != nil {
			log.Warn("recommendation status cache write failed", "error", err)
		}
	}
	return nil
}

// notify pushes through the notifier, if any. Push failures never fail the message.
func (h *Handlers) notify(log *slog.Logger, push func(realtime.Notifier) error) {
	if h.Notifier == nil {
		return
	}
	if err := push(h.Notifier); err != nil {
		log.Warn("realtime push failed", "error", err)
	}
}

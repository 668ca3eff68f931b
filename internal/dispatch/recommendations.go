package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/audit"
	"github.com/kiranshivaraju/fielddispatch/internal/events"
	"github.com/kiranshivaraju/fielddispatch/internal/store"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

// RequestRecommendation creates a pending recommendation and asks the
// fulfillment consumer to process it. When the request cannot be published the
// recommendation is failed immediately so no pending record is left behind.
// The recommendation is returned in either case.
func (s *Service) RequestRecommendation(ctx context.Context, actor models.Actor, jobID uuid.UUID) (*models.AIRecommendation, error) {
	job, err := s.store.GetJob(ctx, jobID, actor.TenantID)
	if err != nil {
		return nil, notFoundAs(err, "Job")
	}

	rec := s.newPendingRecommendation(actor, job)
	if err := s.store.CreateRecommendation(ctx, rec); err != nil {
		return nil, fmt.Errorf("create recommendation: %w", err)
	}

	s.dispatchRequest(ctx, job, rec)
	return rec, nil
}

func (s *Service) newPendingRecommendation(actor models.Actor, job *models.Job) *models.AIRecommendation {
	now := s.now()
	return &models.AIRecommendation{
		ID:                   uuid.New(),
		TenantID:             actor.TenantID,
		JobID:                job.ID,
		Status:               models.RecommendationPending,
		RequestedBy:          actor.UserID,
		RequestedAt:          now,
		RecommendedVendorIDs: []uuid.UUID{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// dispatchRequest publishes the request event and applies the failed fallback.
func (s *Service) dispatchRequest(ctx context.Context, job *models.Job, rec *models.AIRecommendation) {
	out := s.publish(ctx, events.AIRecommendationRequested{
		TenantID:         rec.TenantID,
		JobID:            job.ID,
		RecommendationID: rec.ID,
		Title:            job.Title,
		Description:      job.Description,
		ServiceType:      job.ServiceType,
		ServiceAddress:   job.ServiceAddress,
		RequestedBy:      rec.RequestedBy,
		RequestedAt:      rec.RequestedAt,
	}, s.requestPublishTimeout)
	if out.Published() {
		return
	}

	rec.Fail(fmt.Sprintf("AI recommendation could not be queued: %v", out.Err), s.now())
	// The request context may be what timed out; the fallback write must still land.
	if err := s.store.CompleteRecommendation(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Error("failed to mark recommendation failed after publish error",
			"recommendation_id", rec.ID,
			"job_id", rec.JobID,
			"error", err,
		)
		return
	}
	s.audit.Record(ctx, models.Actor{TenantID: rec.TenantID, UserID: rec.RequestedBy},
		audit.EntityRecommendation, rec.ID, audit.ActionFailed, nil,
		map[string]any{"job_id": rec.JobID, "error": *rec.ErrorMessage})
}

// ListRecommendations returns the job's recommendation history, newest first.
func (s *Service) ListRecommendations(ctx context.Context, actor models.Actor, jobID uuid.UUID) ([]*models.AIRecommendation, error) {
	if _, err := s.store.GetJob(ctx, jobID, actor.TenantID); err != nil {
		return nil, notFoundAs(err, "Job")
	}
	return s.store.ListRecommendationsByJob(ctx, jobID, actor.TenantID)
}

// LatestRecommendation returns the most recent recommendation for the job.
func (s *Service) LatestRecommendation(ctx context.Context, actor models.Actor, jobID uuid.UUID) (*models.AIRecommendation, error) {
	recs, err := s.ListRecommendations(ctx, actor, jobID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, notFound("Recommendation")
	}
	return recs[0], nil
}

// GetRecommendation returns one recommendation by id.
func (s *Service) GetRecommendation(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.AIRecommendation, error) {
	rec, err := s.store.GetRecommendation(ctx, id, actor.TenantID)
	if err != nil {
		return nil, notFoundAs(err, "Recommendation")
	}
	return rec, nil
}

// TriageNewJob handles a freshly created job: it moves the job from New to
// InReview and requests a recommendation for it. A job that has already left
// New is a duplicate delivery and is ignored. A job that never becomes visible
// within the lookup budget is abandoned.
func (s *Service) TriageNewJob(ctx context.Context, evt events.JobCreated) error {
	actor := models.SystemActor(evt.TenantID)

	_, err := retryLookup(ctx, s.lookupAttempts, s.lookupDelay, func() (*models.Job, error) {
		return s.store.GetJob(ctx, evt.JobID, evt.TenantID)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("job not visible, abandoning triage", "job_id", evt.JobID, "tenant_id", evt.TenantID)
			return nil
		}
		return err
	}

	var (
		job     *models.Job
		rec     *models.AIRecommendation
		skipped bool
	)
	err = s.inTx(ctx, func(tx store.Store) error {
		var err error
		job, err = tx.GetJob(ctx, evt.JobID, evt.TenantID)
		if err != nil {
			return err
		}
		skipped = job.Status != models.JobStatusNew
		if skipped {
			return nil
		}
		job.SetStatus(models.JobStatusInReview, s.now())
		if err := tx.UpdateJob(ctx, job); err != nil {
			return err
		}
		rec = s.newPendingRecommendation(actor, job)
		return tx.CreateRecommendation(ctx, rec)
	})
	if err != nil {
		return fmt.Errorf("triage job %s: %w", evt.JobID, err)
	}
	if skipped {
		s.logger.Info("job already triaged", "job_id", evt.JobID, "status", job.Status)
		return nil
	}

	s.audit.Record(ctx, actor, audit.EntityJob, job.ID, audit.ActionStatusChanged,
		map[string]any{"status": models.JobStatusNew}, map[string]any{"status": job.Status})

	s.dispatchRequest(ctx, job, rec)
	return nil
}

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/fielddispatch/internal/events"
	"github.com/kiranshivaraju/fielddispatch/internal/metrics"
	"github.com/kiranshivaraju/fielddispatch/internal/store"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

// DefaultMaxCandidates is the number of available vendors offered to the AI provider.
const DefaultMaxCandidates = 20

// Fulfiller runs the asynchronous half of the recommendation workflow.
type Fulfiller struct {
	store     store.Store
	provider  models.AIProvider
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time

	publishTimeout time.Duration
	lookupAttempts int
	lookupDelay    time.Duration
	maxCandidates  int
}

func NewFulfiller(st store.Store, provider models.AIProvider, pub events.Publisher, logger *slog.Logger, opts ...Option) *Fulfiller {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fulfiller{
		store:          st,
		provider:       provider,
		publisher:      pub,
		logger:         logger,
		now:            cfg.now,
		publishTimeout: cfg.publishTimeout,
		lookupAttempts: cfg.lookupAttempts,
		lookupDelay:    cfg.lookupDelay,
		maxCandidates:  cfg.maxCandidates,
	}
}

// Fulfill processes one recommendation request. It returns an error only when
// the result could not be persisted, so the broker redelivers the request.
// Requests whose recommendation never becomes visible, or is already terminal,
// are dropped.
func (f *Fulfiller) Fulfill(ctx context.Context, evt events.AIRecommendationRequested) (*models.AIRecommendation, error) {
	log := f.logger.With("recommendation_id", evt.RecommendationID, "job_id", evt.JobID, "tenant_id", evt.TenantID)

	rec, err := retryLookup(ctx, f.lookupAttempts, f.lookupDelay, func() (*models.AIRecommendation, error) {
		return f.store.GetRecommendation(ctx, evt.RecommendationID, evt.TenantID)
	})
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("recommendation not visible after lookup retries, abandoning", "attempts", f.lookupAttempts)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load recommendation: %w", err)
	}
	if rec.Status.Terminal() {
		log.Info("recommendation already terminal, skipping redelivery", "status", rec.Status)
		return nil, nil
	}

	req, err := f.buildRequest(ctx, evt, log)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := f.provider.Recommend(ctx, req)
	metrics.AIRecommendationLatency.WithLabelValues(f.provider.Name()).Observe(time.Since(start).Seconds())

	rec.ApplyResult(result, f.now())
	summary := fmt.Sprintf("Job: %s, Type: %s, Vendors evaluated: %d", req.Title, req.ServiceType, len(req.Candidates))
	rec.PromptSummary = &summary

	if err := f.store.CompleteRecommendation(ctx, rec); err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Info("recommendation completed by another delivery")
			return nil, nil
		}
		return nil, fmt.Errorf("persist recommendation result: %w", err)
	}
	metrics.AIRecommendations.WithLabelValues(f.provider.Name(), string(rec.Status)).Inc()

	if rec.Status == models.RecommendationFailed {
		log.Warn("AI recommendation failed", "provider", rec.Provider, "error", deref(rec.ErrorMessage))
	} else {
		log.Info("AI recommendation completed",
			"provider", rec.Provider,
			"recommended", len(rec.RecommendedVendorIDs),
			"latency_ms", deref(rec.LatencyMs),
		)
	}

	out := events.PublishBestEffort(ctx, f.publisher, events.AIRecommendationGenerated{
		TenantID:             rec.TenantID,
		JobID:                rec.JobID,
		RecommendationID:     rec.ID,
		Status:               rec.Status,
		RecommendedVendorIDs: rec.RecommendedVendorIDs,
		Provider:             rec.Provider,
		ErrorMessage:         deref(rec.ErrorMessage),
		CompletedAt:          *rec.CompletedAt,
	}, f.publishTimeout)
	if !out.Published() {
		log.Warn("completion event publish failed; result saved", "error", out.Err)
	}

	return rec, nil
}

// buildRequest loads the job and candidate vendors. Missing job rows fall back
// to the fields carried on the event.
func (f *Fulfiller) buildRequest(ctx context.Context, evt events.AIRecommendationRequested, log *slog.Logger) (models.RecommendationRequest, error) {
	req := models.RecommendationRequest{
		JobID:          evt.JobID,
		TenantID:       evt.TenantID,
		Title:          evt.Title,
		Description:    evt.Description,
		ServiceType:    evt.ServiceType,
		ServiceAddress: evt.ServiceAddress,
	}

	job, err := f.store.GetJob(ctx, evt.JobID, evt.TenantID)
	switch {
	case err == nil:
		req.Title = job.Title
		req.Description = job.Description
		req.ServiceType = job.ServiceType
		req.ServiceAddress = job.ServiceAddress
	case errors.Is(err, store.ErrNotFound):
		log.Info("job not visible yet, using event fields")
	default:
		return req, fmt.Errorf("load job: %w", err)
	}

	vendors, err := f.store.ListAvailableVendors(ctx, evt.TenantID, f.maxCandidates)
	if err != nil {
		return req, fmt.Errorf("load candidate vendors: %w", err)
	}
	req.Candidates = make([]models.VendorCandidate, 0, len(vendors))
	for _, v := range vendors {
		req.Candidates = append(req.Candidates, models.CandidateFromVendor(v))
	}
	return req, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Package dispatch implements job triage, vendor assignment and the AI
// recommendation workflow. Every operation takes an explicit models.Actor;
// nothing here reads tenant or user from ambient state.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/fielddispatch/internal/audit"
	"github.com/kiranshivaraju/fielddispatch/internal/events"
	"github.com/kiranshivaraju/fielddispatch/internal/metrics"
	"github.com/kiranshivaraju/fielddispatch/internal/store"
)

const (
	DefaultRequestPublishTimeout = 8 * time.Second
	DefaultPublishTimeout        = 10 * time.Second
	DefaultConflictRetries       = 3
	DefaultLookupAttempts        = 5
	DefaultLookupDelay           = 500 * time.Millisecond
)

// Service runs the synchronous commands of the dispatch workflow.
type Service struct {
	store     store.Store
	publisher events.Publisher
	audit     *audit.Recorder
	logger    *slog.Logger
	now       func() time.Time

	requestPublishTimeout time.Duration
	publishTimeout        time.Duration
	conflictRetries       int
	lookupAttempts        int
	lookupDelay           time.Duration
}

// Option configures a Service or Fulfiller.
type Option func(*settings)

type settings struct {
	now                   func() time.Time
	requestPublishTimeout time.Duration
	publishTimeout        time.Duration
	conflictRetries       int
	lookupAttempts        int
	lookupDelay           time.Duration
	maxCandidates         int
}

func defaultSettings() settings {
	return settings{
		now:                   func() time.Time { return time.Now().UTC() },
		requestPublishTimeout: DefaultRequestPublishTimeout,
		publishTimeout:        DefaultPublishTimeout,
		conflictRetries:       DefaultConflictRetries,
		lookupAttempts:        DefaultLookupAttempts,
		lookupDelay:           DefaultLookupDelay,
		maxCandidates:         DefaultMaxCandidates,
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithPublishTimeouts sets the recommendation-request timeout and the timeout for all other events.
func WithPublishTimeouts(request, other time.Duration) Option {
	return func(s *settings) {
		if request > 0 {
			s.requestPublishTimeout = request
		}
		if other > 0 {
			s.publishTimeout = other
		}
	}
}

// WithConflictRetries sets how many times a transaction is attempted after a concurrent modification.
func WithConflictRetries(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.conflictRetries = n
		}
	}
}

// WithLookupRetry sets the bounded retry used when an event references a row that may not be visible yet.
func WithLookupRetry(attempts int, delay time.Duration) Option {
	return func(s *settings) {
		if attempts > 0 {
			s.lookupAttempts = attempts
		}
		if delay >= 0 {
			s.lookupDelay = delay
		}
	}
}

// WithMaxCandidates caps the number of vendors sent to the AI provider.
func WithMaxCandidates(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxCandidates = n
		}
	}
}

func NewService(st store.Store, pub events.Publisher, rec *audit.Recorder, logger *slog.Logger, opts ...Option) *Service {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = audit.NewRecorder(st, logger)
	}
	return &Service{
		store:                 st,
		publisher:             pub,
		audit:                 rec,
		logger:                logger,
		now:                   cfg.now,
		requestPublishTimeout: cfg.requestPublishTimeout,
		publishTimeout:        cfg.publishTimeout,
		conflictRetries:       cfg.conflictRetries,
		lookupAttempts:        cfg.lookupAttempts,
		lookupDelay:           cfg.lookupDelay,
	}
}

// inTx runs fn in a transaction and repeats it when a versioned write lost a race.
func (s *Service) inTx(ctx context.Context, fn func(tx store.Store) error) error {
	for attempt := 1; attempt <= s.conflictRetries; attempt++ {
		err := s.store.WithTx(ctx, fn)
		if !errors.Is(err, store.ErrConflict) && !errors.Is(err, store.ErrDuplicateKey) {
			return err
		}
		metrics.AssignmentConflicts.Inc()
		s.logger.Info("concurrent modification, retrying transaction", "attempt", attempt, "error", err)
	}
	return conflict("The record was modified concurrently; please retry")
}

// publish sends evt best-effort and logs a failure. Persisted state is never rolled back.
func (s *Service) publish(ctx context.Context, evt events.Event, timeout time.Duration) events.Outcome {
	out := events.PublishBestEffort(ctx, s.publisher, evt, timeout)
	if !out.Published() {
		s.logger.Warn("event publish failed",
			"topic", out.Topic,
			"elapsed_ms", out.Elapsed.Milliseconds(),
			"error", out.Err,
		)
	}
	return out
}

// retryLookup calls get until it returns something other than store.ErrNotFound
// or attempts run out, pausing delay between attempts.
func retryLookup[T any](ctx context.Context, attempts int, delay time.Duration, get func() (T, error)) (T, error) {
	var (
		v   T
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err = get()
		if !errors.Is(err, store.ErrNotFound) {
			return v, err
		}
		if attempt == attempts {
			break
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return v, fmt.Errorf("lookup cancelled: %w", ctx.Err())
		case <-t.C:
		}
	}
	return v, err
}

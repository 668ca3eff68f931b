package ai

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/kiranshivaraju/fielddispatch/internal/ai/prompt"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

// Guard wraps a provider so callers never see a panic or an out-of-list
// vendor id. A positive timeout bounds the whole call.
func Guard(p models.AIProvider, timeout time.Duration, logger *slog.Logger) models.AIProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &guarded{inner: p, timeout: timeout, logger: logger}
}

type guarded struct {
	inner   models.AIProvider
	timeout time.Duration
	logger  *slog.Logger
}

func (g *guarded) Name() string { return g.inner.Name() }

func (g *guarded) Recommend(ctx context.Context, req models.RecommendationRequest) (res models.RecommendationResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("AI provider panicked",
				"provider", g.inner.Name(),
				"job_id", req.JobID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			res = models.RecommendationResult{
				Provider:     g.inner.Name(),
				LatencyMs:    int(time.Since(start).Milliseconds()),
				ErrorMessage: fmt.Sprintf("AI provider failed unexpectedly: %v", r),
			}
		}
	}()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	res = g.inner.Recommend(ctx, req)
	if res.Provider == "" {
		res.Provider = g.inner.Name()
	}
	if res.LatencyMs <= 0 {
		res.LatencyMs = int(time.Since(start).Milliseconds())
	}
	if !res.Success {
		res.RecommendedVendorIDs = nil
		return res
	}
	res.RecommendedVendorIDs = prompt.FilterIDs(res.RecommendedVendorIDs, req.Candidates)
	return res
}

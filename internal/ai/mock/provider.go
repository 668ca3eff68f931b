package mock

import (
	"context"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/ai"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

// MockProvider satisfies models.AIProvider for testing.
type MockProvider struct {
	Name_         string
	RecommendFunc func(ctx context.Context, req models.RecommendationRequest) models.RecommendationResult
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Recommend(ctx context.Context, req models.RecommendationRequest) models.RecommendationResult {
	if m.RecommendFunc != nil {
		return m.RecommendFunc(ctx, req)
	}
	return models.RecommendationResult{}
}

// NewMockProvider returns a MockProvider that recommends the first candidate.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		RecommendFunc: func(_ context.Context, req models.RecommendationRequest) models.RecommendationResult {
			ids := []uuid.UUID{}
			if len(req.Candidates) > 0 {
				ids = append(ids, req.Candidates[0].VendorID)
			}
			return models.RecommendationResult{
				Success:              true,
				RecommendedVendorIDs: ids,
				Reasoning:            "Simulated reasoning from mock provider",
				JobSummary:           "Mock job summary for testing",
				Provider:             "mock",
				ModelVersion:         "mock-v1",
				LatencyMs:            5,
			}
		},
	}
}

// NewFixedProvider returns a MockProvider that always recommends ids, whether
// or not they are among the candidates.
func NewFixedProvider(ids ...uuid.UUID) *MockProvider {
	return &MockProvider{
		Name_: "mock-fixed",
		RecommendFunc: func(_ context.Context, _ models.RecommendationRequest) models.RecommendationResult {
			return models.RecommendationResult{
				Success:              true,
				RecommendedVendorIDs: append([]uuid.UUID(nil), ids...),
				Provider:             "mock-fixed",
				ModelVersion:         "mock-v1",
				LatencyMs:            5,
			}
		},
	}
}

// NewFailingProvider returns a MockProvider whose results always carry err.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		RecommendFunc: func(_ context.Context, _ models.RecommendationRequest) models.RecommendationResult {
			msg := "mock failure"
			if err != nil {
				msg = err.Error()
			}
			return models.RecommendationResult{Provider: "mock-failing", ErrorMessage: msg}
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		RecommendFunc: func(ctx context.Context, _ models.RecommendationRequest) models.RecommendationResult {
			<-ctx.Done()
			return models.RecommendationResult{Provider: "mock-timeout", ErrorMessage: ai.ErrInferenceTimeout.Error()}
		},
	}
}

// NewPanickingProvider returns a MockProvider that panics on every call.
func NewPanickingProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-panicking",
		RecommendFunc: func(_ context.Context, _ models.RecommendationRequest) models.RecommendationResult {
			panic("mock provider exploded")
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)

package mock_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/ai"
	"github.com/kiranshivaraju/fielddispatch/internal/ai/mock"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() models.RecommendationRequest {
	return models.RecommendationRequest{
		JobID:       uuid.New(),
		TenantID:    uuid.New(),
		Title:       "Replace water heater",
		ServiceType: "plumbing",
		Candidates: []models.VendorCandidate{
			{VendorID: uuid.New(), Name: "A", AvailableSlots: 2},
			{VendorID: uuid.New(), Name: "B", AvailableSlots: 1},
		},
	}
}

// --- NewMockProvider ---

func TestNewMockProvider_Name(t *testing.T) {
	p := mock.NewMockProvider()
	assert.Equal(t, "mock", p.Name())
}

func TestNewMockProvider_Recommend(t *testing.T) {
	req := sampleRequest()
	res := mock.NewMockProvider().Recommend(context.Background(), req)

	assert.True(t, res.Success)
	assert.Equal(t, "mock", res.Provider)
	assert.Equal(t, "mock-v1", res.ModelVersion)
	assert.Equal(t, []uuid.UUID{req.Candidates[0].VendorID}, res.RecommendedVendorIDs)
	assert.NotEmpty(t, res.Reasoning)
}

// --- NewFailingProvider ---

func TestNewFailingProvider_Recommend(t *testing.T) {
	res := mock.NewFailingProvider(ai.ErrProviderUnavailable).Recommend(context.Background(), sampleRequest())

	assert.False(t, res.Success)
	assert.Equal(t, ai.ErrProviderUnavailable.Error(), res.ErrorMessage)
}

// --- NewTimeoutProvider ---

func TestNewTimeoutProvider_Recommend(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := mock.NewTimeoutProvider().Recommend(ctx, sampleRequest())
	assert.False(t, res.Success)
	assert.Equal(t, ai.ErrInferenceTimeout.Error(), res.ErrorMessage)
}

// --- Guard ---

func TestGuard_RecoversPanic(t *testing.T) {
	g := ai.Guard(mock.NewPanickingProvider(), 0, nil)

	var res models.RecommendationResult
	require.NotPanics(t, func() {
		res = g.Recommend(context.Background(), sampleRequest())
	})
	assert.False(t, res.Success)
	assert.Equal(t, "mock-panicking", res.Provider)
	assert.Contains(t, res.ErrorMessage, "mock provider exploded")
}

func TestGuard_DropsUnknownVendorIDs(t *testing.T) {
	req := sampleRequest()
	unknown := uuid.New()
	g := ai.Guard(mock.NewFixedProvider(req.Candidates[1].VendorID, unknown), 0, nil)

	res := g.Recommend(context.Background(), req)
	assert.True(t, res.Success)
	assert.Equal(t, []uuid.UUID{req.Candidates[1].VendorID}, res.RecommendedVendorIDs)
}

func TestGuard_AppliesTimeout(t *testing.T) {
	g := ai.Guard(mock.NewTimeoutProvider(), 30*time.Millisecond, nil)

	start := time.Now()
	res := g.Recommend(context.Background(), sampleRequest())
	assert.False(t, res.Success)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGuard_FailureClearsVendorIDs(t *testing.T) {
	p := &mock.MockProvider{
		Name_: "half-broken",
		RecommendFunc: func(_ context.Context, req models.RecommendationRequest) models.RecommendationResult {
			return models.RecommendationResult{RecommendedVendorIDs: []uuid.UUID{req.Candidates[0].VendorID}, ErrorMessage: "boom"}
		},
	}
	res := ai.Guard(p, 0, nil).Recommend(context.Background(), sampleRequest())

	assert.False(t, res.Success)
	assert.Nil(t, res.RecommendedVendorIDs)
	assert.Equal(t, "half-broken", res.Provider)
	assert.GreaterOrEqual(t, res.LatencyMs, 0)
}

// --- Zero-value MockProvider ---

func TestMockProvider_NilFuncs(t *testing.T) {
	p := &mock.MockProvider{Name_: "bare"}
	assert.Equal(t, models.RecommendationResult{}, p.Recommend(context.Background(), sampleRequest()))
}

// --- Interface compliance ---

func TestMockProvider_ImplementsAIProvider(t *testing.T) {
	var _ models.AIProvider = mock.NewMockProvider()
	var _ models.AIProvider = mock.NewFailingProvider(nil)
	var _ models.AIProvider = mock.NewTimeoutProvider()
	var _ models.AIProvider = mock.NewPanickingProvider()
}

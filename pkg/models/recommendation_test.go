package models_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAIRecommendation_ApplyResult_Success(t *testing.T) {
	now := time.Now().UTC()
	vendorID := uuid.New()
	r := &models.AIRecommendation{Status: models.RecommendationPending}

	r.ApplyResult(models.RecommendationResult{
		Success:              true,
		RecommendedVendorIDs: []uuid.UUID{vendorID},
		Reasoning:            "closest match",
		JobSummary:           "fix sink",
		Provider:             "gemini",
		ModelVersion:         "gemini-2.0-flash",
		LatencyMs:            420,
	}, now)

	assert.Equal(t, models.RecommendationCompleted, r.Status)
	assert.True(t, r.Status.Terminal())
	assert.Equal(t, []uuid.UUID{vendorID}, r.RecommendedVendorIDs)
	require.NotNil(t, r.Reasoning)
	assert.Equal(t, "closest match", *r.Reasoning)
	require.NotNil(t, r.LatencyMs)
	assert.Equal(t, 420, *r.LatencyMs)
	assert.Nil(t, r.ErrorMessage)
	assert.Equal(t, &now, r.CompletedAt)
}

func TestAIRecommendation_ApplyResult_Failure(t *testing.T) {
	now := time.Now().UTC()
	r := &models.AIRecommendation{Status: models.RecommendationPending}

	r.ApplyResult(models.RecommendationResult{
		Success:      false,
		Provider:     "openai",
		ErrorMessage: "rate limited",
	}, now)

	assert.Equal(t, models.RecommendationFailed, r.Status)
	require.NotNil(t, r.ErrorMessage)
	assert.Equal(t, "rate limited", *r.ErrorMessage)
	assert.Empty(t, r.RecommendedVendorIDs)
}

func TestRecommendationStatus_Terminal(t *testing.T) {
	assert.False(t, models.RecommendationPending.Terminal())
	assert.True(t, models.RecommendationFailed.Terminal())
}

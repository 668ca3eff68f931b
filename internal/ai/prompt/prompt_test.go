package prompt_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/ai/prompt"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidates(n int) []models.VendorCandidate {
	out := make([]models.VendorCandidate, n)
	for i := range out {
		out[i] = models.VendorCandidate{
			VendorID:       uuid.New(),
			Name:           fmt.Sprintf("Vendor %d", i+1),
			AvailableSlots: 3,
		}
	}
	return out
}

func TestBuild_RendersJobAndVendorLines(t *testing.T) {
	rating := 4.3
	c := models.VendorCandidate{
		VendorID:        uuid.MustParse("0b7c6a2e-4d3f-4b8e-9a43-2f5f0f1b9c11"),
		Name:            "Acme Plumbing",
		ServiceArea:     "North",
		Specializations: []string{"plumbing", "hvac"},
		Rating:          &rating,
		AvailableSlots:  2,
	}
	bare := models.VendorCandidate{VendorID: uuid.New(), Name: "Bare Co", AvailableSlots: 1}

	p := prompt.Build(models.RecommendationRequest{
		Title:          "Leaking pipe",
		Description:    "Kitchen sink leaks",
		ServiceType:    "plumbing",
		ServiceAddress: "1 Main St",
		Candidates:     []models.VendorCandidate{c, bare},
	})

	assert.Contains(t, p, "- Title: Leaking pipe")
	assert.Contains(t, p, "- Location: 1 Main St")
	assert.Contains(t, p, "- ID: 0b7c6a2e-4d3f-4b8e-9a43-2f5f0f1b9c11, Name: Acme Plumbing, Area: North, Skills: plumbing, hvac, Rating: 4.3, Available slots: 2")
	assert.Contains(t, p, "Name: Bare Co, Area: Any, Skills: General, Rating: N/A, Available slots: 1")
	assert.Contains(t, p, "recommendedVendorIds")
}

func TestParse_DropsUnknownIDs(t *testing.T) {
	cands := candidates(2)
	unknown := uuid.New()
	text := fmt.Sprintf("Here you go:\n```json\n{\"jobSummary\":\"Fix pipe\",\"recommendedVendorIds\":[%q,%q],\"reasoning\":\"closest\"}\n```",
		cands[0].VendorID, unknown)

	reply, err := prompt.Parse(text, cands)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{cands[0].VendorID}, reply.RecommendedVendorIDs)
	assert.Equal(t, "Fix pipe", reply.JobSummary)
	assert.Equal(t, "closest", reply.Reasoning)
}

func TestParse_IgnoresMalformedIDs(t *testing.T) {
	cands := candidates(1)
	text := fmt.Sprintf(`{"recommendedVendorIds":["not-a-uuid",%q]}`, cands[0].VendorID)

	reply, err := prompt.Parse(text, cands)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{cands[0].VendorID}, reply.RecommendedVendorIDs)
}

func TestParse_NoJSON(t *testing.T) {
	_, err := prompt.Parse("I cannot help with that.", candidates(1))
	assert.Error(t, err)
}

func TestParse_MissingIDsGivesEmptyList(t *testing.T) {
	reply, err := prompt.Parse(`{"jobSummary":"nothing fits"}`, candidates(2))
	require.NoError(t, err)
	assert.NotNil(t, reply.RecommendedVendorIDs)
	assert.Empty(t, reply.RecommendedVendorIDs)
}

func TestFilterIDs_CapsAndDeduplicates(t *testing.T) {
	cands := candidates(5)
	ids := []uuid.UUID{cands[0].VendorID, cands[0].VendorID, cands[1].VendorID, cands[2].VendorID, cands[3].VendorID}

	got := prompt.FilterIDs(ids, cands)
	assert.Equal(t, []uuid.UUID{cands[0].VendorID, cands[1].VendorID, cands[2].VendorID}, got)
}

func TestRun_SuccessAndFailure(t *testing.T) {
	cands := candidates(1)
	req := models.RecommendationRequest{Title: "t", Candidates: cands}

	ok := prompt.Run(context.Background(), req, "openai", "gpt-4o-mini", func(_ context.Context, p string) (string, error) {
		assert.Contains(t, p, cands[0].VendorID.String())
		return fmt.Sprintf(`{"recommendedVendorIds":[%q],"reasoning":"r","jobSummary":"s"}`, cands[0].VendorID), nil
	})
	assert.True(t, ok.Success)
	assert.Equal(t, "openai", ok.Provider)
	assert.Equal(t, "gpt-4o-mini", ok.ModelVersion)
	assert.Equal(t, []uuid.UUID{cands[0].VendorID}, ok.RecommendedVendorIDs)

	failed := prompt.Run(context.Background(), req, "openai", "gpt-4o-mini", func(context.Context, string) (string, error) {
		return "", errors.New("connection refused")
	})
	assert.False(t, failed.Success)
	assert.Contains(t, failed.ErrorMessage, "connection refused")

	garbled := prompt.Run(context.Background(), req, "openai", "gpt-4o-mini", func(context.Context, string) (string, error) {
		return "no json here", nil
	})
	assert.False(t, garbled.Success)
	assert.Contains(t, garbled.ErrorMessage, "Failed to parse AI response")
}

package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/ai/ollama"
	"github.com/kiranshivaraju/fielddispatch/internal/config"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommend_PostsToChatEndpoint(t *testing.T) {
	vendorID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3", body["model"])
		assert.Equal(t, false, body["stream"])
		assert.Equal(t, "json", body["format"])

		content := `{"recommendedVendorIds":["` + vendorID.String() + `"],"jobSummary":"roof leak"}`
		reply, _ := json.Marshal(map[string]any{"message": map[string]any{"role": "assistant", "content": content}})
		_, _ = w.Write(reply)
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama3"})
	res := p.Recommend(context.Background(), models.RecommendationRequest{
		Candidates: []models.VendorCandidate{{VendorID: vendorID, Name: "Roofers"}},
	})

	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, "ollama", res.Provider)
	assert.Equal(t, "roof leak", res.JobSummary)
	assert.Equal(t, []uuid.UUID{vendorID}, res.RecommendedVendorIDs)
}

func TestRecommend_ServerDownFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: url, Model: "llama3"})
	res := p.Recommend(context.Background(), models.RecommendationRequest{})

	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "unavailable")
}

package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/fielddispatch/internal/ai/httpjson"
	"github.com/kiranshivaraju/fielddispatch/internal/ai/openai"
	"github.com/kiranshivaraju/fielddispatch/internal/ai/prompt"
	"github.com/kiranshivaraju/fielddispatch/internal/config"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

const requestTimeout = 30 * time.Second

// Provider implements models.AIProvider using Ollama's chat API.
type Provider struct {
	cfg    config.OllamaConfig
	client *http.Client
}

func NewProvider(cfg config.OllamaConfig) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{cfg: cfg, client: &http.Client{Timeout: requestTimeout}}
}

func (p *Provider) Name() string { return "ollama" }

func (p *Provider) Recommend(ctx context.Context, req models.RecommendationRequest) models.RecommendationResult {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return prompt.Run(ctx, req, p.Name(), p.cfg.Model, p.complete)
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []openai.Message `json:"messages"`
	Stream   bool             `json:"stream"`
	Format   string           `json:"format"`
	Options  map[string]any   `json:"options,omitempty"`
}

type chatResponse struct {
	Message openai.Message `json:"message"`
}

func (p *Provider) complete(ctx context.Context, text string) (string, error) {
	var resp chatResponse
	err := httpjson.Post(ctx, p.client, p.cfg.BaseURL+"/api/chat", nil, chatRequest{
		Model:    p.cfg.Model,
		Messages: openai.Messages(text),
		Format:   "json",
		Options:  map[string]any{"temperature": 0.3},
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

var _ models.AIProvider = (*Provider)(nil)

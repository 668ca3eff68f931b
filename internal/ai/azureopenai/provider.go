package azureopenai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/fielddispatch/internal/ai/openai"
	"github.com/kiranshivaraju/fielddispatch/internal/ai/prompt"
	"github.com/kiranshivaraju/fielddispatch/internal/config"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

const (
	APIVersion        = "2025-01-01-preview"
	DefaultDeployment = "gpt-4o"

	requestTimeout = 30 * time.Second
)

// Provider implements models.AIProvider using an Azure OpenAI chat deployment.
type Provider struct {
	cfg    config.AzureOpenAIConfig
	client *http.Client
}

func NewProvider(cfg config.AzureOpenAIConfig) *Provider {
	if cfg.Deployment == "" {
		cfg.Deployment = DefaultDeployment
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &Provider{cfg: cfg, client: &http.Client{Timeout: requestTimeout}}
}

func (p *Provider) Name() string { return "azureopenai" }

func (p *Provider) Recommend(ctx context.Context, req models.RecommendationRequest) models.RecommendationResult {
	if p.cfg.Endpoint == "" || p.cfg.APIKey == "" {
		return models.RecommendationResult{
			Provider:     p.Name(),
			ModelVersion: p.cfg.Deployment,
			ErrorMessage: "Azure OpenAI endpoint or API key not configured",
		}
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return prompt.Run(ctx, req, p.Name(), p.cfg.Deployment, p.complete)
}

func (p *Provider) complete(ctx context.Context, text string) (string, error) {
	endpoint := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		p.cfg.Endpoint, url.PathEscape(p.cfg.Deployment), APIVersion)
	header := http.Header{}
	header.Set("api-key", p.cfg.APIKey)
	return openai.ChatCompletion(ctx, p.client, endpoint, header, openai.ChatRequest{
		Messages:            openai.Messages(text),
		MaxCompletionTokens: 1024,
	})
}

var _ models.AIProvider = (*Provider)(nil)

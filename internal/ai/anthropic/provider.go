package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/fielddispatch/internal/ai/httpjson"
	"github.com/kiranshivaraju/fielddispatch/internal/ai/prompt"
	"github.com/kiranshivaraju/fielddispatch/internal/config"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = "claude-3-5-haiku-latest"
	APIVersion     = "2023-06-01"

	requestTimeout = 30 * time.Second
	maxTokens      = 1024
)

// Provider implements models.AIProvider using the Anthropic Messages API.
type Provider struct {
	cfg    config.AnthropicConfig
	client *http.Client
}

func NewProvider(cfg config.AnthropicConfig) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{cfg: cfg, client: &http.Client{Timeout: requestTimeout}}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Recommend(ctx context.Context, req models.RecommendationRequest) models.RecommendationResult {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return prompt.Run(ctx, req, p.Name(), p.cfg.Model, p.complete)
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p *Provider) complete(ctx context.Context, text string) (string, error) {
	header := http.Header{}
	header.Set("x-api-key", p.cfg.APIKey)
	header.Set("anthropic-version", APIVersion)

	var resp messagesResponse
	err := httpjson.Post(ctx, p.client, p.cfg.BaseURL+"/v1/messages", header, messagesRequest{
		Model:       p.cfg.Model,
		System:      prompt.SystemMessage,
		Messages:    []message{{Role: "user", Content: text}},
		MaxTokens:   maxTokens,
		Temperature: 0.3,
	}, &resp)
	if err != nil {
		return "", err
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%w: no text block in response", httpjson.ErrInvalidResponse)
}

var _ models.AIProvider = (*Provider)(nil)

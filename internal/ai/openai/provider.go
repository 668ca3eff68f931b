package openai

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
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"

	requestTimeout = 30 * time.Second
)

// Provider implements models.AIProvider against any OpenAI-compatible
// chat completions endpoint.
type Provider struct {
	name    string
	cfg     config.OpenAIConfig
	client  *http.Client
	timeout time.Duration
}

type Option func(*Provider)

// WithName overrides the provider name reported in results and metrics.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

func NewProvider(cfg config.OpenAIConfig, opts ...Option) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	p := &Provider{
		name:    "openai",
		cfg:     cfg,
		client:  &http.Client{Timeout: requestTimeout},
		timeout: requestTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Recommend(ctx context.Context, req models.RecommendationRequest) models.RecommendationResult {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return prompt.Run(ctx, req, p.name, p.cfg.Model, p.complete)
}

func (p *Provider) complete(ctx context.Context, text string) (string, error) {
	header := http.Header{}
	if p.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	temp := 0.3
	return ChatCompletion(ctx, p.client, p.cfg.BaseURL+"/chat/completions", header, ChatRequest{
		Model:       p.cfg.Model,
		Messages:    Messages(text),
		Temperature: &temp,
		MaxTokens:   1024,
	})
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the chat completions request body. Azure deployments take
// MaxCompletionTokens and no model; the zero fields are omitted.
type ChatRequest struct {
	Model               string    `json:"model,omitempty"`
	Messages            []Message `json:"messages"`
	Temperature         *float64  `json:"temperature,omitempty"`
	MaxTokens           int       `json:"max_tokens,omitempty"`
	MaxCompletionTokens int       `json:"max_completion_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Messages returns the system and user messages for a prompt.
func Messages(userPrompt string) []Message {
	return []Message{
		{Role: "system", Content: prompt.SystemMessage},
		{Role: "user", Content: userPrompt},
	}
}

// ChatCompletion posts body to url and returns the first choice's content.
func ChatCompletion(ctx context.Context, client *http.Client, url string, header http.Header, body ChatRequest) (string, error) {
	var resp chatResponse
	if err := httpjson.Post(ctx, client, url, header, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", httpjson.ErrInvalidResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

var _ models.AIProvider = (*Provider)(nil)

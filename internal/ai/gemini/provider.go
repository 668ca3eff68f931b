package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/ai/httpjson"
	"github.com/kiranshivaraju/fielddispatch/internal/ai/prompt"
	"github.com/kiranshivaraju/fielddispatch/internal/config"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"
	DefaultModel   = "gemini-2.0-flash"

	// Single attempt; quota and auth errors should fail fast.
	requestTimeout = 20 * time.Second

	placeholderKey = "YOUR_GEMINI_API_KEY_HERE"
	mockName       = "gemini-mock"
	mockCandidates = 2
)

// Provider implements models.AIProvider using the Gemini generateContent API.
// Without an API key it answers deterministically from the candidate list.
type Provider struct {
	cfg     config.GeminiConfig
	baseURL string
	client  *http.Client
}

type Option func(*Provider)

// WithBaseURL points the provider at a different API root.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

func NewProvider(cfg config.GeminiConfig, opts ...Option) *Provider {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	p := &Provider{
		cfg:     cfg,
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string {
	if p.MockMode() {
		return mockName
	}
	return "gemini"
}

// MockMode reports whether no usable API key is configured.
func (p *Provider) MockMode() bool {
	return p.cfg.APIKey == "" || p.cfg.APIKey == placeholderKey
}

func (p *Provider) Recommend(ctx context.Context, req models.RecommendationRequest) models.RecommendationResult {
	if p.MockMode() {
		return p.mockResult(req)
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return prompt.Run(ctx, req, p.Name(), p.cfg.Model, p.complete)
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (p *Provider) complete(ctx context.Context, text string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s", p.baseURL, url.PathEscape(p.cfg.Model), url.QueryEscape(p.cfg.APIKey))
	body := generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt.SystemMessage + "\n\n" + text}}}},
		GenerationConfig: generationConfig{Temperature: 0.3, MaxOutputTokens: 1024},
	}

	var resp generateResponse
	if err := httpjson.Post(ctx, p.client, endpoint, nil, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no candidates in response", httpjson.ErrInvalidResponse)
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func (p *Provider) mockResult(req models.RecommendationRequest) models.RecommendationResult {
	ids := make([]uuid.UUID, 0, mockCandidates)
	for _, c := range req.Candidates {
		if len(ids) == mockCandidates {
			break
		}
		ids = append(ids, c.VendorID)
	}
	return models.RecommendationResult{
		Success:              true,
		RecommendedVendorIDs: ids,
		Reasoning: fmt.Sprintf("[MOCK] Based on the %s service requirement, these vendors have matching specializations and available capacity.",
			req.ServiceType),
		JobSummary:   fmt.Sprintf("[MOCK] Job requires %s services at %s. %s", req.ServiceType, req.ServiceAddress, req.Description),
		Provider:     mockName,
		ModelVersion: p.cfg.Model,
		LatencyMs:    100,
	}
}

var _ models.AIProvider = (*Provider)(nil)

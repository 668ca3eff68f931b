package vllm

import (
	"strings"

	"github.com/kiranshivaraju/fielddispatch/internal/ai/openai"
	"github.com/kiranshivaraju/fielddispatch/internal/config"
)

// NewProvider returns a provider for a vLLM server's OpenAI-compatible API.
func NewProvider(cfg config.VLLMConfig) *openai.Provider {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return openai.NewProvider(config.OpenAIConfig{BaseURL: base, Model: cfg.Model}, openai.WithName("vllm"))
}

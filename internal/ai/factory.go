package ai

import (
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/fielddispatch/internal/ai/anthropic"
	"github.com/kiranshivaraju/fielddispatch/internal/ai/azureopenai"
	"github.com/kiranshivaraju/fielddispatch/internal/ai/gemini"
	"github.com/kiranshivaraju/fielddispatch/internal/ai/ollama"
	"github.com/kiranshivaraju/fielddispatch/internal/ai/openai"
	"github.com/kiranshivaraju/fielddispatch/internal/ai/vllm"
	"github.com/kiranshivaraju/fielddispatch/internal/config"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

// NewProvider constructs the configured AI provider wrapped in Guard.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.AIProvider, error) {
	var p models.AIProvider
	switch cfg.Provider {
	case "gemini":
		p = gemini.NewProvider(cfg.Gemini)
	case "azureopenai":
		p = azureopenai.NewProvider(cfg.AzureOpenAI)
	case "openai":
		p = openai.NewProvider(cfg.OpenAI)
	case "anthropic":
		p = anthropic.NewProvider(cfg.Anthropic)
	case "ollama":
		p = ollama.NewProvider(cfg.Ollama)
	case "vllm":
		p = vllm.NewProvider(cfg.VLLM)
	case "mock":
		p = gemini.NewProvider(config.GeminiConfig{Model: cfg.Gemini.Model})
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of gemini, azureopenai, openai, anthropic, ollama, vllm, mock", cfg.Provider)
	}
	return Guard(p, cfg.InferenceTimeout, slog.Default()), nil
}

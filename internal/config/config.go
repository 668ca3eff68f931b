package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the dispatch server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	AI        AIConfig
	Events    EventsConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type RateLimitConfig struct {
	PerMinute int
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	Gemini           GeminiConfig
	AzureOpenAI      AzureOpenAIConfig
	OpenAI           OpenAIConfig
	Anthropic        AnthropicConfig
	Ollama           OllamaConfig
	VLLM             VLLMConfig
}

// GeminiConfig with an empty or placeholder APIKey selects the deterministic mock mode.
type GeminiConfig struct {
	APIKey string
	Model  string
}

type AzureOpenAIConfig struct {
	Endpoint   string
	APIKey     string
	Deployment string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

// EventsConfig tunes the broker, consumers and best-effort publishing.
type EventsConfig struct {
	WorkersPerTopic       int
	MaxDeliveries         int
	RequestPublishTimeout time.Duration
	PublishTimeout        time.Duration
	ReaperInterval        time.Duration
	VisibilityTimeout     time.Duration
	LookupAttempts        int
	LookupDelay           time.Duration
}

var validProviders = map[string]bool{
	"gemini":      true,
	"azureopenai": true,
	"openai":      true,
	"anthropic":   true,
	"ollama":      true,
	"vllm":        true,
	"mock":        true,
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is loaded first; variables already set win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("DISPATCH_PORT", 8080),
			Env:  envString("DISPATCH_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		RateLimit: RateLimitConfig{
			PerMinute: envInt("RATE_LIMIT_PER_MINUTE", 100),
		},
		AI: AIConfig{
			Provider:         os.Getenv("AI_PROVIDER"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 30*time.Second),
			Gemini: GeminiConfig{
				APIKey: os.Getenv("GEMINI_API_KEY"),
				Model:  envString("GEMINI_MODEL", "gemini-2.0-flash"),
			},
			AzureOpenAI: AzureOpenAIConfig{
				Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
				APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
				Deployment: envString("AZURE_OPENAI_DEPLOYMENT", "gpt-4o-mini"),
			},
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			},
			Anthropic: AnthropicConfig{
				APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
				Model:   envString("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
				BaseURL: envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			},
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000"),
				Model:   envString("VLLM_MODEL", ""),
			},
		},
		Events: EventsConfig{
			WorkersPerTopic:       envInt("EVENTS_WORKERS_PER_TOPIC", 2),
			MaxDeliveries:         envInt("EVENTS_MAX_DELIVERIES", 5),
			RequestPublishTimeout: envDuration("EVENTS_REQUEST_PUBLISH_TIMEOUT", 8*time.Second),
			PublishTimeout:        envDuration("EVENTS_PUBLISH_TIMEOUT", 10*time.Second),
			ReaperInterval:        envDuration("EVENTS_REAPER_INTERVAL", time.Minute),
			VisibilityTimeout:     envDuration("EVENTS_VISIBILITY_TIMEOUT", 2*time.Minute),
			LookupAttempts:        envInt("EVENTS_LOOKUP_ATTEMPTS", 5),
			LookupDelay:           envDuration("EVENTS_LOOKUP_DELAY", 500*time.Millisecond),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of gemini, azureopenai, openai, anthropic, ollama, vllm, mock; got %q", c.AI.Provider)
	}

	switch c.AI.Provider {
	case "azureopenai":
		if c.AI.AzureOpenAI.Endpoint == "" || c.AI.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_API_KEY are required when AI_PROVIDER is azureopenai")
		}
	case "openai":
		if c.AI.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
		}
	case "anthropic":
		if c.AI.Anthropic.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
		}
	case "vllm":
		if c.AI.VLLM.Model == "" {
			return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
		}
	}

	if c.Events.WorkersPerTopic < 1 {
		return fmt.Errorf("EVENTS_WORKERS_PER_TOPIC must be at least 1, got %d", c.Events.WorkersPerTopic)
	}
	if c.Events.MaxDeliveries < 1 {
		return fmt.Errorf("EVENTS_MAX_DELIVERIES must be at least 1, got %d", c.Events.MaxDeliveries)
	}

	if c.Events.VisibilityTimeout <= c.AI.InferenceTimeout+c.Events.PublishTimeout {
		return fmt.Errorf("EVENTS_VISIBILITY_TIMEOUT (%s) must exceed the AI inference timeout plus the publish timeout (%s)",
			c.Events.VisibilityTimeout, c.AI.InferenceTimeout+c.Events.PublishTimeout)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

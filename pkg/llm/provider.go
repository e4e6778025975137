// Package llm wraps the remote language-model services used by the pipeline:
// text embeddings, cluster naming and image description.
package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ProviderConfig represents the configuration for a model provider.
type ProviderConfig struct {
	Provider       string // "openai" (any OpenAI-compatible API, e.g. OpenRouter) or "ollama"
	BaseURL        string
	APIKey         string
	EmbeddingModel string
	LabelModel     string
	VisionModel    string
	MaxTokens      int
	Temperature    float64
}

// Provider bundles the embedding and chat models of one backend.
type Provider struct {
	config ProviderConfig
	embed  embedModel
	chat   llms.Model
}

type embedModel interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// NewProvider creates a Provider with the given configuration.
func NewProvider(config ProviderConfig) (*Provider, error) {
	if config.MaxTokens <= 0 {
		config.MaxTokens = 20
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.VisionModel == "" {
		config.VisionModel = config.LabelModel
	}

	switch config.Provider {
	case "", "openai":
		return newOpenAIProvider(config)
	case "ollama":
		return newOllamaProvider(config)
	default:
		return nil, fmt.Errorf("unsupported provider %q", config.Provider)
	}
}

func newOpenAIProvider(config ProviderConfig) (*Provider, error) {
	if config.BaseURL == "" {
		config.BaseURL = "https://openrouter.ai/api/v1"
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = "qwen/qwen3-embedding-8b"
	}
	if config.LabelModel == "" {
		config.LabelModel = "google/gemini-3-flash-preview"
	}

	client, err := openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.LabelModel),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &Provider{config: config, embed: client, chat: client}, nil
}

func newOllamaProvider(config ProviderConfig) (*Provider, error) {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = "nomic-embed-text:latest"
	}
	if config.LabelModel == "" {
		config.LabelModel = "mistral"
	}

	emb, err := ollama.New(ollama.WithModel(config.EmbeddingModel),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	chat, err := ollama.New(ollama.WithModel(config.LabelModel),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &Provider{config: config, embed: emb, chat: chat}, nil
}

// Config returns the effective configuration after defaults were applied.
func (p *Provider) Config() ProviderConfig {
	return p.config
}

package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"agentic-rag/internal/config"
)

// ErrEmptyResponse is returned when the model answers with no choices.
var ErrEmptyResponse = errors.New("language model returned no choices")

// ChatModel is the part of llms.Model the answer pipeline needs.
type ChatModel interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// NewChatModel creates the language model client for cfg. A missing key is
// reported here so the process fails at startup rather than on first use.
func NewChatModel(ctx context.Context, cfg *config.LLMConfig) (llms.Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Debug().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("Creating chat model")

	switch cfg.Provider {
	case config.ProviderGoogleAI:
		return googleai.New(ctx,
			googleai.WithAPIKey(cfg.Key),
			googleai.WithDefaultModel(cfg.Model),
		)
	case config.ProviderOpenAI:
		return openai.New(openaiOptions(cfg, openai.WithModel(cfg.Model))...)
	case config.ProviderOllama:
		return ollama.New(ollamaOptions(cfg)...)
	}
	return nil, fmt.Errorf("unknown llm provider: %q", cfg.Provider)
}

// NewEmbeddingClient creates the client used to compute embeddings.
func NewEmbeddingClient(ctx context.Context, cfg *config.LLMConfig) (embeddings.EmbedderClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Debug().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("Creating embedding client")

	switch cfg.Provider {
	case config.ProviderGoogleAI:
		return googleai.New(ctx,
			googleai.WithAPIKey(cfg.Key),
			googleai.WithDefaultEmbeddingModel(cfg.Model),
		)
	case config.ProviderOpenAI:
		return openai.New(openaiOptions(cfg, openai.WithEmbeddingModel(cfg.Model))...)
	case config.ProviderOllama:
		return ollama.New(ollamaOptions(cfg)...)
	}
	return nil, fmt.Errorf("unknown llm provider: %q", cfg.Provider)
}

func openaiOptions(cfg *config.LLMConfig, extra ...openai.Option) []openai.Option {
	opts := []openai.Option{openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer "))}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	} else {
		opts = append(opts, openai.WithBaseURL("https://openrouter.ai/api/v1"))
	}
	return append(opts, extra...)
}

func ollamaOptions(cfg *config.LLMConfig) []ollama.Option {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	return opts
}

// GenerateContent sends a system instruction and a single human message
// and returns the text of the first choice.
func GenerateContent(ctx context.Context, model ChatModel, systemPrompt, question string, temperature float64) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, question),
	}

	res, err := model.GenerateContent(ctx, messages, llms.WithTemperature(temperature))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if res == nil || len(res.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return res.Choices[0].Content, nil
}

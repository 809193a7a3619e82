// Package llm wraps an OpenAI-compatible API for chat completion and text
// embedding. Any endpoint speaking the OpenAI wire format works: OpenAI
// itself, DeepSeek, SiliconFlow, or a local gateway.
package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AutoSenseAI/autosense/pkg/fn"
	"github.com/AutoSenseAI/autosense/pkg/resilience"
)

// Config holds the provider configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	EmbedModel string
	MaxRetries int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "https://api.openai.com/v1",
		ChatModel:  "gpt-4o-mini",
		EmbedModel: "text-embedding-3-small",
		MaxRetries: 3,
	}
}

// Provider implements both chat completion and embedding against one client.
// A circuit breaker sits outside the retry loop, so an endpoint that keeps
// failing gets rejected fast instead of burning retry budgets.
type Provider struct {
	client  *openai.Client
	cfg     Config
	retry   fn.RetryOpts
	breaker *resilience.Breaker
}

// New creates a Provider from cfg, filling unset fields with defaults.
func New(cfg Config) *Provider {
	def := DefaultConfig()
	if cfg.ChatModel == "" {
		cfg.ChatModel = def.ChatModel
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = def.EmbedModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	retry := fn.DefaultRetry
	retry.MaxAttempts = cfg.MaxRetries

	return &Provider{
		client:  openai.NewClientWithConfig(clientConfig),
		cfg:     cfg,
		retry:   retry,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
}

// Complete runs one chat completion with a system and a user message.
func (p *Provider) Complete(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error) {
	return resilience.CallValue(p.breaker, ctx, func(ctx context.Context) (string, error) {
		return p.complete(ctx, system, user, maxTokens, temperature)
	})
}

func (p *Provider) complete(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error) {
	return fn.Retry(ctx, p.retry, func(ctx context.Context) (string, error) {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       p.cfg.ChatModel,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
		})
		if err != nil {
			return "", fmt.Errorf("llm: chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("llm: empty completion response")
		}
		return resp.Choices[0].Message.Content, nil
	})
}

// Embed generates the embedding vector for one text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embedding vectors for texts, aligned by index.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("llm: no texts to embed")
	}
	return resilience.CallValue(p.breaker, ctx, func(ctx context.Context) ([][]float32, error) {
		return p.embedBatch(ctx, texts)
	})
}

func (p *Provider) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return fn.Retry(ctx, p.retry, func(ctx context.Context) ([][]float32, error) {
		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(p.cfg.EmbedModel),
		})
		if err != nil {
			return nil, fmt.Errorf("llm: create embeddings: %w", err)
		}
		if len(resp.Data) != len(texts) {
			return nil, fmt.Errorf("llm: got %d embeddings for %d texts", len(resp.Data), len(texts))
		}
		vecs := make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			vecs[i] = d.Embedding
		}
		return vecs, nil
	})
}

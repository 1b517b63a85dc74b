package provider

import (
	"context"
	"errors"

	"github.com/brandlens/visibility/internal/config"
	"github.com/brandlens/visibility/pkg/perplexity"
)

type perplexityAdapter struct {
	client    perplexity.Client
	models    []string
	maxTokens int
}

// NewPerplexity builds an adapter over the Perplexity chat-completions
// client.
func NewPerplexity(cfg config.ProviderConfig, defaults config.ProviderDefaults) Adapter {
	var opts []perplexity.Option
	if cfg.BaseURL != "" {
		opts = append(opts, perplexity.WithBaseURL(cfg.BaseURL))
	}
	return &perplexityAdapter{
		client:    perplexity.NewClient(cfg.Key, opts...),
		models:    cfg.Models,
		maxTokens: defaults.MaxOutputToken,
	}
}

// NewPerplexityWithClient injects a pre-built client, for tests.
func NewPerplexityWithClient(client perplexity.Client, models []string, maxTokens int) Adapter {
	return &perplexityAdapter{client: client, models: models, maxTokens: maxTokens}
}

func (a *perplexityAdapter) Name() string     { return "perplexity" }
func (a *perplexityAdapter) Models() []string { return a.models }

func (a *perplexityAdapter) Call(ctx context.Context, model, prompt string) (*Answer, error) {
	temperature := 0.7
	resp, err := a.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: model,
		Messages: []perplexity.Message{
			{Role: "system", Content: answerSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: &temperature,
		MaxTokens:   &a.maxTokens,
	})
	if err != nil {
		var apiErr *perplexity.APIError
		if errors.As(err, &apiErr) {
			return nil, NewError(a.Name(), model, apiErr.StatusCode, err)
		}
		return nil, &Error{Provider: a.Name(), Model: model, Code: CodeNetwork, Err: err}
	}

	return &Answer{
		Text:      resp.Text(),
		Model:     model,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}, nil
}

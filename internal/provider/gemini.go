package provider

import (
	"context"
	"errors"

	"github.com/brandlens/visibility/internal/config"
	"github.com/brandlens/visibility/pkg/gemini"
)

type geminiAdapter struct {
	client    gemini.Client
	models    []string
	maxTokens int
}

// NewGemini builds an adapter over the Gemini generateContent client.
func NewGemini(cfg config.ProviderConfig, defaults config.ProviderDefaults) Adapter {
	var opts []gemini.Option
	if cfg.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
	}
	return &geminiAdapter{
		client:    gemini.NewClient(cfg.Key, opts...),
		models:    cfg.Models,
		maxTokens: defaults.MaxOutputToken,
	}
}

// NewGeminiWithClient injects a pre-built client, for tests.
func NewGeminiWithClient(client gemini.Client, models []string, maxTokens int) Adapter {
	return &geminiAdapter{client: client, models: models, maxTokens: maxTokens}
}

func (a *geminiAdapter) Name() string     { return "gemini" }
func (a *geminiAdapter) Models() []string { return a.models }

func (a *geminiAdapter) Call(ctx context.Context, model, prompt string) (*Answer, error) {
	temperature := 0.7
	resp, err := a.client.GenerateContent(ctx, gemini.GenerateContentRequest{
		Model: model,
		SystemInstruction: &gemini.Content{
			Parts: []gemini.Part{{Text: answerSystemPrompt}},
		},
		Contents: []gemini.Content{
			{Role: "user", Parts: []gemini.Part{{Text: prompt}}},
		},
		GenerationConfig: &gemini.GenerationConfig{
			Temperature:     &temperature,
			MaxOutputTokens: &a.maxTokens,
		},
	})
	if err != nil {
		var apiErr *gemini.APIError
		if errors.As(err, &apiErr) {
			return nil, NewError(a.Name(), model, apiErr.StatusCode, err)
		}
		return nil, &Error{Provider: a.Name(), Model: model, Code: CodeNetwork, Err: err}
	}

	answer := &Answer{Text: resp.Text(), Model: model}
	if resp.UsageMetadata != nil {
		answer.TokensIn = resp.UsageMetadata.PromptTokenCount
		answer.TokensOut = resp.UsageMetadata.CandidatesTokenCount
	}
	return answer, nil
}

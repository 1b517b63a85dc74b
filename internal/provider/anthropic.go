package provider

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/brandlens/visibility/internal/config"
)

type anthropicAdapter struct {
	client    sdk.Client
	models    []string
	maxTokens int
}

// NewAnthropic builds an adapter over the official anthropic-sdk-go.
func NewAnthropic(cfg config.ProviderConfig, defaults config.ProviderDefaults) Adapter {
	opts := []option.RequestOption{option.WithAPIKey(cfg.Key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicAdapter{
		client:    sdk.NewClient(opts...),
		models:    cfg.Models,
		maxTokens: defaults.MaxOutputToken,
	}
}

func (a *anthropicAdapter) Name() string     { return "anthropic" }
func (a *anthropicAdapter) Models() []string { return a.models }

func (a *anthropicAdapter) Call(ctx context.Context, model, prompt string) (*Answer, error) {
	msg, err := a.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(a.maxTokens),
		System: []sdk.TextBlockParam{
			{Text: answerSystemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
		Temperature: sdk.Float(0.7),
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return nil, NewError(a.Name(), model, apiErr.StatusCode, err)
		}
		return nil, &Error{Provider: a.Name(), Model: model, Code: CodeNetwork, Err: err}
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Answer{
		Text:      text.String(),
		Model:     model,
		TokensIn:  int(msg.Usage.InputTokens),
		TokensOut: int(msg.Usage.OutputTokens),
	}, nil
}

package provider

import (
	"context"
	"errors"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/brandlens/visibility/internal/config"
)

// answerSystemPrompt instructs every provider to close its answer with the
// machine-readable brands object the extractor looks for.
const answerSystemPrompt = `You are a knowledgeable assistant answering product and vendor questions. ` +
	`Answer the question naturally and completely. After your answer, on its own line, ` +
	`append a JSON object listing every brand, company, or product name you mentioned, ` +
	`in the form {"brands": ["Name1", "Name2"]}. Include the object even when no brands were mentioned.`

// brandedAnswer is the structured-output shape requested from OpenAI models.
type brandedAnswer struct {
	Answer string   `json:"answer" jsonschema_description:"The complete natural-language answer"`
	Brands []string `json:"brands" jsonschema_description:"Every brand, company, or product name mentioned in the answer"`
}

var brandedAnswerSchema = generateSchema[brandedAnswer]()

func generateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

type openAIAdapter struct {
	client    *openai.Client
	models    []string
	maxTokens int
}

// NewOpenAI builds an adapter over the official openai-go SDK with
// structured output enforcing the brands object.
func NewOpenAI(cfg config.ProviderConfig, defaults config.ProviderDefaults) Adapter {
	opts := []option.RequestOption{option.WithAPIKey(cfg.Key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &openAIAdapter{
		client:    &client,
		models:    cfg.Models,
		maxTokens: defaults.MaxOutputToken,
	}
}

func (a *openAIAdapter) Name() string     { return "openai" }
func (a *openAIAdapter) Models() []string { return a.models }

func (a *openAIAdapter) Call(ctx context.Context, model, prompt string) (*Answer, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "branded_answer",
		Description: openai.String("Answer with the brands it mentions"),
		Schema:      brandedAnswerSchema,
		Strict:      openai.Bool(true),
	}

	response, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(answerSystemPrompt),
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
		},
		Temperature: openai.Float(0.7),
		MaxTokens:   openai.Int(int64(a.maxTokens)),
	})
	if err != nil {
		return nil, a.classify(model, err)
	}
	if len(response.Choices) == 0 {
		return &Answer{Model: model}, nil
	}

	return &Answer{
		Text:      response.Choices[0].Message.Content,
		Model:     model,
		TokensIn:  int(response.Usage.PromptTokens),
		TokensOut: int(response.Usage.CompletionTokens),
	}, nil
}

// classify maps SDK errors to classified provider errors using the embedded
// HTTP status when available.
func (a *openAIAdapter) classify(model string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return NewError(a.Name(), model, apiErr.StatusCode, err)
	}
	return &Error{Provider: a.Name(), Model: model, Code: CodeNetwork, Err: err}
}

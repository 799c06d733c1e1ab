package providers

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/groksrc/trident/pkg/models"
)

// OpenAIProvider completes prompts against the OpenAI Chat Completions API.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates a provider for the given API key.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey)}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// Complete implements Provider. JSON output uses the json_object response
// format; the schema contract is appended to the prompt.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string, cfg CompletionConfig) (*CompletionResult, error) {
	req := openai.ChatCompletionRequest{
		Model: cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if cfg.Temperature != nil {
		req.Temperature = float32(*cfg.Temperature)
	}
	if cfg.MaxTokens != nil {
		req.MaxTokens = *cfg.MaxTokens
	}
	if cfg.OutputFormat == models.OutputFormatJSON {
		req.Messages[0].Content += schemaPromptSuffix(cfg.OutputSchema)
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, &models.ProviderError{
			Provider:  p.Name(),
			Message:   err.Error(),
			Retryable: isRetryableStatus(err),
			Cause:     err,
		}
	}
	if len(resp.Choices) == 0 {
		return nil, &models.ProviderError{Provider: p.Name(), Message: "no completion choices returned"}
	}

	return &CompletionResult{
		Content:      resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

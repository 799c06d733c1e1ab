package providers

import (
	"context"
	"fmt"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/groksrc/trident/pkg/models"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicProvider completes prompts against the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropicsdk.Client
}

// NewAnthropicProvider creates a provider authenticated from
// ANTHROPIC_API_KEY.
func NewAnthropicProvider() *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropicsdk.NewClient(option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY"))),
	}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete implements Provider. JSON output is requested by appending the
// field contract to the prompt; no native structured-output channel is used.
func (p *AnthropicProvider) Complete(ctx context.Context, prompt string, cfg CompletionConfig) (*CompletionResult, error) {
	if cfg.OutputFormat == models.OutputFormatJSON {
		prompt += schemaPromptSuffix(cfg.OutputSchema)
	}

	maxTokens := anthropicDefaultMaxTokens
	if cfg.MaxTokens != nil {
		maxTokens = *cfg.MaxTokens
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(cfg.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(prompt)),
		},
	}
	if cfg.Temperature != nil {
		params.Temperature = anthropicsdk.Float(*cfg.Temperature)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, &models.ProviderError{
			Provider:  p.Name(),
			Message:   err.Error(),
			Retryable: isRetryableStatus(err),
			Cause:     err,
		}
	}

	var content string
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			if content != "" {
				content += "\n"
			}
			content += text.Text
		}
	}

	if content == "" {
		return nil, &models.ProviderError{
			Provider: p.Name(),
			Message:  fmt.Sprintf("empty completion for model %s", cfg.Model),
		}
	}

	return &CompletionResult{
		Content:      content,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}

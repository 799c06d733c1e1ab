package providers

import (
	"context"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/groksrc/trident/pkg/models"
)

// GeminiProvider completes prompts against the Google Gemini API.
type GeminiProvider struct {
	apiKey string
}

// NewGeminiProvider creates a provider for the given API key.
func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{apiKey: apiKey}
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return "gemini" }

// Complete implements Provider.
func (p *GeminiProvider) Complete(ctx context.Context, prompt string, cfg CompletionConfig) (*CompletionResult, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, &models.ProviderError{Provider: p.Name(), Message: err.Error(), Cause: err}
	}
	defer client.Close()

	model := client.GenerativeModel(cfg.Model)
	if cfg.Temperature != nil {
		model.SetTemperature(float32(*cfg.Temperature))
	}
	if cfg.MaxTokens != nil {
		model.SetMaxOutputTokens(int32(*cfg.MaxTokens))
	}
	if cfg.OutputFormat == models.OutputFormatJSON {
		prompt += schemaPromptSuffix(cfg.OutputSchema)
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, &models.ProviderError{
			Provider:  p.Name(),
			Message:   err.Error(),
			Retryable: isRetryableStatus(err),
			Cause:     err,
		}
	}

	var content string
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				content += string(text)
			}
		}
		break
	}
	if content == "" {
		return nil, &models.ProviderError{Provider: p.Name(), Message: "empty completion returned"}
	}

	result := &CompletionResult{Content: content}
	if resp.UsageMetadata != nil {
		result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result, nil
}

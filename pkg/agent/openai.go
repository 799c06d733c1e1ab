package agent

import (
	"context"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/groksrc/trident/pkg/models"
)

const openaiAgentDefaultModel = "gpt-4o"

// OpenAIProvider executes agents as a chat completion loop. It supports
// structured JSON output but no tool use or MCP servers; agents that need
// real-world interaction belong on the claude provider.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates the openai agent provider from
// OPENAI_API_KEY.
func NewOpenAIProvider() *OpenAIProvider {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return &OpenAIProvider{}
	}
	return &OpenAIProvider{client: openai.NewClient(key)}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// Available reports whether credentials were present at setup.
func (p *OpenAIProvider) Available() bool { return p.client != nil }

// Execute implements Provider.
func (p *OpenAIProvider) Execute(ctx context.Context, prompt string, cfg Config) (*Result, error) {
	if p.client == nil {
		return nil, &models.ProviderError{
			Provider: p.Name(),
			Message:  "OPENAI_API_KEY environment variable not set",
		}
	}

	model := cfg.Model
	if model == "" {
		model = openaiAgentDefaultModel
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if cfg.OutputSchema != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, &models.ProviderError{Provider: p.Name(), Message: err.Error(), Cause: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &models.ProviderError{Provider: p.Name(), Message: "no completion choices returned"}
	}

	content := resp.Choices[0].Message.Content
	result := &Result{
		NumTurns: 1,
		Tokens: models.TokenUsage{
			Input:  resp.Usage.PromptTokens,
			Output: resp.Usage.CompletionTokens,
		},
	}

	if cfg.OutputSchema != nil {
		parsed, err := ParseJSONResponse(p.Name(), content)
		if err != nil {
			return nil, err
		}
		result.Output = parsed
		return result, nil
	}

	result.Output = map[string]any{"text": content}
	return result, nil
}

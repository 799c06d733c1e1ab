// Package providers defines the model provider capability interface and a
// registry resolving providers by vendor/model prefix.
package providers

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/groksrc/trident/pkg/models"
)

// CompletionConfig configures a single completion request.
type CompletionConfig struct {
	Model        string
	Temperature  *float64
	MaxTokens    *int
	OutputFormat string // "text" or "json"
	OutputSchema map[string]models.FieldSpec
}

// CompletionResult is the normalized provider response.
type CompletionResult struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is the capability interface for prompt completion.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string, cfg CompletionConfig) (*CompletionResult, error)
}

// Registry maps provider names to providers and resolves vendor/model ids.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider, replacing any previous one of the same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// List returns the registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// GetForModel resolves "vendor/model-name" to (provider, model-name).
func (r *Registry) GetForModel(modelID string) (Provider, string, error) {
	vendor, modelName, found := strings.Cut(modelID, "/")
	if !found {
		return nil, "", fmt.Errorf("model %q is not in vendor/model form", modelID)
	}
	provider, ok := r.Get(vendor)
	if !ok {
		return nil, "", &models.ProviderError{
			Provider: vendor,
			Message:  fmt.Sprintf("no provider registered for model %q", modelID),
		}
	}
	return provider, modelName, nil
}

// Setup registers every provider whose credentials are present in the
// environment. Called once per run.
func Setup(r *Registry) {
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		r.Register(NewAnthropicProvider())
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		r.Register(NewOpenAIProvider(os.Getenv("OPENAI_API_KEY")))
	}
	if os.Getenv("GEMINI_API_KEY") != "" {
		r.Register(NewGeminiProvider(os.Getenv("GEMINI_API_KEY")))
	}
}

// schemaPromptSuffix renders the JSON contract appended to prompts for
// providers without native structured output.
func schemaPromptSuffix(schema map[string]models.FieldSpec) string {
	if len(schema) == 0 {
		return "\n\nRespond with a single JSON object and nothing else."
	}
	var b strings.Builder
	b.WriteString("\n\nRespond with a single JSON object and nothing else. Fields:\n")
	for name, spec := range schema {
		fmt.Fprintf(&b, "- %s (%s): %s\n", name, spec.Type, spec.Description)
	}
	return b.String()
}

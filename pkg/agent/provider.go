// Package agent defines the agent provider capability interface: multi-turn
// LLM loops with tool access, session resume, and structured outputs.
package agent

import (
	"context"
	"sync"

	"github.com/groksrc/trident/pkg/models"
)

// Config is the common configuration passed to every agent provider.
type Config struct {
	MaxTurns       int
	Cwd            string
	AllowedTools   []string
	MCPServers     map[string]models.MCPServerConfig
	PermissionMode string
	ResumeSession  string
	Model          string
	// OutputSchema, when set, asks the provider for structured output
	// matching these fields.
	OutputSchema map[string]models.FieldSpec
}

// Result is the normalized outcome of an agent execution.
type Result struct {
	Output          map[string]any
	SessionID       string
	NumTurns        int
	CostUSD         *float64
	Tokens          models.TokenUsage
	MaxTurnsReached bool
	// Structured reports whether Output came from the provider's native
	// structured-output channel rather than text parsing.
	Structured bool
}

// Provider executes agents. Implementations own their transport (CLI
// subprocess, HTTP API) and normalize results to Result.
type Provider interface {
	Name() string
	Available() bool
	Execute(ctx context.Context, prompt string, cfg Config) (*Result, error)
}

// DefaultProvider is used when an agent node names no provider.
const DefaultProvider = "claude"

// Registry holds agent providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider.
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

// GetDefault returns the default provider.
func (r *Registry) GetDefault() (Provider, bool) {
	return r.Get(DefaultProvider)
}

// ListAvailable returns the names of providers whose backing runtime is
// installed and usable.
func (r *Registry) ListAvailable() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, p := range r.providers {
		if p.Available() {
			names = append(names, name)
		}
	}
	return names
}

// Setup registers the built-in agent providers.
func Setup(r *Registry) {
	r.Register(NewClaudeProvider())
	r.Register(NewOpenAIProvider())
}

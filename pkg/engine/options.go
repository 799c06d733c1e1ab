// Package engine schedules and executes the workflow DAG: level-parallel
// dispatch, edge-gated execution, dataflow propagation, checkpointing,
// branch loops, and trigger fan-out.
package engine

import (
	"github.com/groksrc/trident/pkg/agent"
	"github.com/groksrc/trident/pkg/condition"
	"github.com/groksrc/trident/pkg/models"
	"github.com/groksrc/trident/pkg/providers"
)

// ResumeLatest resumes from the most recent run in the manifest.
const ResumeLatest = "latest"

// RunOptions configures one run invocation.
type RunOptions struct {
	// Entrypoint overrides the project's first declared entrypoint.
	Entrypoint string

	// Inputs seed every declared input node.
	Inputs map[string]any

	// DryRun substitutes mock outputs for prompt and agent nodes.
	DryRun bool

	// Verbose logs node execution progress.
	Verbose bool

	// EmitSignals enables orchestration signal emission.
	EmitSignals bool

	// ResumeSessions maps agent node ids to provider session ids to resume.
	ResumeSessions map[string]string

	// ArtifactDir overrides the artifact root (default <project>/.trident).
	ArtifactDir string

	// NoArtifacts disables all persistence.
	NoArtifacts bool

	// RunID forces an explicit run id.
	RunID string

	// Resume replays a prior checkpoint: a run id or ResumeLatest.
	Resume string

	// StartFrom skips the ancestors of the named node, reusing their
	// checkpointed outputs.
	StartFrom string

	// PublishTo overrides the orchestration publish path.
	PublishTo string
}

// Engine wires the collaborators a run needs. Create once, run many.
type Engine struct {
	providers  *providers.Registry
	agents     *agent.Registry
	conditions *condition.Evaluator
}

// Option configures an Engine.
type Option func(*Engine)

// WithProviders substitutes the model provider registry.
func WithProviders(r *providers.Registry) Option {
	return func(e *Engine) { e.providers = r }
}

// WithAgentProviders substitutes the agent provider registry.
func WithAgentProviders(r *agent.Registry) Option {
	return func(e *Engine) { e.agents = r }
}

// New creates an engine. Without options, providers are registered from
// the environment.
func New(opts ...Option) *Engine {
	e := &Engine{conditions: condition.NewEvaluator()}
	for _, opt := range opts {
		opt(e)
	}
	if e.providers == nil {
		e.providers = providers.NewRegistry()
		providers.Setup(e.providers)
	}
	if e.agents == nil {
		e.agents = agent.NewRegistry()
		agent.Setup(e.agents)
	}
	return e
}

// mockValue synthesizes a dry-run value for one schema field.
func mockValue(name string, fieldType models.FieldType) any {
	switch fieldType {
	case models.FieldTypeString:
		return "[mock_" + name + "]"
	case models.FieldTypeNumber, models.FieldTypeInteger:
		return 0
	case models.FieldTypeBoolean:
		return true
	case models.FieldTypeArray:
		return []any{}
	case models.FieldTypeObject:
		return map[string]any{}
	}
	return nil
}

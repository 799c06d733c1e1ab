package models

import (
	"fmt"
)

// NodeType identifies the kind of a workflow node. Node kinds are a closed
// set; the executor dispatches on this tag.
type NodeType string

const (
	NodeTypeInput   NodeType = "input"
	NodeTypeOutput  NodeType = "output"
	NodeTypePrompt  NodeType = "prompt"
	NodeTypeTool    NodeType = "tool"
	NodeTypeAgent   NodeType = "agent"
	NodeTypeBranch  NodeType = "branch"
	NodeTypeTrigger NodeType = "trigger"
)

// FieldType is the type vocabulary used by input schemas, prompt inputs,
// and output schemas.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeInteger FieldType = "integer"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeArray   FieldType = "array"
	FieldTypeObject  FieldType = "object"
)

// FieldSpec describes one schema field: its type and a human description.
type FieldSpec struct {
	Type        FieldType `json:"type"`
	Description string    `json:"description,omitempty"`
}

// Defaults holds project-wide model defaults, applied when a prompt node
// carries no override.
type Defaults struct {
	Model       string   `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// InputNode holds externally supplied values and declares their schema.
type InputNode struct {
	ID     string               `json:"id"`
	Schema map[string]FieldSpec `json:"schema,omitempty"`
}

// OutputNode collects upstream fields as the run's final output.
type OutputNode struct {
	ID     string `json:"id"`
	Format string `json:"format,omitempty"`
}

// ToolDef describes a deterministic function tool.
type ToolDef struct {
	ID          string `json:"id"`
	Type        string `json:"type"` // "python", "shell", "http"
	Module      string `json:"module,omitempty"`
	Path        string `json:"path,omitempty"`
	Function    string `json:"function,omitempty"` // default "execute"
	Description string `json:"description,omitempty"`
}

// MCPServerConfig configures one MCP server available to an agent.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// AgentNode runs a multi-turn LLM loop with tool access.
type AgentNode struct {
	ID             string                     `json:"id"`
	PromptPath     string                     `json:"prompt"`
	Provider       string                     `json:"provider,omitempty"` // default "claude"
	AllowedTools   []string                   `json:"allowed_tools,omitempty"`
	MCPServers     map[string]MCPServerConfig `json:"mcp_servers,omitempty"`
	MaxTurns       int                        `json:"max_turns,omitempty"`
	PermissionMode string                     `json:"permission_mode,omitempty"`
	Cwd            string                     `json:"cwd,omitempty"`

	// Prompt is the parsed prompt file, loaded lazily at dispatch.
	Prompt *PromptNode `json:"-"`
}

// BranchWorkflowSelf is the sentinel workflow path for recursive branches.
const BranchWorkflowSelf = "self"

// DefaultMaxIterations bounds branch loops when the manifest is silent.
const DefaultMaxIterations = 10

// BranchNode calls a sub-workflow, optionally looping while a condition
// holds over the flattened sub-workflow outputs.
type BranchNode struct {
	ID            string `json:"id"`
	WorkflowPath  string `json:"workflow"` // path or "self"
	Condition     string `json:"condition,omitempty"`
	LoopWhile     string `json:"loop_while,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

// Trigger modes.
const (
	TriggerModeFireAndForget = "fire-and-forget"
	TriggerModeWait          = "wait"
)

// TriggerNode fires a downstream workflow, either detached or blocking.
type TriggerNode struct {
	ID           string `json:"id"`
	WorkflowPath string `json:"workflow"`
	Mode         string `json:"mode,omitempty"` // fire-and-forget (default) or wait
	PassOutputs  bool   `json:"pass_outputs"`
	EmitSignal   bool   `json:"emit_signal"`
	Condition    string `json:"condition,omitempty"`
}

// OrchestrationConfig is the manifest's orchestration section: where to
// publish outputs and whether to emit filesystem signals.
type OrchestrationConfig struct {
	PublishPath    string `json:"publish_path,omitempty"`
	PublishAlias   string `json:"publish_alias,omitempty"`
	ExportPath     string `json:"export_path,omitempty"`
	SignalsEnabled bool   `json:"signals_enabled"`
	SignalsDir     string `json:"signals_dir,omitempty"`
}

// DefaultSignalsDir is where signals land unless the manifest overrides it.
const DefaultSignalsDir = ".trident/signals"

// Project is a fully loaded Trident project: the node maps by kind, the
// edges connecting them, and orchestration configuration.
type Project struct {
	Name          string
	Root          string
	Version       string
	Description   string
	Defaults      Defaults
	Entrypoints   []string
	Edges         map[string]*Edge
	InputNodes    map[string]*InputNode
	OutputNodes   map[string]*OutputNode
	Prompts       map[string]*PromptNode
	Tools         map[string]*ToolDef
	Agents        map[string]*AgentNode
	Branches      map[string]*BranchNode
	Triggers      map[string]*TriggerNode
	Orchestration *OrchestrationConfig
	Env           map[string]map[string]any
}

// NodeIDs returns every node id across all kinds.
func (p *Project) NodeIDs() []string {
	ids := make([]string, 0,
		len(p.InputNodes)+len(p.OutputNodes)+len(p.Prompts)+
			len(p.Tools)+len(p.Agents)+len(p.Branches)+len(p.Triggers))
	for id := range p.InputNodes {
		ids = append(ids, id)
	}
	for id := range p.OutputNodes {
		ids = append(ids, id)
	}
	for id := range p.Prompts {
		ids = append(ids, id)
	}
	for id := range p.Tools {
		ids = append(ids, id)
	}
	for id := range p.Agents {
		ids = append(ids, id)
	}
	for id := range p.Branches {
		ids = append(ids, id)
	}
	for id := range p.Triggers {
		ids = append(ids, id)
	}
	return ids
}

// NodeTypeOf returns the kind of a node id, or false if unknown.
func (p *Project) NodeTypeOf(id string) (NodeType, bool) {
	switch {
	case p.InputNodes[id] != nil:
		return NodeTypeInput, true
	case p.OutputNodes[id] != nil:
		return NodeTypeOutput, true
	case p.Prompts[id] != nil:
		return NodeTypePrompt, true
	case p.Tools[id] != nil:
		return NodeTypeTool, true
	case p.Agents[id] != nil:
		return NodeTypeAgent, true
	case p.Branches[id] != nil:
		return NodeTypeBranch, true
	case p.Triggers[id] != nil:
		return NodeTypeTrigger, true
	}
	return "", false
}

// Validate checks project-level invariants: unique node ids across kinds
// and edges referencing known nodes.
func (p *Project) Validate() error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}

	seen := make(map[string]NodeType)
	check := func(id string, t NodeType) error {
		if prev, ok := seen[id]; ok {
			return &ValidationError{
				Field:   "nodes",
				Message: fmt.Sprintf("duplicate node ID %q (%s and %s)", id, prev, t),
			}
		}
		seen[id] = t
		return nil
	}
	for id := range p.InputNodes {
		if err := check(id, NodeTypeInput); err != nil {
			return err
		}
	}
	for id := range p.OutputNodes {
		if err := check(id, NodeTypeOutput); err != nil {
			return err
		}
	}
	for id := range p.Prompts {
		if err := check(id, NodeTypePrompt); err != nil {
			return err
		}
	}
	for id := range p.Tools {
		if err := check(id, NodeTypeTool); err != nil {
			return err
		}
	}
	for id := range p.Agents {
		if err := check(id, NodeTypeAgent); err != nil {
			return err
		}
	}
	for id := range p.Branches {
		if err := check(id, NodeTypeBranch); err != nil {
			return err
		}
	}
	for id := range p.Triggers {
		if err := check(id, NodeTypeTrigger); err != nil {
			return err
		}
	}

	for _, edge := range p.Edges {
		if err := edge.Validate(); err != nil {
			return err
		}
		if _, ok := seen[edge.FromNode]; !ok {
			return &ValidationError{
				Field:   "edges",
				Message: fmt.Sprintf("edge %s references non-existent source node: %s", edge.ID, edge.FromNode),
			}
		}
		if _, ok := seen[edge.ToNode]; !ok {
			return &ValidationError{
				Field:   "edges",
				Message: fmt.Sprintf("edge %s references non-existent target node: %s", edge.ID, edge.ToNode),
			}
		}
	}

	return nil
}

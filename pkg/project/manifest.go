// Package project loads Trident projects from disk: the YAML manifest,
// the prompts directory, and the optional .env file.
package project

// manifestDoc is the raw YAML shape of agent.tml / trident.tml /
// trident.yaml before it is resolved into a models.Project.
type manifestDoc struct {
	Trident     string                    `yaml:"trident" validate:"required"`
	Name        string                    `yaml:"name" validate:"required"`
	Description string                    `yaml:"description"`
	Version     string                    `yaml:"version"`
	Defaults    defaultsDoc               `yaml:"defaults"`
	Entrypoints []string                  `yaml:"entrypoints"`
	Nodes       map[string]nodeDoc        `yaml:"nodes" validate:"dive"`
	Tools       map[string]toolDoc        `yaml:"tools"`
	Edges       map[string]edgeDoc        `yaml:"edges"`
	Orch        *orchestrationDoc         `yaml:"orchestration"`
	Env         map[string]map[string]any `yaml:"env"`
}

type defaultsDoc struct {
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   *int     `yaml:"max_tokens"`
}

type nodeDoc struct {
	Type   string         `yaml:"type" validate:"omitempty,oneof=input output prompt tool agent branch trigger"`
	Schema map[string]any `yaml:"schema"`
	Format string         `yaml:"format"`

	// agent fields
	Prompt         string                  `yaml:"prompt"`
	Provider       string                  `yaml:"provider"`
	AllowedTools   any                     `yaml:"allowed_tools"`
	MCPServers     map[string]mcpServerDoc `yaml:"mcp_servers"`
	MaxTurns       int                     `yaml:"max_turns"`
	PermissionMode string                  `yaml:"permission_mode"`
	Cwd            string                  `yaml:"cwd"`

	// branch / trigger fields
	Workflow      string `yaml:"workflow"`
	Condition     string `yaml:"condition"`
	LoopWhile     string `yaml:"loop_while"`
	MaxIterations int    `yaml:"max_iterations"`
	Mode          string `yaml:"mode" validate:"omitempty,oneof=fire-and-forget wait"`
	PassOutputs   *bool  `yaml:"pass_outputs"`
	EmitSignal    *bool  `yaml:"emit_signal"`
}

type mcpServerDoc struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

type toolDoc struct {
	Type        string `yaml:"type"`
	Module      string `yaml:"module"`
	Path        string `yaml:"path"`
	Function    string `yaml:"function"`
	Description string `yaml:"description"`
}

type edgeDoc struct {
	From      string            `yaml:"from"`
	To        string            `yaml:"to"`
	Condition string            `yaml:"condition"`
	Mapping   map[string]string `yaml:"mapping"`
}

type orchestrationDoc struct {
	Publish struct {
		Path  string `yaml:"path"`
		Alias string `yaml:"alias"`
	} `yaml:"publish"`
	Export struct {
		Path string `yaml:"path"`
	} `yaml:"export"`
	Signals struct {
		Enabled   *bool  `yaml:"enabled"`
		Directory string `yaml:"directory"`
	} `yaml:"signals"`
}

package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/groksrc/trident/pkg/models"
)

// Manifest filenames searched in order when loading a project directory.
var manifestNames = []string{"agent.tml", "trident.tml", "trident.yaml"}

var validate = validator.New()

// Load loads a Trident project from a manifest file or a directory
// containing one. The .env file next to the manifest is loaded into the
// process environment first (existing variables are never overridden).
func Load(path string) (*models.Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &models.ParseError{Path: path, Message: err.Error(), Cause: err}
	}

	manifestPath, root, err := discoverManifest(abs)
	if err != nil {
		return nil, err
	}

	// godotenv does not override variables already present in the
	// environment, matching the manifest contract.
	_ = godotenv.Load(filepath.Join(root, ".env"))

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &models.ParseError{Path: manifestPath, Message: err.Error(), Cause: err}
	}

	var doc manifestDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &models.ParseError{Path: manifestPath, Message: fmt.Sprintf("invalid YAML: %v", err), Cause: err}
	}

	if err := validate.Struct(&doc); err != nil {
		if doc.Trident == "" {
			return nil, &models.ValidationError{Field: "trident", Message: "missing 'trident' version in manifest"}
		}
		if doc.Name == "" {
			return nil, &models.ValidationError{Field: "name", Message: "missing 'name' in manifest"}
		}
		return nil, &models.ValidationError{Field: "manifest", Message: err.Error()}
	}

	project, err := resolveManifest(&doc, root)
	if err != nil {
		return nil, err
	}

	if err := loadPrompts(project); err != nil {
		return nil, err
	}

	addImplicitNodes(project)

	if len(project.Entrypoints) == 0 && len(project.InputNodes) > 0 {
		ids := make([]string, 0, len(project.InputNodes))
		for id := range project.InputNodes {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		project.Entrypoints = []string{ids[0]}
	}

	if err := project.Validate(); err != nil {
		return nil, err
	}

	return project, nil
}

func discoverManifest(abs string) (manifestPath, root string, err error) {
	info, statErr := os.Stat(abs)
	if statErr == nil && !info.IsDir() {
		return abs, filepath.Dir(abs), nil
	}
	for _, name := range manifestNames {
		candidate := filepath.Join(abs, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, abs, nil
		}
	}
	return "", "", &models.ParseError{
		Path:    abs,
		Message: fmt.Sprintf("no %s found", strings.Join(manifestNames, ", ")),
	}
}

func resolveManifest(doc *manifestDoc, root string) (*models.Project, error) {
	project := &models.Project{
		Name:        doc.Name,
		Root:        root,
		Version:     doc.Version,
		Description: doc.Description,
		Defaults: models.Defaults{
			Model:       doc.Defaults.Model,
			Temperature: doc.Defaults.Temperature,
			MaxTokens:   doc.Defaults.MaxTokens,
		},
		Entrypoints: doc.Entrypoints,
		Edges:       make(map[string]*models.Edge),
		InputNodes:  make(map[string]*models.InputNode),
		OutputNodes: make(map[string]*models.OutputNode),
		Prompts:     make(map[string]*models.PromptNode),
		Tools:       make(map[string]*models.ToolDef),
		Agents:      make(map[string]*models.AgentNode),
		Branches:    make(map[string]*models.BranchNode),
		Triggers:    make(map[string]*models.TriggerNode),
		Env:         doc.Env,
	}
	if project.Version == "" {
		project.Version = "0.1"
	}

	if doc.Orch != nil {
		orch := &models.OrchestrationConfig{
			PublishPath:    doc.Orch.Publish.Path,
			PublishAlias:   doc.Orch.Publish.Alias,
			ExportPath:     doc.Orch.Export.Path,
			SignalsEnabled: true,
			SignalsDir:     doc.Orch.Signals.Directory,
		}
		if doc.Orch.Signals.Enabled != nil {
			orch.SignalsEnabled = *doc.Orch.Signals.Enabled
		}
		if orch.SignalsDir == "" {
			orch.SignalsDir = models.DefaultSignalsDir
		}
		project.Orchestration = orch
	}

	for nodeID, spec := range doc.Nodes {
		if err := resolveNode(project, nodeID, spec); err != nil {
			return nil, err
		}
	}

	for edgeID, spec := range doc.Edges {
		edge := &models.Edge{
			ID:        edgeID,
			FromNode:  spec.From,
			ToNode:    spec.To,
			Condition: spec.Condition,
		}
		// Sorted for deterministic tie-breaking when two mappings
		// target the same field.
		targets := make([]string, 0, len(spec.Mapping))
		for target := range spec.Mapping {
			targets = append(targets, target)
		}
		sort.Strings(targets)
		for _, target := range targets {
			edge.Mappings = append(edge.Mappings, models.EdgeMapping{
				TargetVar:  target,
				SourceExpr: spec.Mapping[target],
			})
		}
		project.Edges[edgeID] = edge
	}

	for toolID, spec := range doc.Tools {
		tool := &models.ToolDef{
			ID:          toolID,
			Type:        spec.Type,
			Module:      spec.Module,
			Path:        spec.Path,
			Function:    spec.Function,
			Description: spec.Description,
		}
		if tool.Type == "" {
			tool.Type = "python"
		}
		if tool.Function == "" {
			tool.Function = "execute"
		}
		project.Tools[toolID] = tool
	}

	return project, nil
}

func resolveNode(project *models.Project, nodeID string, spec nodeDoc) error {
	switch spec.Type {
	case "input":
		node := &models.InputNode{ID: nodeID, Schema: make(map[string]models.FieldSpec)}
		for fname, fspec := range spec.Schema {
			node.Schema[fname] = parseFieldSpec(fspec)
		}
		project.InputNodes[nodeID] = node

	case "output":
		project.OutputNodes[nodeID] = &models.OutputNode{ID: nodeID, Format: spec.Format}

	case "tool":
		return &models.ValidationError{
			Field: "nodes",
			Message: fmt.Sprintf("node %q has type 'tool', but tools must be defined "+
				"in the 'tools:' section of the manifest, not in 'nodes:'", nodeID),
		}

	case "agent":
		agent := &models.AgentNode{
			ID:             nodeID,
			PromptPath:     spec.Prompt,
			Provider:       spec.Provider,
			AllowedTools:   parseAllowedTools(spec.AllowedTools),
			MaxTurns:       spec.MaxTurns,
			PermissionMode: spec.PermissionMode,
			Cwd:            spec.Cwd,
		}
		if agent.PromptPath == "" {
			agent.PromptPath = fmt.Sprintf("prompts/%s.prompt", nodeID)
		}
		if agent.MaxTurns == 0 {
			agent.MaxTurns = 50
		}
		if agent.PermissionMode == "" {
			agent.PermissionMode = "acceptEdits"
		}
		if len(spec.MCPServers) > 0 {
			agent.MCPServers = make(map[string]models.MCPServerConfig, len(spec.MCPServers))
			for name, server := range spec.MCPServers {
				agent.MCPServers[name] = models.MCPServerConfig{
					Command: server.Command,
					Args:    server.Args,
					Env:     server.Env,
				}
			}
		}
		project.Agents[nodeID] = agent

	case "branch":
		if spec.Workflow == "" {
			return &models.ValidationError{
				Field:   "nodes",
				Message: fmt.Sprintf("branch node %q missing required 'workflow' path", nodeID),
			}
		}
		branch := &models.BranchNode{
			ID:            nodeID,
			WorkflowPath:  spec.Workflow,
			Condition:     spec.Condition,
			LoopWhile:     spec.LoopWhile,
			MaxIterations: spec.MaxIterations,
		}
		if branch.MaxIterations == 0 {
			branch.MaxIterations = models.DefaultMaxIterations
		}
		project.Branches[nodeID] = branch

	case "trigger":
		if spec.Workflow == "" {
			return &models.ValidationError{
				Field:   "nodes",
				Message: fmt.Sprintf("trigger node %q missing required 'workflow' path", nodeID),
			}
		}
		trigger := &models.TriggerNode{
			ID:           nodeID,
			WorkflowPath: spec.Workflow,
			Mode:         spec.Mode,
			PassOutputs:  true,
			EmitSignal:   true,
			Condition:    spec.Condition,
		}
		if trigger.Mode == "" {
			trigger.Mode = models.TriggerModeFireAndForget
		}
		if spec.PassOutputs != nil {
			trigger.PassOutputs = *spec.PassOutputs
		}
		if spec.EmitSignal != nil {
			trigger.EmitSignal = *spec.EmitSignal
		}
		project.Triggers[nodeID] = trigger

	default:
		// Prompt nodes live in prompts/*.prompt files; a bare nodes:
		// entry with no type (or type prompt) is resolved there.
	}

	return nil
}

// parseFieldSpec accepts both schema syntaxes: the mapping form
// {type: string, description: ...} and the legacy "type, description"
// string form.
func parseFieldSpec(spec any) models.FieldSpec {
	switch v := spec.(type) {
	case map[string]any:
		fs := models.FieldSpec{Type: models.FieldTypeString}
		if t, ok := v["type"].(string); ok && t != "" {
			fs.Type = models.FieldType(t)
		}
		if d, ok := v["description"].(string); ok {
			fs.Description = d
		}
		return fs
	case string:
		if ftype, desc, found := strings.Cut(v, ","); found {
			return models.FieldSpec{
				Type:        models.FieldType(strings.TrimSpace(ftype)),
				Description: strings.TrimSpace(desc),
			}
		}
		return models.FieldSpec{Type: models.FieldType(strings.TrimSpace(v))}
	default:
		return models.FieldSpec{Type: models.FieldTypeString}
	}
}

func parseAllowedTools(raw any) []string {
	switch v := raw.(type) {
	case []any:
		tools := make([]string, 0, len(v))
		for _, t := range v {
			tools = append(tools, fmt.Sprintf("%v", t))
		}
		return tools
	case []string:
		return v
	case string:
		return []string{v}
	}
	return nil
}

func loadPrompts(project *models.Project) error {
	promptsDir := filepath.Join(project.Root, "prompts")
	entries, err := os.ReadDir(promptsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &models.ParseError{Path: promptsDir, Message: err.Error(), Cause: err}
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".prompt") {
			continue
		}
		node, err := ParsePromptFile(filepath.Join(promptsDir, entry.Name()))
		if err != nil {
			return err
		}
		project.Prompts[node.ID] = node
	}
	return nil
}

// addImplicitNodes creates input/output nodes for ids referenced by edges
// but never declared: an undeclared source becomes an input node, an
// undeclared target an output node.
func addImplicitNodes(project *models.Project) {
	known := make(map[string]bool)
	for _, id := range project.NodeIDs() {
		known[id] = true
	}

	for _, edge := range project.Edges {
		if !known[edge.FromNode] {
			project.InputNodes[edge.FromNode] = &models.InputNode{ID: edge.FromNode}
			known[edge.FromNode] = true
		}
	}
	for _, edge := range project.Edges {
		if !known[edge.ToNode] {
			project.OutputNodes[edge.ToNode] = &models.OutputNode{ID: edge.ToNode}
			known[edge.ToNode] = true
		}
	}
}

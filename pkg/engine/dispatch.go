package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/groksrc/trident/internal/logger"
	"github.com/groksrc/trident/internal/tracing"
	"github.com/groksrc/trident/pkg/agent"
	"github.com/groksrc/trident/pkg/models"
	"github.com/groksrc/trident/pkg/project"
	"github.com/groksrc/trident/pkg/providers"
	"github.com/groksrc/trident/pkg/template"
)

// gatherInputs collects a node's inputs from upstream outputs via its
// inbound edges' mappings. A dotted source expression that misses with an
// "output." prefix is retried without the prefix.
func gatherInputs(state *executionState, nodeID string) map[string]any {
	inputs := make(map[string]any)
	node := state.dag.Nodes[nodeID]

	for _, edge := range node.IncomingEdges {
		sourceOutput, _ := state.nodeOutput(edge.FromNode)

		for _, mapping := range edge.Mappings {
			value, ok := template.GetPath(sourceOutput, mapping.SourceExpr)
			if !ok {
				if rest, had := strings.CutPrefix(mapping.SourceExpr, "output."); had {
					value, _ = template.GetPath(sourceOutput, rest)
				}
			}
			inputs[mapping.TargetVar] = value
		}
	}

	return inputs
}

// shouldExecute evaluates every inbound edge condition against that
// edge's source output. Any false condition skips the node; condition
// evaluation errors are treated as false.
func (e *Engine) shouldExecute(state *executionState, nodeID string) bool {
	node := state.dag.Nodes[nodeID]
	for _, edge := range node.IncomingEdges {
		if edge.Condition == "" {
			continue
		}
		sourceOutput, _ := state.nodeOutput(edge.FromNode)
		if sourceOutput == nil {
			sourceOutput = map[string]any{}
		}
		passed, err := e.conditions.Evaluate(edge.Condition, sourceOutput)
		if err != nil || !passed {
			return false
		}
	}
	return true
}

// dispatchNode runs one node and returns its trace. Errors are returned
// alongside the partially filled trace so the caller can wrap them with
// context.
func (e *Engine) dispatchNode(ctx context.Context, state *executionState, nodeID string, opts RunOptions, log *logger.Logger) (*models.NodeTrace, error) {
	nodeType, _ := state.project.NodeTypeOf(nodeID)
	trace := &models.NodeTrace{
		ID:        nodeID,
		NodeType:  nodeType,
		StartTime: time.Now().UTC(),
	}
	finish := func() {
		now := time.Now().UTC()
		trace.EndTime = &now
	}
	defer finish()

	ctx, span := tracing.StartSpan(ctx, "trident.node."+nodeID)
	defer span.End()

	if opts.Verbose {
		log.Info("executing node", "node", nodeID, "type", string(nodeType))
	}

	if !e.shouldExecute(state, nodeID) {
		trace.Skipped = true
		if opts.Verbose {
			log.Info("node skipped by edge condition", "node", nodeID)
		}
		return trace, nil
	}

	var err error
	switch nodeType {
	case models.NodeTypeInput:
		output, _ := state.nodeOutput(nodeID)
		trace.Output = output

	case models.NodeTypeOutput:
		trace.Input = gatherInputs(state, nodeID)
		trace.Output = trace.Input

	case models.NodeTypePrompt:
		err = e.executePromptNode(ctx, state, nodeID, trace, opts)

	case models.NodeTypeTool:
		err = e.executeToolNode(ctx, state, nodeID, trace)

	case models.NodeTypeAgent:
		err = e.executeAgentNode(ctx, state, nodeID, trace, opts)

	case models.NodeTypeBranch:
		err = e.executeBranchNode(ctx, state, nodeID, trace, opts)

	case models.NodeTypeTrigger:
		err = e.executeTriggerNode(ctx, state, nodeID, trace, opts)

	default:
		err = fmt.Errorf("no dispatcher for node type %q", nodeType)
	}

	if err != nil {
		span.RecordError(err)
		trace.Error = err.Error()
		trace.ErrorType = fmt.Sprintf("%T", err)
		return trace, err
	}
	return trace, nil
}

func (e *Engine) executePromptNode(ctx context.Context, state *executionState, nodeID string, trace *models.NodeTrace, opts RunOptions) error {
	prompt := state.project.Prompts[nodeID]
	if prompt == nil {
		return models.ErrPromptNotFound
	}

	gathered := gatherInputs(state, nodeID)
	applyInputDefaults(gathered, prompt.Inputs)
	trace.Input = gathered

	if err := checkRequiredInputs(prompt, gathered); err != nil {
		return err
	}

	model := prompt.Model
	if model == "" {
		model = state.project.Defaults.Model
	}
	if model == "" {
		return models.ErrNoModel
	}
	trace.Model = model

	if opts.DryRun {
		trace.Output = mockPromptOutput(prompt.Output)
		return nil
	}

	provider, modelName, err := e.providers.GetForModel(model)
	if err != nil {
		return err
	}

	rendered := template.Render(prompt.Body, gathered)

	cfg := providers.CompletionConfig{
		Model:        modelName,
		Temperature:  prompt.Temperature,
		MaxTokens:    prompt.MaxTokens,
		OutputFormat: prompt.Output.Format,
	}
	if cfg.Temperature == nil {
		cfg.Temperature = state.project.Defaults.Temperature
	}
	if cfg.MaxTokens == nil {
		cfg.MaxTokens = state.project.Defaults.MaxTokens
	}
	if prompt.Output.Format == models.OutputFormatJSON {
		cfg.OutputSchema = prompt.Output.Fields
	}

	result, err := provider.Complete(ctx, rendered, cfg)
	if err != nil {
		return err
	}
	trace.Tokens = models.TokenUsage{Input: result.InputTokens, Output: result.OutputTokens}

	if prompt.Output.Format != models.OutputFormatJSON {
		trace.Output = map[string]any{"text": result.Content}
		return nil
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(result.Content), &parsed); err != nil {
		return &models.SchemaValidationError{
			Message: fmt.Sprintf("LLM returned invalid JSON, response started with: %.100q", result.Content),
		}
	}
	if len(prompt.Output.Fields) > 0 {
		if err := validateSchema(parsed, prompt.Output.Fields); err != nil {
			return err
		}
	}

	output := map[string]any{"text": result.Content}
	for k, v := range parsed {
		output[k] = v
	}
	trace.Output = output
	return nil
}

func (e *Engine) executeToolNode(ctx context.Context, state *executionState, nodeID string, trace *models.NodeTrace) error {
	tool := state.project.Tools[nodeID]
	if tool == nil {
		return models.ErrToolNotFound
	}

	gathered := gatherInputs(state, nodeID)
	trace.Input = gathered

	output, err := state.tools.Execute(ctx, tool, gathered)
	if err != nil {
		return err
	}
	trace.Output = output
	return nil
}

func (e *Engine) executeAgentNode(ctx context.Context, state *executionState, nodeID string, trace *models.NodeTrace, opts RunOptions) error {
	node := state.project.Agents[nodeID]
	if node == nil {
		return models.ErrAgentNotFound
	}

	prompt, err := project.ResolvePromptForAgent(state.project, node)
	if err != nil {
		return err
	}

	gathered := gatherInputs(state, nodeID)
	applyInputDefaults(gathered, prompt.Inputs)
	trace.Input = gathered

	if err := checkRequiredInputs(prompt, gathered); err != nil {
		return err
	}

	if opts.DryRun {
		trace.Output = mockPromptOutput(prompt.Output)
		return nil
	}

	providerName := node.Provider
	if providerName == "" {
		providerName = agent.DefaultProvider
	}
	provider, ok := e.agents.Get(providerName)
	if !ok {
		provider, ok = e.agents.GetDefault()
		if !ok {
			return &models.ProviderError{
				Provider: providerName,
				Message:  "no agent provider registered",
			}
		}
	}

	rendered := template.Render(prompt.Body, gathered)

	cfg := agent.Config{
		MaxTurns:       node.MaxTurns,
		Cwd:            node.Cwd,
		AllowedTools:   node.AllowedTools,
		MCPServers:     node.MCPServers,
		PermissionMode: node.PermissionMode,
		ResumeSession:  opts.ResumeSessions[nodeID],
	}
	if prompt.Output.Format == models.OutputFormatJSON {
		cfg.OutputSchema = prompt.Output.Fields
	}

	result, err := provider.Execute(ctx, rendered, cfg)
	if err != nil {
		return err
	}

	trace.SessionID = result.SessionID
	trace.NumTurns = result.NumTurns
	trace.CostUSD = result.CostUSD
	trace.Tokens = result.Tokens

	output := result.Output
	if prompt.Output.Format == models.OutputFormatJSON && !result.Structured {
		// The provider returned text; extract JSON tolerantly.
		text, _ := output["text"].(string)
		if text != "" {
			output, err = agent.ParseJSONResponse(nodeID, text)
			if err != nil {
				return err
			}
		}
		if len(prompt.Output.Fields) > 0 {
			if err := agent.ValidateOutput(nodeID, output, prompt.Output.Fields); err != nil {
				return err
			}
		}
	}

	trace.Output = output
	return nil
}

// applyInputDefaults fills missing or nil inputs from declared defaults.
func applyInputDefaults(gathered map[string]any, fields map[string]models.InputField) {
	for name, field := range fields {
		if value, ok := gathered[name]; !ok || value == nil {
			if field.Default != nil {
				gathered[name] = field.Default
			}
		}
	}
}

// checkRequiredInputs enforces the dispatch-time contract: every required
// input without a default must be present and non-nil.
func checkRequiredInputs(prompt *models.PromptNode, gathered map[string]any) error {
	var missing []string
	for _, name := range prompt.RequiredInputs() {
		if value, ok := gathered[name]; !ok || value == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &models.ValidationError{
		Field:   "input",
		Message: fmt.Sprintf("prompt %q missing required inputs: %s", prompt.ID, strings.Join(missing, ", ")),
	}
}

// mockPromptOutput synthesizes a dry-run output matching the schema.
func mockPromptOutput(schema models.OutputSchema) map[string]any {
	if schema.Format != models.OutputFormatJSON {
		return map[string]any{"text": "[DRY RUN] Mock text response"}
	}
	mock := make(map[string]any, len(schema.Fields))
	for name, spec := range schema.Fields {
		mock[name] = mockValue(name, spec.Type)
	}
	return mock
}

// validateSchema checks parsed JSON output against the declared fields:
// strict on required fields and types, lenient on extras. The declared
// field set is synthesized into a JSON Schema document.
func validateSchema(data map[string]any, fields map[string]models.FieldSpec) error {
	properties := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	for name, spec := range fields {
		jsonType := string(spec.Type)
		if jsonType == "" {
			jsonType = "string"
		}
		properties[name] = map[string]any{"type": jsonType}
		required = append(required, name)
	}
	schemaDoc := map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schemaDoc),
		gojsonschema.NewGoLoader(data),
	)
	if err != nil {
		return &models.SchemaValidationError{Message: err.Error()}
	}
	if !result.Valid() {
		var parts []string
		for _, desc := range result.Errors() {
			parts = append(parts, desc.String())
		}
		return &models.SchemaValidationError{
			Message: "output does not match declared schema: " + strings.Join(parts, "; "),
		}
	}
	return nil
}

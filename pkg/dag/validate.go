package dag

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/groksrc/trident/pkg/models"
)

// Warning is a non-fatal validation issue. In strict mode warnings are
// promoted to errors.
type Warning struct {
	Message string
	EdgeID  string
	NodeID  string
}

// ValidationResult aggregates errors and warnings from mapping validation.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []Warning
}

// OutputFields computes the set of fields a node produces, per kind.
// This is the node's output contract for edge mapping validation.
func OutputFields(project *models.Project, nodeID string, nodeType models.NodeType) map[string]models.FieldType {
	fields := make(map[string]models.FieldType)

	switch nodeType {
	case models.NodeTypeInput:
		if node := project.InputNodes[nodeID]; node != nil {
			for name, spec := range node.Schema {
				fields[name] = spec.Type
			}
		}

	case models.NodeTypePrompt:
		fields["text"] = models.FieldTypeString
		if prompt := project.Prompts[nodeID]; prompt != nil && prompt.Output.Format == models.OutputFormatJSON {
			for name, spec := range prompt.Output.Fields {
				fields[name] = spec.Type
			}
		}

	case models.NodeTypeTool:
		// Tool outputs are unknown until runtime; non-map returns are
		// wrapped as {output: value}.
		fields["output"] = ""

	case models.NodeTypeAgent:
		fields["text"] = models.FieldTypeString
		if agent := project.Agents[nodeID]; agent != nil {
			promptID := strings.TrimSuffix(filepath.Base(agent.PromptPath), ".prompt")
			if prompt := project.Prompts[promptID]; prompt != nil && prompt.Output.Format == models.OutputFormatJSON {
				for name, spec := range prompt.Output.Fields {
					fields[name] = spec.Type
				}
			}
		}

	case models.NodeTypeBranch:
		fields["output"] = ""
		fields["text"] = models.FieldTypeString

	case models.NodeTypeTrigger:
		fields["triggered"] = models.FieldTypeBoolean
		fields["status"] = models.FieldTypeString
		fields["output"] = ""

	case models.NodeTypeOutput:
		// Output nodes have no downstream edges.
	}

	return fields
}

// InputFields computes the set of fields a node expects. An empty set
// means the node accepts anything.
func InputFields(project *models.Project, nodeID string, nodeType models.NodeType) map[string]models.FieldType {
	fields := make(map[string]models.FieldType)

	switch nodeType {
	case models.NodeTypePrompt:
		if prompt := project.Prompts[nodeID]; prompt != nil {
			for name, f := range prompt.Inputs {
				fields[name] = f.Type
			}
		}

	case models.NodeTypeAgent:
		if agent := project.Agents[nodeID]; agent != nil {
			promptID := strings.TrimSuffix(filepath.Base(agent.PromptPath), ".prompt")
			if prompt := project.Prompts[promptID]; prompt != nil {
				for name, f := range prompt.Inputs {
					fields[name] = f.Type
				}
			}
		}
	}

	return fields
}

// typeCompatible implements the type compatibility rules: integer and
// number interchange; object/array serialize to string; unknown types
// match anything.
func typeCompatible(source, target models.FieldType) bool {
	if source == "" || target == "" || source == target {
		return true
	}
	numeric := func(t models.FieldType) bool {
		return t == models.FieldTypeInteger || t == models.FieldTypeNumber
	}
	if numeric(source) && numeric(target) {
		return true
	}
	structured := func(t models.FieldType) bool {
		return t == models.FieldTypeObject || t == models.FieldTypeArray
	}
	if (structured(source) && target == models.FieldTypeString) ||
		(source == models.FieldTypeString && structured(target)) {
		return true
	}
	known := map[models.FieldType]bool{
		models.FieldTypeString: true, models.FieldTypeNumber: true,
		models.FieldTypeInteger: true, models.FieldTypeBoolean: true,
		models.FieldTypeArray: true, models.FieldTypeObject: true,
	}
	if !known[source] || !known[target] {
		return true
	}
	return false
}

// ValidateMappings checks every edge mapping against the source's output
// contract and the target's input contract, including type compatibility.
// Warnings only, unless strict promotes them to errors.
func ValidateMappings(project *models.Project, d *DAG, strict bool) *ValidationResult {
	result := &ValidationResult{Valid: true}

	edgeIDs := make([]string, 0, len(project.Edges))
	for id := range project.Edges {
		edgeIDs = append(edgeIDs, id)
	}
	sort.Strings(edgeIDs)

	for _, edgeID := range edgeIDs {
		edge := project.Edges[edgeID]
		source := d.Nodes[edge.FromNode]
		target := d.Nodes[edge.ToNode]
		if source == nil || target == nil {
			continue // Build already rejects unknown endpoints
		}

		sourceFields := OutputFields(project, edge.FromNode, source.Type)
		targetFields := InputFields(project, edge.ToNode, target.Type)

		for _, mapping := range edge.Mappings {
			base, _, _ := strings.Cut(mapping.SourceExpr, ".")
			sourceType, sourceKnown := sourceFields[base]
			if len(sourceFields) > 0 && !sourceKnown {
				result.Warnings = append(result.Warnings, Warning{
					Message: fmt.Sprintf("source field %q may not exist in %q (%s) output, available fields: %s",
						mapping.SourceExpr, edge.FromNode, source.Type, sortedKeys(sourceFields)),
					EdgeID: edge.ID,
					NodeID: edge.FromNode,
				})
			}

			targetType, targetKnown := targetFields[mapping.TargetVar]
			if len(targetFields) > 0 && !targetKnown {
				result.Warnings = append(result.Warnings, Warning{
					Message: fmt.Sprintf("target field %q not expected by %q (%s), expected inputs: %s",
						mapping.TargetVar, edge.ToNode, target.Type, sortedKeys(targetFields)),
					EdgeID: edge.ID,
					NodeID: edge.ToNode,
				})
			}

			// Only check types when the mapping addresses the field
			// directly; a dotted path dives below the declared type.
			if sourceKnown && targetKnown && !strings.Contains(mapping.SourceExpr, ".") {
				if !typeCompatible(sourceType, targetType) {
					result.Warnings = append(result.Warnings, Warning{
						Message: fmt.Sprintf("type mismatch on edge %s: %q (%s) -> %q (%s)",
							edge.ID, mapping.SourceExpr, sourceType, mapping.TargetVar, targetType),
						EdgeID: edge.ID,
					})
				}
			}
		}
	}

	if strict && len(result.Warnings) > 0 {
		result.Valid = false
		for _, w := range result.Warnings {
			result.Errors = append(result.Errors, w.Message)
		}
	}

	return result
}

func sortedKeys(fields map[string]models.FieldType) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "[" + strings.Join(keys, " ") + "]"
}

// ProjectLoader loads a sub-project from a path. Implemented by
// project.Load; injected to keep this package free of the parser.
type ProjectLoader func(path string) (*models.Project, error)

// ValidateSubWorkflows recursively validates every branch and trigger
// reference: each target must load, build, and validate; repeated visits
// across files are circular references. "self" is allowed recursion.
func ValidateSubWorkflows(project *models.Project, load ProjectLoader, strict bool) error {
	visited := map[string]bool{project.Root: true}
	return validateSubWorkflows(project, load, strict, visited)
}

func validateSubWorkflows(project *models.Project, load ProjectLoader, strict bool, visited map[string]bool) error {
	refs := make([]string, 0, len(project.Branches)+len(project.Triggers))
	for _, branch := range project.Branches {
		refs = append(refs, branch.WorkflowPath)
	}
	for _, trigger := range project.Triggers {
		refs = append(refs, trigger.WorkflowPath)
	}
	sort.Strings(refs)

	for _, ref := range refs {
		if ref == models.BranchWorkflowSelf {
			continue
		}

		target := ref
		if !filepath.IsAbs(target) {
			target = filepath.Join(project.Root, target)
		}
		target, err := filepath.Abs(target)
		if err != nil {
			return &models.ValidationError{Field: "workflow", Message: err.Error()}
		}

		if visited[target] {
			return &models.ValidationError{
				Field:   "workflow",
				Message: fmt.Sprintf("circular workflow reference: %s", ref),
			}
		}
		visited[target] = true

		sub, err := load(target)
		if err != nil {
			return fmt.Errorf("sub-workflow %s: %w", ref, err)
		}

		subDAG, err := Build(sub)
		if err != nil {
			return fmt.Errorf("sub-workflow %s: %w", ref, err)
		}
		if result := ValidateMappings(sub, subDAG, strict); !result.Valid {
			return &models.ValidationError{
				Field:   "workflow",
				Message: fmt.Sprintf("sub-workflow %s: %s", ref, strings.Join(result.Errors, "; ")),
			}
		}

		if err := validateSubWorkflows(sub, load, strict, visited); err != nil {
			return err
		}
	}

	return nil
}

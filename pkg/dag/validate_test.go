package dag

import (
	"strings"
	"testing"

	"github.com/groksrc/trident/pkg/models"
)

func mappedProject() *models.Project {
	return &models.Project{
		Name: "mapped",
		InputNodes: map[string]*models.InputNode{
			"input": {ID: "input", Schema: map[string]models.FieldSpec{
				"topic": {Type: models.FieldTypeString},
				"count": {Type: models.FieldTypeInteger},
			}},
		},
		OutputNodes: map[string]*models.OutputNode{"output": {ID: "output"}},
		Prompts: map[string]*models.PromptNode{
			"p": {
				ID: "p",
				Inputs: map[string]models.InputField{
					"topic": {Name: "topic", Type: models.FieldTypeString},
					"limit": {Name: "limit", Type: models.FieldTypeNumber},
				},
				Output: models.OutputSchema{
					Format: models.OutputFormatJSON,
					Fields: map[string]models.FieldSpec{
						"summary": {Type: models.FieldTypeString},
					},
				},
			},
		},
		Edges: map[string]*models.Edge{
			"e1": {ID: "e1", FromNode: "input", ToNode: "p", Mappings: []models.EdgeMapping{
				{TargetVar: "topic", SourceExpr: "topic"},
				{TargetVar: "limit", SourceExpr: "count"},
			}},
			"e2": {ID: "e2", FromNode: "p", ToNode: "output", Mappings: []models.EdgeMapping{
				{TargetVar: "result", SourceExpr: "summary"},
			}},
		},
	}
}

func TestValidateMappingsClean(t *testing.T) {
	p := mappedProject()
	graph, err := Build(p)
	if err != nil {
		t.Fatal(err)
	}

	result := ValidateMappings(p, graph, false)
	if !result.Valid {
		t.Fatalf("expected valid, errors = %v", result.Errors)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
}

func TestValidateMappingsUnknownSourceField(t *testing.T) {
	p := mappedProject()
	p.Edges["e1"].Mappings = append(p.Edges["e1"].Mappings,
		models.EdgeMapping{TargetVar: "topic", SourceExpr: "missing_field"})

	graph, err := Build(p)
	if err != nil {
		t.Fatal(err)
	}

	result := ValidateMappings(p, graph, false)
	if result.Valid != true {
		t.Fatal("warnings must not invalidate without strict")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a warning for missing source field")
	}

	strict := ValidateMappings(p, graph, true)
	if strict.Valid {
		t.Fatal("strict mode must promote warnings to errors")
	}
}

func TestValidateMappingsUnknownTargetField(t *testing.T) {
	p := mappedProject()
	p.Edges["e1"].Mappings = []models.EdgeMapping{
		{TargetVar: "unexpected", SourceExpr: "topic"},
	}

	graph, err := Build(p)
	if err != nil {
		t.Fatal(err)
	}

	result := ValidateMappings(p, graph, false)
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w.Message, "unexpected") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected target warning, got %v", result.Warnings)
	}
}

func TestTypeCompatibility(t *testing.T) {
	tests := []struct {
		source models.FieldType
		target models.FieldType
		want   bool
	}{
		{models.FieldTypeInteger, models.FieldTypeNumber, true},
		{models.FieldTypeNumber, models.FieldTypeInteger, true},
		{models.FieldTypeObject, models.FieldTypeString, true},
		{models.FieldTypeString, models.FieldTypeArray, true},
		{models.FieldTypeString, models.FieldTypeString, true},
		{"custom", models.FieldTypeBoolean, true},
		{models.FieldTypeBoolean, models.FieldTypeNumber, false},
		{models.FieldTypeString, models.FieldTypeBoolean, false},
	}

	for _, tt := range tests {
		if got := typeCompatible(tt.source, tt.target); got != tt.want {
			t.Errorf("typeCompatible(%s, %s) = %v, want %v", tt.source, tt.target, got, tt.want)
		}
	}
}

func TestOutputFieldsPerKind(t *testing.T) {
	p := mappedProject()
	p.Tools = map[string]*models.ToolDef{"t": {ID: "t", Type: "python"}}
	p.Branches = map[string]*models.BranchNode{"br": {ID: "br", WorkflowPath: "self"}}
	p.Triggers = map[string]*models.TriggerNode{"tr": {ID: "tr", WorkflowPath: "x"}}

	prompt := OutputFields(p, "p", models.NodeTypePrompt)
	if _, ok := prompt["text"]; !ok {
		t.Error("prompt output must include text")
	}
	if _, ok := prompt["summary"]; !ok {
		t.Error("json prompt output must include schema fields")
	}

	tool := OutputFields(p, "t", models.NodeTypeTool)
	if _, ok := tool["output"]; !ok {
		t.Error("tool output must include output")
	}

	branch := OutputFields(p, "br", models.NodeTypeBranch)
	if _, ok := branch["output"]; !ok {
		t.Error("branch output must include output")
	}

	trigger := OutputFields(p, "tr", models.NodeTypeTrigger)
	for _, field := range []string{"triggered", "status", "output"} {
		if _, ok := trigger[field]; !ok {
			t.Errorf("trigger output missing %s", field)
		}
	}

	if fields := OutputFields(p, "output", models.NodeTypeOutput); len(fields) != 0 {
		t.Error("output nodes produce no fields")
	}
}

func TestValidateSubWorkflows(t *testing.T) {
	child := &models.Project{
		Name:        "child",
		Root:        "/projects/child",
		InputNodes:  map[string]*models.InputNode{"in": {ID: "in"}},
		OutputNodes: map[string]*models.OutputNode{"out": {ID: "out"}},
		Edges: map[string]*models.Edge{
			"e": {ID: "e", FromNode: "in", ToNode: "out"},
		},
	}

	parent := &models.Project{
		Name:       "parent",
		Root:       "/projects/parent",
		InputNodes: map[string]*models.InputNode{"in": {ID: "in"}},
		Branches: map[string]*models.BranchNode{
			"br": {ID: "br", WorkflowPath: "../child"},
		},
	}

	loads := 0
	loader := func(path string) (*models.Project, error) {
		loads++
		return child, nil
	}

	if err := ValidateSubWorkflows(parent, loader, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loads != 1 {
		t.Errorf("loads = %d, want 1", loads)
	}
}

func TestValidateSubWorkflowsSelfAllowed(t *testing.T) {
	parent := &models.Project{
		Name: "recursive",
		Root: "/projects/recursive",
		Branches: map[string]*models.BranchNode{
			"again": {ID: "again", WorkflowPath: models.BranchWorkflowSelf},
		},
	}

	loader := func(path string) (*models.Project, error) {
		t.Fatalf("self must not be loaded, got %s", path)
		return nil, nil
	}
	if err := ValidateSubWorkflows(parent, loader, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateSubWorkflowsCircular(t *testing.T) {
	a := &models.Project{
		Name: "a",
		Root: "/projects/a",
		Branches: map[string]*models.BranchNode{
			"to_b": {ID: "to_b", WorkflowPath: "/projects/b"},
		},
	}
	b := &models.Project{
		Name: "b",
		Root: "/projects/b",
		Branches: map[string]*models.BranchNode{
			"to_a": {ID: "to_a", WorkflowPath: "/projects/a"},
		},
	}

	loader := func(path string) (*models.Project, error) {
		if strings.HasSuffix(path, "b") {
			return b, nil
		}
		return a, nil
	}

	err := ValidateSubWorkflows(a, loader, false)
	if err == nil {
		t.Fatal("expected circular reference error")
	}
	if !strings.Contains(err.Error(), "circular workflow reference") {
		t.Errorf("error = %v, want circular workflow reference", err)
	}
}

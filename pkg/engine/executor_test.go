package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groksrc/trident/pkg/agent"
	"github.com/groksrc/trident/pkg/dag"
	"github.com/groksrc/trident/pkg/models"
	"github.com/groksrc/trident/pkg/providers"
)

// mockProvider counts calls and answers from a configurable function.
type mockProvider struct {
	mu       sync.Mutex
	calls    int
	complete func(prompt string, cfg providers.CompletionConfig) (*providers.CompletionResult, error)
}

func (p *mockProvider) Name() string { return "mock" }

func (p *mockProvider) Complete(ctx context.Context, prompt string, cfg providers.CompletionConfig) (*providers.CompletionResult, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.complete != nil {
		return p.complete(prompt, cfg)
	}
	return &providers.CompletionResult{Content: prompt}, nil
}

func (p *mockProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestEngine(mock *mockProvider) *Engine {
	registry := providers.NewRegistry()
	registry.Register(mock)
	return New(WithProviders(registry), WithAgentProviders(agent.NewRegistry()))
}

func textPrompt(id, body string) *models.PromptNode {
	return &models.PromptNode{
		ID:     id,
		Body:   body,
		Output: models.OutputSchema{Format: models.OutputFormatText},
	}
}

func TestLinearDryRun(t *testing.T) {
	root := t.TempDir()
	proj := &models.Project{
		Name:        "linear",
		Root:        root,
		Defaults:    models.Defaults{Model: "mock/m1"},
		Entrypoints: []string{"input"},
		InputNodes: map[string]*models.InputNode{
			"input": {ID: "input", Schema: map[string]models.FieldSpec{
				"x": {Type: models.FieldTypeInteger},
			}},
		},
		OutputNodes: map[string]*models.OutputNode{"output": {ID: "output"}},
		Prompts: map[string]*models.PromptNode{
			"p": {
				ID:   "p",
				Body: "value is {{x}}",
				Output: models.OutputSchema{
					Format: models.OutputFormatJSON,
					Fields: map[string]models.FieldSpec{
						"status": {Type: models.FieldTypeString},
					},
				},
			},
		},
		Edges: map[string]*models.Edge{
			"e1": {ID: "e1", FromNode: "input", ToNode: "p", Mappings: []models.EdgeMapping{
				{TargetVar: "x", SourceExpr: "x"},
			}},
			"e2": {ID: "e2", FromNode: "p", ToNode: "output", Mappings: []models.EdgeMapping{
				{TargetVar: "status", SourceExpr: "status"},
			}},
		},
	}

	mock := &mockProvider{}
	result, err := newTestEngine(mock).Run(context.Background(), proj, RunOptions{
		Inputs: map[string]any{"x": 1},
		DryRun: true,
	})
	require.NoError(t, err)
	require.True(t, result.Success(), result.Summary())

	out, ok := result.Outputs["output"].(map[string]any)
	require.True(t, ok, "outputs = %v", result.Outputs)
	assert.Equal(t, "[mock_status]", out["status"])

	// Dry-run performs no provider calls.
	assert.Equal(t, 0, mock.callCount())
	assert.Len(t, result.Trace.Nodes, 3)
}

func TestParallelFanOut(t *testing.T) {
	root := t.TempDir()
	proj := &models.Project{
		Name:        "fanout",
		Root:        root,
		Defaults:    models.Defaults{Model: "mock/m1"},
		Entrypoints: []string{"input"},
		InputNodes:  map[string]*models.InputNode{"input": {ID: "input"}},
		OutputNodes: map[string]*models.OutputNode{"output": {ID: "output"}},
		Prompts: map[string]*models.PromptNode{
			"a": textPrompt("a", "a body"),
			"b": textPrompt("b", "b body"),
		},
		Edges: map[string]*models.Edge{
			"e1": {ID: "e1", FromNode: "input", ToNode: "a"},
			"e2": {ID: "e2", FromNode: "input", ToNode: "b"},
			"e3": {ID: "e3", FromNode: "a", ToNode: "output", Mappings: []models.EdgeMapping{
				{TargetVar: "a_text", SourceExpr: "text"},
			}},
			"e4": {ID: "e4", FromNode: "b", ToNode: "output", Mappings: []models.EdgeMapping{
				{TargetVar: "b_text", SourceExpr: "text"},
			}},
		},
	}

	graph, err := dag.Build(proj)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"input"}, {"a", "b"}, {"output"}}, graph.ExecutionLevels)

	result, err := newTestEngine(&mockProvider{}).Run(context.Background(), proj, RunOptions{DryRun: true})
	require.NoError(t, err)
	require.True(t, result.Success(), result.Summary())

	seen := map[string]bool{}
	for _, node := range result.Trace.Nodes {
		seen[node.ID] = true
	}
	assert.True(t, seen["a"], "a missing from trace")
	assert.True(t, seen["b"], "b missing from trace")
}

func TestEdgeGatingSkipsNode(t *testing.T) {
	root := t.TempDir()
	proj := &models.Project{
		Name:        "gated",
		Root:        root,
		Defaults:    models.Defaults{Model: "mock/m1"},
		Entrypoints: []string{"input"},
		InputNodes:  map[string]*models.InputNode{"input": {ID: "input"}},
		OutputNodes: map[string]*models.OutputNode{"q": {ID: "q"}},
		Prompts: map[string]*models.PromptNode{
			"p": {
				ID:   "p",
				Body: "score it",
				Output: models.OutputSchema{
					Format: models.OutputFormatJSON,
					Fields: map[string]models.FieldSpec{
						"score": {Type: models.FieldTypeNumber},
					},
				},
			},
		},
		Edges: map[string]*models.Edge{
			"e1": {ID: "e1", FromNode: "input", ToNode: "p"},
			"e2": {ID: "e2", FromNode: "p", ToNode: "q", Condition: "score > 5", Mappings: []models.EdgeMapping{
				{TargetVar: "score", SourceExpr: "score"},
			}},
		},
	}

	mock := &mockProvider{
		complete: func(prompt string, cfg providers.CompletionConfig) (*providers.CompletionResult, error) {
			return &providers.CompletionResult{Content: `{"score": 3}`}, nil
		},
	}

	result, err := newTestEngine(mock).Run(context.Background(), proj, RunOptions{
		Inputs: map[string]any{"score": 3},
	})
	require.NoError(t, err)
	require.True(t, result.Success(), result.Summary())

	assert.Empty(t, result.Outputs)
	assert.Equal(t, 1, mock.callCount())

	var qTrace *models.NodeTrace
	for _, node := range result.Trace.Nodes {
		if node.ID == "q" {
			qTrace = node
		}
	}
	require.NotNil(t, qTrace)
	assert.True(t, qTrace.Skipped)
}

// incrementMock parses COUNTER=<n> from the rendered prompt and answers
// with counter = n+1.
func incrementMock() *mockProvider {
	return &mockProvider{
		complete: func(prompt string, cfg providers.CompletionConfig) (*providers.CompletionResult, error) {
			idx := strings.Index(prompt, "COUNTER=")
			if idx < 0 {
				return nil, fmt.Errorf("no counter in prompt: %q", prompt)
			}
			raw := strings.TrimSpace(prompt[idx+len("COUNTER="):])
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, err
			}
			return &providers.CompletionResult{
				Content: fmt.Sprintf(`{"counter": %g}`, n+1),
			}, nil
		},
	}
}

const incrementManifest = `trident: "0.1"
name: increment
defaults:
  model: mock/m1
entrypoints: [input]
nodes:
  input:
    type: input
    schema:
      counter:
        type: number
  output:
    type: output
edges:
  e1:
    from: input
    to: inc
    mapping:
      counter: counter
  e2:
    from: inc
    to: output
    mapping:
      counter: counter
`

const incrementPrompt = `---
id: inc
output:
  format: json
  schema:
    counter:
      type: number
      description: the incremented counter
---
COUNTER={{counter}}
`

// writeIncrementProject creates the increment sub-project on disk and a
// parent project whose branch node loops it.
func writeIncrementProject(t *testing.T, parentRoot string) {
	t.Helper()
	subDir := filepath.Join(parentRoot, "increment")
	require.NoError(t, os.MkdirAll(filepath.Join(subDir, "prompts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "agent.tml"), []byte(incrementManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "prompts", "inc.prompt"), []byte(incrementPrompt), 0o644))
}

func branchProject(root, loopWhile string, maxIterations int) *models.Project {
	return &models.Project{
		Name:        "looper",
		Root:        root,
		Defaults:    models.Defaults{Model: "mock/m1"},
		Entrypoints: []string{"input"},
		InputNodes:  map[string]*models.InputNode{"input": {ID: "input"}},
		OutputNodes: map[string]*models.OutputNode{"output": {ID: "output"}},
		Branches: map[string]*models.BranchNode{
			"loop1": {
				ID:            "loop1",
				WorkflowPath:  "increment",
				LoopWhile:     loopWhile,
				MaxIterations: maxIterations,
			},
		},
		Edges: map[string]*models.Edge{
			"e1": {ID: "e1", FromNode: "input", ToNode: "loop1", Mappings: []models.EdgeMapping{
				{TargetVar: "counter", SourceExpr: "counter"},
			}},
			"e2": {ID: "e2", FromNode: "loop1", ToNode: "output", Mappings: []models.EdgeMapping{
				{TargetVar: "counter", SourceExpr: "counter"},
			}},
		},
	}
}

func countIterationFiles(t *testing.T, root, runID, branchID string) int {
	t.Helper()
	dir := filepath.Join(root, ".trident", "runs", runID, "branches", branchID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	count := 0
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "iteration_") {
			count++
		}
	}
	return count
}

func TestBranchLoopToCompletion(t *testing.T) {
	root := t.TempDir()
	writeIncrementProject(t, root)
	proj := branchProject(root, "counter < 5", 10)

	mock := incrementMock()
	result, err := newTestEngine(mock).Run(context.Background(), proj, RunOptions{
		Inputs: map[string]any{"counter": 0},
	})
	require.NoError(t, err)
	require.True(t, result.Success(), result.Summary())

	out, ok := result.Outputs["output"].(map[string]any)
	require.True(t, ok, "outputs = %v", result.Outputs)
	assert.Equal(t, float64(5), out["counter"])

	assert.Equal(t, 5, countIterationFiles(t, root, result.Trace.RunID, "loop1"))
	assert.Equal(t, 5, mock.callCount())
}

func TestBranchMaxIterationsFailure(t *testing.T) {
	root := t.TempDir()
	writeIncrementProject(t, root)
	proj := branchProject(root, "counter < 100", 3)

	result, err := newTestEngine(incrementMock()).Run(context.Background(), proj, RunOptions{
		Inputs: map[string]any{"counter": 0},
	})
	require.NoError(t, err)
	require.False(t, result.Success())
	require.NotNil(t, result.Err)
	assert.Contains(t, result.Err.Error(), "Max iterations")

	var branchErr *models.BranchError
	require.ErrorAs(t, result.Err, &branchErr)
	assert.Equal(t, 3, branchErr.Iteration)
	assert.Equal(t, 3, branchErr.MaxIterations)

	assert.Equal(t, 3, countIterationFiles(t, root, result.Trace.RunID, "loop1"))
}

func TestBranchPreConditionSkips(t *testing.T) {
	root := t.TempDir()
	writeIncrementProject(t, root)
	proj := branchProject(root, "", 10)
	proj.Branches["loop1"].Condition = "counter > 100"

	mock := incrementMock()
	result, err := newTestEngine(mock).Run(context.Background(), proj, RunOptions{
		Inputs: map[string]any{"counter": 0},
	})
	require.NoError(t, err)
	require.True(t, result.Success(), result.Summary())

	// Inputs pass through the skipped branch to the output node.
	out, ok := result.Outputs["output"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0, mock.callCount())
	assert.Equal(t, float64(0), toFloat(out["counter"]))
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return -1
}

func linearChainProject(root string) *models.Project {
	return &models.Project{
		Name:        "chain",
		Root:        root,
		Defaults:    models.Defaults{Model: "mock/m1"},
		Entrypoints: []string{"input"},
		InputNodes:  map[string]*models.InputNode{"input": {ID: "input"}},
		OutputNodes: map[string]*models.OutputNode{"output": {ID: "output"}},
		Prompts: map[string]*models.PromptNode{
			"a": textPrompt("a", "{{v}}a"),
			"b": textPrompt("b", "{{v}}b"),
			"c": textPrompt("c", "{{v}}c"),
		},
		Edges: map[string]*models.Edge{
			"e1": {ID: "e1", FromNode: "input", ToNode: "a", Mappings: []models.EdgeMapping{
				{TargetVar: "v", SourceExpr: "v"},
			}},
			"e2": {ID: "e2", FromNode: "a", ToNode: "b", Mappings: []models.EdgeMapping{
				{TargetVar: "v", SourceExpr: "text"},
			}},
			"e3": {ID: "e3", FromNode: "b", ToNode: "c", Mappings: []models.EdgeMapping{
				{TargetVar: "v", SourceExpr: "text"},
			}},
			"e4": {ID: "e4", FromNode: "c", ToNode: "output", Mappings: []models.EdgeMapping{
				{TargetVar: "result", SourceExpr: "text"},
			}},
		},
	}
}

func TestCrashResume(t *testing.T) {
	// Reference run: uninterrupted execution of the 5-node chain.
	refRoot := t.TempDir()
	refMock := &mockProvider{}
	refResult, err := newTestEngine(refMock).Run(context.Background(), linearChainProject(refRoot), RunOptions{
		Inputs: map[string]any{"v": "x"},
	})
	require.NoError(t, err)
	require.True(t, refResult.Success(), refResult.Summary())
	assert.Equal(t, 3, refMock.callCount())

	expected := refResult.Outputs["output"].(map[string]any)
	assert.Equal(t, "xabc", expected["result"])

	// Crashed run: checkpoint records input, a, b as completed; the run
	// stopped before c.
	root := t.TempDir()
	proj := linearChainProject(root)

	mgr := newManagerForRun(t, root, "crashed-run")
	require.NoError(t, mgr.RegisterRun("chain", "input"))
	require.NoError(t, mgr.SaveCheckpoint(&models.Checkpoint{
		RunID:       "crashed-run",
		ProjectName: "chain",
		Status:      models.RunStatusInterrupted,
		CompletedNodes: map[string]models.CheckpointNodeData{
			"input": {Outputs: map[string]any{"v": "x"}},
			"a":     {Outputs: map[string]any{"text": "xa"}},
			"b":     {Outputs: map[string]any{"text": "xab"}},
		},
		PendingNodes: []string{"c", "output"},
		Inputs:       map[string]any{"v": "x"},
		Entrypoint:   "input",
	}))

	mock := &mockProvider{}
	result, err := newTestEngine(mock).Run(context.Background(), proj, RunOptions{
		Resume: ResumeLatest,
	})
	require.NoError(t, err)
	require.True(t, result.Success(), result.Summary())

	// Nodes 1-3 replayed; only c called the provider.
	assert.Equal(t, 1, mock.callCount())
	assert.Equal(t, expected, result.Outputs["output"])
	assert.Equal(t, "crashed-run", result.Trace.RunID)
}

func TestResumeCompletedRunMakesNoProviderCalls(t *testing.T) {
	root := t.TempDir()
	proj := linearChainProject(root)

	first := &mockProvider{}
	firstResult, err := newTestEngine(first).Run(context.Background(), proj, RunOptions{
		Inputs: map[string]any{"v": "x"},
	})
	require.NoError(t, err)
	require.True(t, firstResult.Success())

	second := &mockProvider{}
	secondResult, err := newTestEngine(second).Run(context.Background(), proj, RunOptions{
		Resume: firstResult.Trace.RunID,
	})
	require.NoError(t, err)
	require.True(t, secondResult.Success())
	assert.Equal(t, 0, second.callCount())
	assert.Equal(t, firstResult.Outputs, secondResult.Outputs)
}

func TestRunSetupErrors(t *testing.T) {
	root := t.TempDir()

	t.Run("no entrypoint", func(t *testing.T) {
		proj := linearChainProject(root)
		proj.Entrypoints = nil
		_, err := newTestEngine(&mockProvider{}).Run(context.Background(), proj, RunOptions{})
		assert.ErrorIs(t, err, models.ErrNoEntrypoint)
	})

	t.Run("unknown entrypoint", func(t *testing.T) {
		proj := linearChainProject(root)
		_, err := newTestEngine(&mockProvider{}).Run(context.Background(), proj, RunOptions{Entrypoint: "ghost"})
		assert.ErrorIs(t, err, models.ErrNodeNotFound)
	})

	t.Run("resume without checkpoint", func(t *testing.T) {
		proj := linearChainProject(t.TempDir())
		_, err := newTestEngine(&mockProvider{}).Run(context.Background(), proj, RunOptions{Resume: ResumeLatest})
		assert.ErrorIs(t, err, models.ErrCheckpointMissing)
	})

	t.Run("start-from requires checkpoint", func(t *testing.T) {
		proj := linearChainProject(t.TempDir())
		_, err := newTestEngine(&mockProvider{}).Run(context.Background(), proj, RunOptions{StartFrom: "c"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "checkpoint")
	})

	t.Run("cycle", func(t *testing.T) {
		proj := linearChainProject(t.TempDir())
		proj.Edges["back"] = &models.Edge{ID: "back", FromNode: "c", ToNode: "a"}
		_, err := newTestEngine(&mockProvider{}).Run(context.Background(), proj, RunOptions{})
		require.Error(t, err)
		var dagErr *models.DAGError
		assert.ErrorAs(t, err, &dagErr)
	})
}

func TestNodeFailureCapturedInResult(t *testing.T) {
	root := t.TempDir()
	proj := linearChainProject(root)

	mock := &mockProvider{
		complete: func(prompt string, cfg providers.CompletionConfig) (*providers.CompletionResult, error) {
			if strings.HasSuffix(prompt, "b") {
				return nil, &models.ProviderError{Provider: "mock", Message: "boom"}
			}
			return &providers.CompletionResult{Content: prompt}, nil
		},
	}

	result, err := newTestEngine(mock).Run(context.Background(), proj, RunOptions{
		Inputs: map[string]any{"v": "x"},
	})
	require.NoError(t, err)
	require.False(t, result.Success())
	require.NotNil(t, result.Err)
	assert.Equal(t, "b", result.Err.NodeID)
	assert.Equal(t, models.NodeTypePrompt, result.Err.NodeType)

	// c and output never ran.
	for _, node := range result.Trace.Nodes {
		assert.NotEqual(t, "c", node.ID)
	}

	// The checkpoint records the failure but keeps completed work.
	cp, loadErr := newManagerForRun(t, root, result.Trace.RunID).LoadCheckpoint()
	require.NoError(t, loadErr)
	require.NotNil(t, cp)
	assert.Equal(t, models.RunStatusFailed, cp.Status)
	assert.Contains(t, cp.CompletedNodes, "a")
}

func TestRequiredInputMissing(t *testing.T) {
	root := t.TempDir()
	proj := linearChainProject(root)
	proj.Prompts["a"].Inputs = map[string]models.InputField{
		"needed": {Name: "needed", Type: models.FieldTypeString, Required: true},
	}

	result, err := newTestEngine(&mockProvider{}).Run(context.Background(), proj, RunOptions{
		Inputs: map[string]any{"v": "x"},
	})
	require.NoError(t, err)
	require.False(t, result.Success())
	assert.Contains(t, result.Err.Error(), "needed")
}

func TestAgentDryRun(t *testing.T) {
	root := t.TempDir()
	proj := &models.Project{
		Name:        "agents",
		Root:        root,
		Defaults:    models.Defaults{Model: "mock/m1"},
		Entrypoints: []string{"input"},
		InputNodes:  map[string]*models.InputNode{"input": {ID: "input"}},
		OutputNodes: map[string]*models.OutputNode{"output": {ID: "output"}},
		Agents: map[string]*models.AgentNode{
			"worker": {
				ID:         "worker",
				PromptPath: "prompts/worker.prompt",
				MaxTurns:   5,
				Prompt: &models.PromptNode{
					ID:   "worker",
					Body: "do the thing with {{v}}",
					Output: models.OutputSchema{
						Format: models.OutputFormatJSON,
						Fields: map[string]models.FieldSpec{
							"done": {Type: models.FieldTypeBoolean},
						},
					},
				},
			},
		},
		Edges: map[string]*models.Edge{
			"e1": {ID: "e1", FromNode: "input", ToNode: "worker", Mappings: []models.EdgeMapping{
				{TargetVar: "v", SourceExpr: "v"},
			}},
			"e2": {ID: "e2", FromNode: "worker", ToNode: "output", Mappings: []models.EdgeMapping{
				{TargetVar: "done", SourceExpr: "done"},
			}},
		},
	}

	result, err := newTestEngine(&mockProvider{}).Run(context.Background(), proj, RunOptions{
		Inputs: map[string]any{"v": "x"},
		DryRun: true,
	})
	require.NoError(t, err)
	require.True(t, result.Success(), result.Summary())

	out := result.Outputs["output"].(map[string]any)
	assert.Equal(t, true, out["done"])
}

func TestTriggerWaitMode(t *testing.T) {
	root := t.TempDir()
	writeIncrementProject(t, root)

	proj := &models.Project{
		Name:        "triggering",
		Root:        root,
		Defaults:    models.Defaults{Model: "mock/m1"},
		Entrypoints: []string{"input"},
		InputNodes:  map[string]*models.InputNode{"input": {ID: "input"}},
		OutputNodes: map[string]*models.OutputNode{"output": {ID: "output"}},
		Triggers: map[string]*models.TriggerNode{
			"fire": {
				ID:           "fire",
				WorkflowPath: "increment",
				Mode:         models.TriggerModeWait,
				PassOutputs:  true,
			},
		},
		Edges: map[string]*models.Edge{
			"e1": {ID: "e1", FromNode: "input", ToNode: "fire", Mappings: []models.EdgeMapping{
				{TargetVar: "counter", SourceExpr: "counter"},
			}},
			"e2": {ID: "e2", FromNode: "fire", ToNode: "output", Mappings: []models.EdgeMapping{
				{TargetVar: "status", SourceExpr: "status"},
				{TargetVar: "triggered", SourceExpr: "triggered"},
			}},
		},
	}

	result, err := newTestEngine(incrementMock()).Run(context.Background(), proj, RunOptions{
		Inputs: map[string]any{"counter": 1},
	})
	require.NoError(t, err)
	require.True(t, result.Success(), result.Summary())

	out := result.Outputs["output"].(map[string]any)
	assert.Equal(t, "completed", out["status"])
	assert.Equal(t, true, out["triggered"])
}

func TestStartFromReusesAncestors(t *testing.T) {
	root := t.TempDir()
	proj := linearChainProject(root)

	first := &mockProvider{}
	firstResult, err := newTestEngine(first).Run(context.Background(), proj, RunOptions{
		Inputs: map[string]any{"v": "x"},
	})
	require.NoError(t, err)
	require.True(t, firstResult.Success())

	second := &mockProvider{}
	result, err := newTestEngine(second).Run(context.Background(), proj, RunOptions{
		Resume:    firstResult.Trace.RunID,
		StartFrom: "c",
	})
	require.NoError(t, err)
	require.True(t, result.Success(), result.Summary())

	// Ancestors of c (input, a, b) replay; c and output re-execute.
	assert.Equal(t, 1, second.callCount())
	assert.Equal(t, firstResult.Outputs, result.Outputs)
}

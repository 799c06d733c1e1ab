package artifacts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groksrc/trident/pkg/models"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	cfg := DefaultConfig(root)
	cfg.EmitSignals = true
	return NewManager(cfg, "run-1"), root
}

func TestCheckpointRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)

	cost := 0.42
	cp := &models.Checkpoint{
		RunID:       "run-1",
		ProjectName: "demo",
		StartedAt:   time.Now().UTC().Truncate(time.Second),
		UpdatedAt:   time.Now().UTC().Truncate(time.Second),
		Status:      models.RunStatusRunning,
		CompletedNodes: map[string]models.CheckpointNodeData{
			"a": {
				Outputs:     map[string]any{"text": "hello"},
				CompletedAt: time.Now().UTC().Truncate(time.Second),
				SessionID:   "sess-1",
				CostUSD:     &cost,
				NumTurns:    3,
			},
		},
		PendingNodes: []string{"b", "c"},
		TotalCostUSD: 0.42,
		Inputs:       map[string]any{"x": float64(1)},
		Entrypoint:   "input",
		BranchStates: map[string]int{"loop1": 2},
	}

	require.NoError(t, m.SaveCheckpoint(cp))

	loaded, err := m.LoadCheckpoint()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, cp.RunID, loaded.RunID)
	assert.Equal(t, cp.Status, loaded.Status)
	assert.Equal(t, cp.PendingNodes, loaded.PendingNodes)
	assert.Equal(t, cp.Inputs, loaded.Inputs)
	assert.Equal(t, cp.BranchStates, loaded.BranchStates)
	require.Contains(t, loaded.CompletedNodes, "a")
	assert.Equal(t, "sess-1", loaded.CompletedNodes["a"].SessionID)
	assert.Equal(t, 3, loaded.CompletedNodes["a"].NumTurns)
	require.NotNil(t, loaded.CompletedNodes["a"].CostUSD)
	assert.InDelta(t, 0.42, *loaded.CompletedNodes["a"].CostUSD, 1e-9)
}

func TestLoadCheckpointMissing(t *testing.T) {
	m, _ := newTestManager(t)
	cp, err := m.LoadCheckpoint()
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestRunManifestLifecycle(t *testing.T) {
	m, root := newTestManager(t)

	require.NoError(t, m.RegisterRun("demo", "input"))
	success := true
	require.NoError(t, m.UpdateRunStatus(models.RunStatusCompleted, &success, ""))

	manifest := LoadRunManifest(root)
	require.Len(t, manifest.Runs, 1)
	entry := manifest.Runs[0]
	assert.Equal(t, "run-1", entry.RunID)
	assert.Equal(t, models.RunStatusCompleted, entry.Status)
	require.NotNil(t, entry.Success)
	assert.True(t, *entry.Success)
	require.NotNil(t, entry.EndedAt)

	assert.Equal(t, "run-1", FindLatestRun(root))
}

func TestSignalsEmitClearRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)

	path, err := m.EmitSignal(models.SignalCompleted, "demo", "/tmp/outputs.json", map[string]any{"k": "v"})
	require.NoError(t, err)
	require.NotEmpty(t, path)
	assert.Equal(t, "demo.completed", filepath.Base(path))

	// Round-trip law: load(path(w, t)).type == t and .workflow == w.
	signal, err := LoadSignal(path)
	require.NoError(t, err)
	assert.Equal(t, models.SignalCompleted, signal.SignalType)
	assert.Equal(t, "demo", signal.Workflow)
	assert.Equal(t, "run-1", signal.RunID)
	assert.Equal(t, "/tmp/outputs.json", signal.OutputsPath)

	// Re-emission overwrites the single (workflow, type) file.
	path2, err := m.EmitSignal(models.SignalCompleted, "demo", "/tmp/other.json", nil)
	require.NoError(t, err)
	assert.Equal(t, path, path2)
	signal, err = LoadSignal(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.json", signal.OutputsPath)

	require.NoError(t, m.ClearSignals("demo"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestEmitSignalDisabled(t *testing.T) {
	root := t.TempDir()
	m := NewManager(DefaultConfig(root), "run-1")

	path, err := m.EmitSignal(models.SignalStarted, "demo", "", nil)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestBranchIterations(t *testing.T) {
	m, _ := newTestManager(t)

	for i := 1; i <= 3; i++ {
		ended := time.Now().UTC()
		require.NoError(t, m.SaveBranchIteration("loop1", &models.BranchIterationState{
			BranchID:  "loop1",
			Iteration: i,
			Inputs:    map[string]any{"counter": float64(i - 1)},
			Outputs:   map[string]any{"counter": float64(i)},
			StartedAt: time.Now().UTC(),
			EndedAt:   &ended,
			Success:   true,
		}))
	}

	iterations, err := m.LoadBranchIterations("loop1")
	require.NoError(t, err)
	require.Len(t, iterations, 3)
	for i, iter := range iterations {
		assert.Equal(t, i+1, iter.Iteration)
	}

	latest, err := m.LatestIteration("loop1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 3, latest.Iteration)
	assert.Equal(t, float64(3), latest.Outputs["counter"])
}

func TestSaveOutputsPublishAndAlias(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig(root)
	cfg.Orchestration = &models.OrchestrationConfig{
		PublishPath:    "published/latest.json",
		PublishAlias:   "demo",
		SignalsEnabled: true,
		SignalsDir:     models.DefaultSignalsDir,
	}
	m := NewManager(cfg, "run-1")

	outputs := map[string]any{"output": map[string]any{"status": "ok"}}
	canonical, err := m.SaveOutputs(outputs, "demo", "")
	require.NoError(t, err)
	assert.FileExists(t, canonical)

	publishPath := filepath.Join(root, "published", "latest.json")
	assert.FileExists(t, publishPath)

	aliasPath := filepath.Join(root, ".trident", "outputs", "demo.json")
	target, err := os.Readlink(aliasPath)
	require.NoError(t, err)
	assert.Equal(t, publishPath, target)

	// The alias resolves through input-source resolution.
	resolved, err := ResolveInputSource("alias:demo", root)
	require.NoError(t, err)
	assert.Equal(t, "ok", resolved["output"].(map[string]any)["status"])
}

func TestSaveOutputsPublishToOverride(t *testing.T) {
	root := t.TempDir()
	m := NewManager(DefaultConfig(root), "run-1")

	_, err := m.SaveOutputs(map[string]any{"k": "v"}, "demo", "override/out.json")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "override", "out.json"))
}

func TestResolveInputSource(t *testing.T) {
	root := t.TempDir()

	t.Run("plain relative path", func(t *testing.T) {
		path := filepath.Join(root, "inputs.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"x": 1}`), 0o644))
		data, err := ResolveInputSource("inputs.json", root)
		require.NoError(t, err)
		assert.Equal(t, float64(1), data["x"])
	})

	t.Run("run id", func(t *testing.T) {
		runDir := filepath.Join(root, ".trident", "runs", "r9")
		require.NoError(t, os.MkdirAll(runDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(runDir, "outputs.json"), []byte(`{"y": 2}`), 0o644))
		data, err := ResolveInputSource("run:r9", root)
		require.NoError(t, err)
		assert.Equal(t, float64(2), data["y"])
	})

	t.Run("missing source", func(t *testing.T) {
		_, err := ResolveInputSource("nope.json", root)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

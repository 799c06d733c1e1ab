// Package artifacts owns the per-run directory layout under the project's
// .trident root: checkpoints, traces, outputs, metadata, branch iteration
// state, the run manifest, orchestration signals, and published outputs.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/groksrc/trident/pkg/models"
)

// Version recorded in run metadata.
const Version = "0.1"

// Config controls what an ArtifactManager persists and where.
type Config struct {
	// BaseDir is the artifact root, usually <project>/.trident.
	BaseDir     string
	ProjectRoot string

	PersistTrace       bool
	PersistOutputs     bool
	PersistCheckpoint  bool
	PersistBranchState bool
	EmitSignals        bool

	Orchestration *models.OrchestrationConfig
}

// DefaultConfig returns a config that persists everything under
// <projectRoot>/.trident and leaves signal emission off.
func DefaultConfig(projectRoot string) Config {
	return Config{
		BaseDir:            filepath.Join(projectRoot, ".trident"),
		ProjectRoot:        projectRoot,
		PersistTrace:       true,
		PersistOutputs:     true,
		PersistCheckpoint:  true,
		PersistBranchState: true,
	}
}

// Manager persists all artifacts for a single run.
type Manager struct {
	cfg      Config
	runID    string
	manifest *models.RunManifest
}

// NewManager creates an artifact manager for a run.
func NewManager(cfg Config, runID string) *Manager {
	return &Manager{cfg: cfg, runID: runID}
}

// RunID returns the run this manager serves.
func (m *Manager) RunID() string { return m.runID }

// Config returns the manager's configuration.
func (m *Manager) Config() Config { return m.cfg }

// RunsDir is the directory containing all runs.
func (m *Manager) RunsDir() string { return filepath.Join(m.cfg.BaseDir, "runs") }

// RunDir is the directory for this specific run.
func (m *Manager) RunDir() string { return filepath.Join(m.RunsDir(), m.runID) }

// ManifestPath is the path to the run manifest.
func (m *Manager) ManifestPath() string { return filepath.Join(m.RunsDir(), "manifest.json") }

// CheckpointPath is the path to this run's checkpoint.
func (m *Manager) CheckpointPath() string { return filepath.Join(m.RunDir(), "checkpoint.json") }

// TracePath is the path to this run's execution trace.
func (m *Manager) TracePath() string { return filepath.Join(m.RunDir(), "trace.json") }

// OutputsPath is the canonical path to this run's outputs.
func (m *Manager) OutputsPath() string { return filepath.Join(m.RunDir(), "outputs.json") }

// MetadataPath is the path to this run's metadata.
func (m *Manager) MetadataPath() string { return filepath.Join(m.RunDir(), "metadata.json") }

// SignalsDir resolves the orchestration signals directory, honoring the
// manifest override and resolving relative paths against the project root.
func (m *Manager) SignalsDir() string {
	dir := models.DefaultSignalsDir
	if m.cfg.Orchestration != nil && m.cfg.Orchestration.SignalsDir != "" {
		dir = m.cfg.Orchestration.SignalsDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	root := m.cfg.ProjectRoot
	if root == "" {
		root = filepath.Dir(m.cfg.BaseDir)
	}
	return filepath.Join(root, dir)
}

// OutputsPublishDir is the directory holding alias symlinks to published
// outputs.
func (m *Manager) OutputsPublishDir() string {
	root := m.cfg.ProjectRoot
	if root == "" {
		root = filepath.Dir(m.cfg.BaseDir)
	}
	return filepath.Join(root, ".trident", "outputs")
}

// BranchDir is the directory for a branch's iteration states.
func (m *Manager) BranchDir(branchID string) string {
	return filepath.Join(m.RunDir(), "branches", branchID)
}

// IterationPath is the path to one branch iteration state file.
func (m *Manager) IterationPath(branchID string, iteration int) string {
	return filepath.Join(m.BranchDir(branchID), fmt.Sprintf("iteration_%d.json", iteration))
}

// BranchRunDir is the nested artifact root for one sub-workflow iteration.
func (m *Manager) BranchRunDir(branchID string, iteration int) string {
	return filepath.Join(m.RunDir(), "branches", branchID, fmt.Sprintf("iter_%d", iteration))
}

// writeJSON writes v as 2-space indented UTF-8 JSON atomically: the file
// is staged next to its destination and renamed into place.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (m *Manager) loadManifest() *models.RunManifest {
	if m.manifest != nil {
		return m.manifest
	}
	manifest := &models.RunManifest{Version: "1"}
	if err := readJSON(m.ManifestPath(), manifest); err != nil || manifest.Version == "" {
		// Missing or corrupted manifest starts fresh.
		manifest = &models.RunManifest{Version: "1"}
	}
	m.manifest = manifest
	return manifest
}

func (m *Manager) saveManifest() error {
	if m.manifest == nil {
		return nil
	}
	return writeJSON(m.ManifestPath(), m.manifest)
}

// RegisterRun upserts this run into the manifest with status running.
func (m *Manager) RegisterRun(projectName, entrypoint string) error {
	manifest := m.loadManifest()
	manifest.AddRun(&models.RunEntry{
		RunID:       m.runID,
		ProjectName: projectName,
		Entrypoint:  entrypoint,
		Status:      models.RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	})
	return m.saveManifest()
}

// UpdateRunStatus sets the run's final status, end time, and error summary.
func (m *Manager) UpdateRunStatus(status string, success *bool, errorSummary string) error {
	manifest := m.loadManifest()
	entry := manifest.GetRun(m.runID)
	if entry == nil {
		return nil
	}
	now := time.Now().UTC()
	entry.Status = status
	entry.EndedAt = &now
	entry.Success = success
	entry.ErrorSummary = errorSummary
	return m.saveManifest()
}

// SaveCheckpoint atomically persists the checkpoint.
func (m *Manager) SaveCheckpoint(cp *models.Checkpoint) error {
	if !m.cfg.PersistCheckpoint {
		return nil
	}
	return writeJSON(m.CheckpointPath(), cp)
}

// LoadCheckpoint loads the run's checkpoint, or nil when none exists.
func (m *Manager) LoadCheckpoint() (*models.Checkpoint, error) {
	cp := &models.Checkpoint{}
	if err := readJSON(m.CheckpointPath(), cp); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return cp, nil
}

// SaveTrace persists the execution trace.
func (m *Manager) SaveTrace(trace *models.ExecutionTrace) error {
	if !m.cfg.PersistTrace {
		return nil
	}
	return writeJSON(m.TracePath(), trace)
}

// SaveMetadata persists the run metadata.
func (m *Manager) SaveMetadata(meta *models.RunMetadata) error {
	return writeJSON(m.MetadataPath(), meta)
}

// SaveOutputs writes the canonical outputs file, then publishes to the
// orchestration publish path (or the CLI override), maintains the alias
// symlink, and mirrors to the export path when configured.
func (m *Manager) SaveOutputs(outputs map[string]any, workflowName, publishTo string) (string, error) {
	if !m.cfg.PersistOutputs {
		return m.OutputsPath(), nil
	}
	if err := writeJSON(m.OutputsPath(), outputs); err != nil {
		return "", err
	}

	root := m.cfg.ProjectRoot
	if root == "" {
		root = filepath.Dir(m.cfg.BaseDir)
	}
	orch := m.cfg.Orchestration

	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(root, p)
	}

	switch {
	case publishTo != "":
		if err := writeJSON(resolve(publishTo), outputs); err != nil {
			return "", err
		}
	case orch != nil && orch.PublishPath != "":
		publishPath := resolve(orch.PublishPath)
		if err := writeJSON(publishPath, outputs); err != nil {
			return "", err
		}
		if orch.PublishAlias != "" && workflowName != "" {
			aliasPath := filepath.Join(m.OutputsPublishDir(), orch.PublishAlias+".json")
			if err := os.MkdirAll(filepath.Dir(aliasPath), 0o755); err != nil {
				return "", err
			}
			_ = os.Remove(aliasPath)
			if err := os.Symlink(publishPath, aliasPath); err != nil {
				return "", err
			}
		}
	}

	if orch != nil && orch.ExportPath != "" {
		if err := writeJSON(orch.ExportPath, outputs); err != nil {
			return "", err
		}
	}

	return m.OutputsPath(), nil
}

// SaveBranchIteration persists one branch loop iteration.
func (m *Manager) SaveBranchIteration(branchID string, state *models.BranchIterationState) error {
	if !m.cfg.PersistBranchState {
		return nil
	}
	return writeJSON(m.IterationPath(branchID, state.Iteration), state)
}

// LoadBranchIterations loads every persisted iteration for a branch,
// ordered by iteration index. Unreadable files are skipped.
func (m *Manager) LoadBranchIterations(branchID string) ([]*models.BranchIterationState, error) {
	entries, err := os.ReadDir(m.BranchDir(branchID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var iterations []*models.BranchIterationState
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "iteration_") {
			continue
		}
		state := &models.BranchIterationState{}
		if err := readJSON(filepath.Join(m.BranchDir(branchID), entry.Name()), state); err != nil {
			continue
		}
		iterations = append(iterations, state)
	}
	sort.Slice(iterations, func(i, j int) bool {
		return iterations[i].Iteration < iterations[j].Iteration
	})
	return iterations, nil
}

// LatestIteration returns the most recent iteration state, or nil.
func (m *Manager) LatestIteration(branchID string) (*models.BranchIterationState, error) {
	iterations, err := m.LoadBranchIterations(branchID)
	if err != nil || len(iterations) == 0 {
		return nil, err
	}
	return iterations[len(iterations)-1], nil
}

// EmitSignal writes one signal file for (workflow, type), overwriting any
// previous emission. Returns the path, or "" when emission is disabled.
func (m *Manager) EmitSignal(signalType, workflowName, outputsPath string, metadata map[string]any) (string, error) {
	if !m.cfg.EmitSignals {
		return "", nil
	}
	signal := &models.Signal{
		SignalType:  signalType,
		RunID:       m.runID,
		Timestamp:   time.Now().UTC(),
		Workflow:    workflowName,
		OutputsPath: outputsPath,
		Metadata:    metadata,
	}
	path := filepath.Join(m.SignalsDir(), fmt.Sprintf("%s.%s", workflowName, signalType))
	if err := writeJSON(path, signal); err != nil {
		return "", err
	}
	return path, nil
}

// ClearSignals removes every signal for a workflow. Called at run start to
// invalidate stale signals.
func (m *Manager) ClearSignals(workflowName string) error {
	for _, signalType := range []string{
		models.SignalStarted, models.SignalCompleted, models.SignalFailed, models.SignalReady,
	} {
		path := filepath.Join(m.SignalsDir(), fmt.Sprintf("%s.%s", workflowName, signalType))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// LoadSignal reads and parses a signal file.
func LoadSignal(path string) (*models.Signal, error) {
	signal := &models.Signal{}
	if err := readJSON(path, signal); err != nil {
		return nil, err
	}
	return signal, nil
}

// LoadRunManifest loads the manifest of a project root, empty when absent.
func LoadRunManifest(projectRoot string) *models.RunManifest {
	manifest := &models.RunManifest{Version: "1"}
	path := filepath.Join(projectRoot, ".trident", "runs", "manifest.json")
	if err := readJSON(path, manifest); err != nil || manifest.Version == "" {
		return &models.RunManifest{Version: "1"}
	}
	return manifest
}

// FindLatestRun returns the most recent run id for a project, or "".
func FindLatestRun(projectRoot string) string {
	return FindLatestRunInBase(filepath.Join(projectRoot, ".trident"))
}

// FindLatestRunInBase returns the most recent run id under an explicit
// artifact root, or "".
func FindLatestRunInBase(baseDir string) string {
	manifest := &models.RunManifest{}
	if err := readJSON(filepath.Join(baseDir, "runs", "manifest.json"), manifest); err != nil {
		return ""
	}
	if latest := manifest.Latest(); latest != nil {
		return latest.RunID
	}
	return ""
}

// ResolveInputSource loads input data from one of three source forms:
// a plain path (absolute or project-relative), alias:<name>, or run:<id>.
func ResolveInputSource(source, projectRoot string) (map[string]any, error) {
	var path string
	switch {
	case strings.HasPrefix(source, "alias:"):
		alias := strings.TrimPrefix(source, "alias:")
		path = filepath.Join(projectRoot, ".trident", "outputs", alias+".json")
	case strings.HasPrefix(source, "run:"):
		runID := strings.TrimPrefix(source, "run:")
		path = filepath.Join(projectRoot, ".trident", "runs", runID, "outputs.json")
	default:
		path = source
		if !filepath.IsAbs(path) {
			path = filepath.Join(projectRoot, path)
		}
	}

	var data map[string]any
	if err := readJSON(path, &data); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("input source not found: %s", path)
		}
		return nil, err
	}
	return data, nil
}

package models

import "time"

// Run statuses recorded in checkpoints and the run manifest.
const (
	RunStatusRunning     = "running"
	RunStatusInterrupted = "interrupted"
	RunStatusCompleted   = "completed"
	RunStatusFailed      = "failed"
)

// CheckpointNodeData is the persisted record of one completed node.
type CheckpointNodeData struct {
	Outputs     map[string]any `json:"outputs"`
	CompletedAt time.Time      `json:"completed_at"`
	SessionID   string         `json:"session_id,omitempty"`
	CostUSD     *float64       `json:"cost_usd,omitempty"`
	NumTurns    int            `json:"num_turns,omitempty"`
}

// Checkpoint is the durable execution state of a run. Written at the end of
// every level with the nodes completed so far; a resume replays completed
// nodes and continues from the first unfinished one.
type Checkpoint struct {
	RunID          string                        `json:"run_id"`
	ProjectName    string                        `json:"project_name"`
	StartedAt      time.Time                     `json:"started_at"`
	UpdatedAt      time.Time                     `json:"updated_at"`
	Status         string                        `json:"status"`
	CompletedNodes map[string]CheckpointNodeData `json:"completed_nodes"`
	PendingNodes   []string                      `json:"pending_nodes"`
	TotalCostUSD   float64                       `json:"total_cost_usd"`
	Inputs         map[string]any                `json:"inputs,omitempty"`
	Entrypoint     string                        `json:"entrypoint,omitempty"`
	// BranchStates maps branch id to the last completed iteration index,
	// so a resumed loop never re-executes a finished iteration.
	BranchStates map[string]int `json:"branch_states,omitempty"`
}

// MarkCompleted records a node as done and drops it from the pending set.
func (c *Checkpoint) MarkCompleted(nodeID string, data CheckpointNodeData) {
	if c.CompletedNodes == nil {
		c.CompletedNodes = make(map[string]CheckpointNodeData)
	}
	c.CompletedNodes[nodeID] = data
	pending := c.PendingNodes[:0]
	for _, id := range c.PendingNodes {
		if id != nodeID {
			pending = append(pending, id)
		}
	}
	c.PendingNodes = pending
	c.UpdatedAt = time.Now().UTC()
}

// BranchIterationState persists one iteration of a branch loop.
type BranchIterationState struct {
	BranchID  string         `json:"branch_id"`
	Iteration int            `json:"iteration"`
	Inputs    map[string]any `json:"inputs"`
	Outputs   map[string]any `json:"outputs"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
}

// RunEntry is one row of the run manifest.
type RunEntry struct {
	RunID        string     `json:"run_id"`
	ProjectName  string     `json:"project_name"`
	Entrypoint   string     `json:"entrypoint,omitempty"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Success      *bool      `json:"success,omitempty"`
	ErrorSummary string     `json:"error_summary,omitempty"`
}

// RunManifest indexes every run of a project, oldest first.
type RunManifest struct {
	Version string      `json:"version"`
	Runs    []*RunEntry `json:"runs"`
}

// AddRun upserts an entry by run id.
func (m *RunManifest) AddRun(entry *RunEntry) {
	for i, run := range m.Runs {
		if run.RunID == entry.RunID {
			m.Runs[i] = entry
			return
		}
	}
	m.Runs = append(m.Runs, entry)
}

// GetRun returns the entry for a run id, or nil.
func (m *RunManifest) GetRun(runID string) *RunEntry {
	for _, run := range m.Runs {
		if run.RunID == runID {
			return run
		}
	}
	return nil
}

// Latest returns the most recent entry, or nil when no runs exist.
func (m *RunManifest) Latest() *RunEntry {
	if len(m.Runs) == 0 {
		return nil
	}
	return m.Runs[len(m.Runs)-1]
}

// RunMetadata describes a single run for humans and tooling.
type RunMetadata struct {
	RunID       string         `json:"run_id"`
	ProjectName string         `json:"project_name"`
	ProjectRoot string         `json:"project_root"`
	Entrypoint  string         `json:"entrypoint,omitempty"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     *time.Time     `json:"ended_at,omitempty"`
	Version     string         `json:"trident_version"`
}

// Signal types emitted through the orchestration substrate.
const (
	SignalStarted   = "started"
	SignalCompleted = "completed"
	SignalFailed    = "failed"
	SignalReady     = "ready"
)

// Signal is a filesystem marker indicating a workflow-wide state
// transition, observable by independent runs.
type Signal struct {
	SignalType  string         `json:"signal_type"`
	RunID       string         `json:"run_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Workflow    string         `json:"workflow"`
	OutputsPath string         `json:"outputs_path,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

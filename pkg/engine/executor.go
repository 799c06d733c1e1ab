package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/groksrc/trident/internal/logger"
	"github.com/groksrc/trident/internal/tracing"
	"github.com/groksrc/trident/pkg/artifacts"
	"github.com/groksrc/trident/pkg/dag"
	"github.com/groksrc/trident/pkg/models"
	"github.com/groksrc/trident/pkg/tools"
)

// Run executes a project. Node failures never propagate to the caller:
// they are captured as a NodeExecutionError inside the result. Run errors
// only on setup problems (missing entrypoint, DAG cycle, missing resume
// target).
func (e *Engine) Run(ctx context.Context, project *models.Project, opts RunOptions) (*models.ExecutionResult, error) {
	log := logger.Default().With("workflow", project.Name)

	graph, err := dag.Build(project)
	if err != nil {
		return nil, err
	}

	entrypoint := opts.Entrypoint
	if entrypoint == "" {
		if len(project.Entrypoints) == 0 {
			return nil, models.ErrNoEntrypoint
		}
		entrypoint = project.Entrypoints[0]
	}
	if _, ok := graph.Nodes[entrypoint]; !ok {
		return nil, fmt.Errorf("entrypoint %q: %w", entrypoint, models.ErrNodeNotFound)
	}

	cfg := artifacts.DefaultConfig(project.Root)
	if opts.ArtifactDir != "" {
		cfg.BaseDir = opts.ArtifactDir
	}
	cfg.EmitSignals = opts.EmitSignals
	cfg.Orchestration = project.Orchestration
	if opts.NoArtifacts {
		cfg.PersistTrace = false
		cfg.PersistOutputs = false
		cfg.PersistCheckpoint = false
		cfg.PersistBranchState = false
		cfg.EmitSignals = false
	}

	// Resume target resolution happens before the run id is fixed.
	var checkpoint *models.Checkpoint
	resumedRunID := ""
	if opts.Resume != "" {
		resumedRunID = opts.Resume
		if resumedRunID == ResumeLatest {
			resumedRunID = latestRun(cfg.BaseDir)
			if resumedRunID == "" {
				return nil, models.ErrCheckpointMissing
			}
		}
		checkpoint, err = artifacts.NewManager(cfg, resumedRunID).LoadCheckpoint()
		if err != nil {
			return nil, err
		}
		if checkpoint == nil {
			return nil, fmt.Errorf("run %s: %w", resumedRunID, models.ErrCheckpointMissing)
		}
		if checkpoint.Status == models.RunStatusRunning {
			checkpoint.Status = models.RunStatusInterrupted
		}
	}

	// Run id: explicit argument > resumed checkpoint > new UUID.
	runID := opts.RunID
	if runID == "" {
		runID = resumedRunID
	}
	if runID == "" {
		runID = uuid.New().String()
	}

	manager := artifacts.NewManager(cfg, runID)

	inputs := opts.Inputs
	if inputs == nil && checkpoint != nil {
		inputs = checkpoint.Inputs
	}
	if inputs == nil {
		inputs = map[string]any{}
	}

	// Start-from: reuse only the checkpointed ancestors of the target;
	// everything else executes fresh.
	reuse := make(map[string]bool)
	if opts.StartFrom != "" {
		if _, ok := graph.Nodes[opts.StartFrom]; !ok {
			return nil, fmt.Errorf("start-from node %q: %w", opts.StartFrom, models.ErrNodeNotFound)
		}
		if checkpoint == nil {
			return nil, fmt.Errorf("start-from %q requires a resumed checkpoint", opts.StartFrom)
		}
		for ancestor := range graph.Ancestors(opts.StartFrom) {
			if _, ok := checkpoint.CompletedNodes[ancestor]; !ok {
				return nil, fmt.Errorf("start-from ancestor %q not present in checkpoint", ancestor)
			}
			reuse[ancestor] = true
		}
	} else if checkpoint != nil {
		for nodeID := range checkpoint.CompletedNodes {
			reuse[nodeID] = true
		}
	}

	if checkpoint == nil {
		pending := append([]string(nil), graph.ExecutionOrder...)
		checkpoint = &models.Checkpoint{
			RunID:          runID,
			ProjectName:    project.Name,
			StartedAt:      time.Now().UTC(),
			UpdatedAt:      time.Now().UTC(),
			Status:         models.RunStatusRunning,
			CompletedNodes: make(map[string]models.CheckpointNodeData),
			PendingNodes:   pending,
			Inputs:         inputs,
			Entrypoint:     entrypoint,
			BranchStates:   make(map[string]int),
		}
	} else {
		checkpoint.RunID = runID
		checkpoint.Status = models.RunStatusRunning
		if checkpoint.BranchStates == nil {
			checkpoint.BranchStates = make(map[string]int)
		}
	}

	if cfg.EmitSignals {
		if err := manager.ClearSignals(project.Name); err != nil {
			return nil, err
		}
		if _, err := manager.EmitSignal(models.SignalStarted, project.Name, "", nil); err != nil {
			return nil, err
		}
	}

	meta := &models.RunMetadata{
		RunID:       runID,
		ProjectName: project.Name,
		ProjectRoot: project.Root,
		Entrypoint:  entrypoint,
		Inputs:      inputs,
		StartedAt:   time.Now().UTC(),
		Version:     artifacts.Version,
	}
	if !opts.NoArtifacts {
		if err := manager.RegisterRun(project.Name, entrypoint); err != nil {
			return nil, err
		}
		if err := manager.SaveMetadata(meta); err != nil {
			return nil, err
		}
	}

	state := &executionState{
		project:     project,
		dag:         graph,
		artifacts:   manager,
		trace:       &models.ExecutionTrace{RunID: runID, StartTime: time.Now().UTC()},
		checkpoint:  checkpoint,
		tools:       tools.NewRunner(project.Root),
		nodeOutputs: make(map[string]map[string]any),
		skipped:     make(map[string]bool),
		reuse:       reuse,
	}

	// Seed every declared input node.
	for nodeID := range project.InputNodes {
		seeded := make(map[string]any, len(inputs))
		for k, v := range inputs {
			seeded[k] = v
		}
		state.setNodeOutput(nodeID, seeded)
	}

	ctx, span := tracing.Tracer().Start(ctx, "trident.run")
	defer span.End()

	execErr := e.runLevels(ctx, state, opts, log)

	outputs := finalOutputs(state)
	now := time.Now().UTC()
	state.trace.EndTime = &now

	if execErr != nil {
		state.trace.Error = execErr.Error()
		checkpoint.Status = models.RunStatusFailed
	} else {
		checkpoint.Status = models.RunStatusCompleted
	}
	checkpoint.UpdatedAt = now

	if !opts.NoArtifacts {
		meta.EndedAt = &now
		if err := manager.SaveMetadata(meta); err != nil {
			log.Error("failed to save metadata", "error", err)
		}
		if err := manager.SaveCheckpoint(checkpoint); err != nil {
			log.Error("failed to save checkpoint", "error", err)
		}
		if err := manager.SaveTrace(state.trace); err != nil {
			log.Error("failed to save trace", "error", err)
		}
		outputsPath, err := manager.SaveOutputs(outputs, project.Name, opts.PublishTo)
		if err != nil {
			log.Error("failed to save outputs", "error", err)
		}
		if execErr != nil {
			success := false
			_ = manager.UpdateRunStatus(models.RunStatusFailed, &success, execErr.Error())
			if cfg.EmitSignals {
				_, _ = manager.EmitSignal(models.SignalFailed, project.Name, "", nil)
			}
		} else {
			success := true
			_ = manager.UpdateRunStatus(models.RunStatusCompleted, &success, "")
			if cfg.EmitSignals {
				_, _ = manager.EmitSignal(models.SignalCompleted, project.Name, outputsPath, nil)
				if project.Orchestration != nil && project.Orchestration.PublishPath != "" {
					_, _ = manager.EmitSignal(models.SignalReady, project.Name, outputsPath, nil)
				}
			}
		}
	}

	return &models.ExecutionResult{Outputs: outputs, Trace: state.trace, Err: execErr}, nil
}

// latestRun finds the newest run id under an artifact root.
func latestRun(baseDir string) string {
	return artifacts.FindLatestRunInBase(baseDir)
}

type levelResult struct {
	nodeID string
	trace  *models.NodeTrace
	err    error
}

// runLevels iterates execution levels in order, dispatching each level's
// nodes concurrently. Execution is fail-fast per run but level-complete:
// a failing node does not cancel its siblings, and later levels are
// skipped.
func (e *Engine) runLevels(ctx context.Context, state *executionState, opts RunOptions, log *logger.Logger) *models.NodeExecutionError {
	for _, level := range state.dag.ExecutionLevels {
		if err := ctx.Err(); err != nil {
			return &models.NodeExecutionError{NodeID: "execution", Cause: err}
		}

		var execute []string
		for _, nodeID := range level {
			if state.reuse[nodeID] {
				e.replayFromCheckpoint(state, nodeID)
				continue
			}
			execute = append(execute, nodeID)
		}

		results := make(chan levelResult, len(execute))
		for _, nodeID := range execute {
			go func(id string) {
				trace, err := e.dispatchNode(ctx, state, id, opts, log)
				results <- levelResult{nodeID: id, trace: trace, err: err}
			}(nodeID)
		}

		byNode := make(map[string]levelResult, len(execute))
		for range execute {
			r := <-results
			byNode[r.nodeID] = r
		}

		// Results are processed in stable node-id order so traces are
		// deterministic for deterministic nodes.
		sort.Strings(execute)
		var failure *models.NodeExecutionError
		for _, nodeID := range execute {
			r := byNode[nodeID]
			state.trace.Nodes = append(state.trace.Nodes, r.trace)

			if r.err != nil {
				if failure == nil {
					nodeType, _ := state.project.NodeTypeOf(nodeID)
					failure = &models.NodeExecutionError{
						NodeID:   nodeID,
						NodeType: nodeType,
						Inputs:   r.trace.Input,
						Cause:    r.err,
					}
				}
				continue
			}

			if r.trace.Skipped {
				state.markSkipped(nodeID)
				// A branch skipped by its pre-condition still passes its
				// inputs through as outputs.
				if r.trace.Output != nil {
					state.setNodeOutput(nodeID, r.trace.Output)
				}
				continue
			}

			state.setNodeOutput(nodeID, r.trace.Output)

			data := models.CheckpointNodeData{
				Outputs:     r.trace.Output,
				CompletedAt: time.Now().UTC(),
				SessionID:   r.trace.SessionID,
				CostUSD:     r.trace.CostUSD,
				NumTurns:    r.trace.NumTurns,
			}
			state.checkpoint.MarkCompleted(nodeID, data)
			if r.trace.CostUSD != nil {
				state.checkpoint.TotalCostUSD += *r.trace.CostUSD
			}
		}

		if !opts.NoArtifacts {
			if err := state.artifacts.SaveCheckpoint(state.checkpoint); err != nil {
				log.Error("failed to save checkpoint", "error", err)
			}
		}

		if failure != nil {
			return failure
		}
	}

	return nil
}

// replayFromCheckpoint materializes a node trace and output from the
// checkpoint without re-executing the node.
func (e *Engine) replayFromCheckpoint(state *executionState, nodeID string) {
	data := state.checkpoint.CompletedNodes[nodeID]
	nodeType, _ := state.project.NodeTypeOf(nodeID)
	now := time.Now().UTC()
	trace := &models.NodeTrace{
		ID:        nodeID,
		NodeType:  nodeType,
		StartTime: data.CompletedAt,
		EndTime:   &now,
		Output:    data.Outputs,
		SessionID: data.SessionID,
		CostUSD:   data.CostUSD,
		NumTurns:  data.NumTurns,
	}
	state.trace.Nodes = append(state.trace.Nodes, trace)
	state.setNodeOutput(nodeID, data.Outputs)
}

// finalOutputs collects output-node outputs, keyed by node id. A skipped
// output node contributes nothing. Only when the project declares no
// output nodes at all does the last executed node's output stand in.
func finalOutputs(state *executionState) map[string]any {
	outputs := make(map[string]any)
	for nodeID := range state.project.OutputNodes {
		if out, ok := state.nodeOutput(nodeID); ok {
			outputs[nodeID] = out
		}
	}
	if len(state.project.OutputNodes) > 0 {
		return outputs
	}

	order := state.dag.ExecutionOrder
	for i := len(order) - 1; i >= 0; i-- {
		if out, ok := state.nodeOutput(order[i]); ok {
			return out
		}
	}
	return outputs
}

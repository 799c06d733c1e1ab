package engine

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/groksrc/trident/pkg/models"
	"github.com/groksrc/trident/pkg/project"
)

// executeBranchNode runs a sub-workflow as a single DAG node, looping
// while loop_while holds over the flattened outputs, bounded by
// max_iterations. Iterations persist monotonically; a resumed run starts
// after the last completed iteration.
func (e *Engine) executeBranchNode(ctx context.Context, state *executionState, nodeID string, trace *models.NodeTrace, opts RunOptions) error {
	branch := state.project.Branches[nodeID]
	if branch == nil {
		return models.ErrBranchNotFound
	}

	gathered := gatherInputs(state, nodeID)
	trace.Input = gathered

	if branch.Condition != "" {
		passed, err := e.conditions.Evaluate(branch.Condition, gathered)
		if err != nil || !passed {
			// Pre-condition false (or unevaluable): skip the node and
			// pass inputs through.
			trace.Skipped = true
			trace.Output = gathered
			return nil
		}
	}

	target, err := e.resolveBranchTarget(state.project, branch)
	if err != nil {
		return &models.BranchError{Message: "failed to load sub-workflow", Cause: err}
	}

	maxIterations := branch.MaxIterations
	if maxIterations <= 0 {
		maxIterations = models.DefaultMaxIterations
	}

	iteration := 1
	currentInputs := gathered
	if last, ok := state.checkpoint.BranchStates[nodeID]; ok && last > 0 {
		iteration = last + 1
		// A resumed loop continues from the last completed iteration's
		// outputs, not the original inputs.
		if latest, err := state.artifacts.LatestIteration(nodeID); err == nil && latest != nil && latest.Outputs != nil {
			currentInputs = latest.Outputs
		}
	}
	var flattened map[string]any

	for {
		started := time.Now().UTC()

		subResult, err := e.runBranchIteration(ctx, state, branch, target, iteration, currentInputs, opts)
		ended := time.Now().UTC()

		iterState := &models.BranchIterationState{
			BranchID:  nodeID,
			Iteration: iteration,
			Inputs:    currentInputs,
			StartedAt: started,
			EndedAt:   &ended,
			Success:   err == nil,
		}

		if err != nil {
			iterState.Error = err.Error()
			_ = state.artifacts.SaveBranchIteration(nodeID, iterState)
			return &models.BranchError{
				Message:       "sub-workflow execution failed",
				Iteration:     iteration,
				MaxIterations: maxIterations,
				Cause:         err,
			}
		}

		flattened = flattenSubOutputs(subResult.Outputs)
		iterState.Outputs = flattened

		if err := state.artifacts.SaveBranchIteration(nodeID, iterState); err != nil {
			return &models.BranchError{Message: "failed to persist iteration", Iteration: iteration, MaxIterations: maxIterations, Cause: err}
		}

		state.cpMu.Lock()
		state.checkpoint.BranchStates[nodeID] = iteration
		err = state.artifacts.SaveCheckpoint(state.checkpoint)
		state.cpMu.Unlock()
		if err != nil {
			return &models.BranchError{Message: "failed to persist checkpoint", Iteration: iteration, MaxIterations: maxIterations, Cause: err}
		}

		if branch.LoopWhile == "" {
			break
		}

		again, evalErr := e.conditions.Evaluate(branch.LoopWhile, flattened)
		if evalErr != nil || !again {
			break
		}

		if iteration == maxIterations {
			return &models.BranchError{
				Message:       "Max iterations reached",
				Iteration:     iteration,
				MaxIterations: maxIterations,
			}
		}
		iteration++
		currentInputs = flattened
	}

	trace.Output = flattened
	return nil
}

// resolveBranchTarget loads the branch's target project. "self" reuses
// the current project.
func (e *Engine) resolveBranchTarget(current *models.Project, branch *models.BranchNode) (*models.Project, error) {
	if branch.WorkflowPath == models.BranchWorkflowSelf {
		return current, nil
	}
	path := branch.WorkflowPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(current.Root, path)
	}
	return project.Load(path)
}

// runBranchIteration executes one sub-workflow pass with a nested
// artifact root under the parent run.
func (e *Engine) runBranchIteration(ctx context.Context, state *executionState, branch *models.BranchNode, target *models.Project, iteration int, inputs map[string]any, opts RunOptions) (*models.ExecutionResult, error) {
	subOpts := RunOptions{
		Inputs:      inputs,
		DryRun:      opts.DryRun,
		Verbose:     opts.Verbose,
		NoArtifacts: opts.NoArtifacts,
		ArtifactDir: state.artifacts.BranchRunDir(branch.ID, iteration),
	}

	result, err := e.Run(ctx, target, subOpts)
	if err != nil {
		return nil, err
	}
	if result.Err != nil {
		return nil, result.Err
	}
	return result, nil
}

// flattenSubOutputs reduces a sub-workflow's outputs map to a single field
// set: one output node unwraps to its contents; several merge their field
// sets, later nodes in id order winning key collisions.
func flattenSubOutputs(outputs map[string]any) map[string]any {
	if len(outputs) == 1 {
		for _, v := range outputs {
			if m, ok := v.(map[string]any); ok {
				return m
			}
		}
	}

	flattened := make(map[string]any)
	merged := false
	for _, v := range sortedValues(outputs) {
		if m, ok := v.(map[string]any); ok {
			for k, val := range m {
				flattened[k] = val
			}
			merged = true
		}
	}
	if merged {
		return flattened
	}
	return outputs
}

func sortedValues(m map[string]any) []any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Stable collision tie-break: ascending node id order.
	sort.Strings(keys)
	values := make([]any, len(keys))
	for i, k := range keys {
		values[i] = m[k]
	}
	return values
}

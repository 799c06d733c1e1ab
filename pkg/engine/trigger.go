package engine

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/groksrc/trident/pkg/models"
	"github.com/groksrc/trident/pkg/project"
)

// executeTriggerNode fires a downstream workflow. Fire-and-forget spawns
// a detached subprocess of this binary; wait mode runs the target
// in-process and returns its outputs.
func (e *Engine) executeTriggerNode(ctx context.Context, state *executionState, nodeID string, trace *models.NodeTrace, opts RunOptions) error {
	trigger := state.project.Triggers[nodeID]
	if trigger == nil {
		return models.ErrTriggerNotFound
	}

	gathered := gatherInputs(state, nodeID)
	trace.Input = gathered

	if trigger.Condition != "" {
		passed, err := e.conditions.Evaluate(trigger.Condition, gathered)
		if err != nil || !passed {
			trace.Skipped = true
			return nil
		}
	}

	targetPath := trigger.WorkflowPath
	if !filepath.IsAbs(targetPath) {
		targetPath = filepath.Join(state.project.Root, targetPath)
	}

	var inputs map[string]any
	if trigger.PassOutputs {
		inputs = gathered
	}

	if trigger.Mode == models.TriggerModeWait {
		target, err := project.Load(targetPath)
		if err != nil {
			return err
		}
		result, err := e.Run(ctx, target, RunOptions{
			Inputs:      inputs,
			DryRun:      opts.DryRun,
			Verbose:     opts.Verbose,
			EmitSignals: trigger.EmitSignal,
		})
		if err != nil {
			return err
		}
		if result.Err != nil {
			return result.Err
		}
		trace.Output = map[string]any{
			"triggered": true,
			"status":    "completed",
			"output":    result.Outputs,
		}
		return nil
	}

	if opts.DryRun {
		trace.Output = map[string]any{"triggered": true, "status": "started"}
		return nil
	}

	if err := spawnDetachedRun(targetPath, inputs, trigger.EmitSignal); err != nil {
		return err
	}

	if trigger.EmitSignal {
		workflowName := filepath.Base(filepath.Dir(targetPath))
		if info, statErr := os.Stat(targetPath); statErr == nil && info.IsDir() {
			workflowName = filepath.Base(targetPath)
		}
		_, _ = state.artifacts.EmitSignal(models.SignalStarted, workflowName, "", map[string]any{
			"triggered_by": state.trace.RunID,
		})
	}

	trace.Output = map[string]any{"triggered": true, "status": "started"}
	return nil
}

// spawnDetachedRun starts `trident project run <path>` detached from this
// run: no pipes, no wait, released to the OS.
func spawnDetachedRun(targetPath string, inputs map[string]any, emitSignals bool) error {
	binary, err := os.Executable()
	if err != nil {
		return err
	}

	args := []string{"project", "run", targetPath}
	if len(inputs) > 0 {
		data, err := json.Marshal(inputs)
		if err != nil {
			return err
		}
		args = append(args, "--input", string(data))
	}
	if emitSignals {
		args = append(args, "--emit-signal")
	}

	cmd := exec.Command(binary, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

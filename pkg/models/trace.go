package models

import (
	"fmt"
	"strings"
	"time"
)

// TokenUsage counts tokens consumed by one provider call.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// NodeTrace records the execution of a single node.
type NodeTrace struct {
	ID        string         `json:"id"`
	NodeType  NodeType       `json:"node_type,omitempty"`
	StartTime time.Time      `json:"start_time"`
	EndTime   *time.Time     `json:"end_time,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
	Model     string         `json:"model,omitempty"`
	Tokens    TokenUsage     `json:"tokens"`
	Skipped   bool           `json:"skipped,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorType string         `json:"error_type,omitempty"`
	CostUSD   *float64       `json:"cost_usd,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	NumTurns  int            `json:"num_turns,omitempty"`
}

// Succeeded reports whether this node executed without error.
func (t *NodeTrace) Succeeded() bool {
	return t.Error == "" && !t.Skipped
}

// ExecutionTrace records a full run: every node trace plus a top-level error.
type ExecutionTrace struct {
	RunID     string       `json:"run_id"`
	StartTime time.Time    `json:"start_time"`
	EndTime   *time.Time   `json:"end_time,omitempty"`
	Nodes     []*NodeTrace `json:"nodes"`
	Error     string       `json:"error,omitempty"`
}

// Succeeded reports whether the run completed with no node failures.
func (t *ExecutionTrace) Succeeded() bool {
	if t.Error != "" {
		return false
	}
	for _, n := range t.Nodes {
		if n.Error != "" {
			return false
		}
	}
	return true
}

// FailedNode returns the first node trace carrying an error, if any.
func (t *ExecutionTrace) FailedNode() *NodeTrace {
	for _, n := range t.Nodes {
		if n.Error != "" {
			return n
		}
	}
	return nil
}

// ExecutionResult is always returned from a run, even on failure.
// Check Success or Err to determine the outcome.
type ExecutionResult struct {
	Outputs map[string]any
	Trace   *ExecutionTrace
	Err     *NodeExecutionError
}

// Success reports whether the run completed without errors.
func (r *ExecutionResult) Success() bool {
	return r.Err == nil && r.Trace.Succeeded()
}

// Summary renders a human-readable account of the run.
func (r *ExecutionResult) Summary() string {
	var succeeded, skipped, failed int
	for _, n := range r.Trace.Nodes {
		switch {
		case n.Skipped:
			skipped++
		case n.Error != "":
			failed++
		default:
			succeeded++
		}
	}

	var b strings.Builder
	if r.Success() {
		b.WriteString("Execution succeeded\n")
	} else {
		b.WriteString("Execution FAILED\n")
	}
	fmt.Fprintf(&b, "  Nodes: %d succeeded, %d skipped, %d failed (of %d)\n",
		succeeded, skipped, failed, len(r.Trace.Nodes))
	if r.Err != nil {
		fmt.Fprintf(&b, "  Error: %v\n", r.Err)
	}
	if failed > 0 {
		b.WriteString("  Failed nodes:\n")
		for _, n := range r.Trace.Nodes {
			if n.Error != "" {
				fmt.Fprintf(&b, "    - %s: %s\n", n.ID, n.Error)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

package engine

import (
	"sync"

	"github.com/groksrc/trident/pkg/artifacts"
	"github.com/groksrc/trident/pkg/dag"
	"github.com/groksrc/trident/pkg/models"
	"github.com/groksrc/trident/pkg/tools"
)

// executionState tracks one run in flight. Node outputs are written once
// per id (single writer per key); the mutex covers concurrent reads from
// sibling tasks within a level.
type executionState struct {
	project    *models.Project
	dag        *dag.DAG
	artifacts  *artifacts.Manager
	trace      *models.ExecutionTrace
	checkpoint *models.Checkpoint
	tools      *tools.Runner

	mu          sync.RWMutex
	nodeOutputs map[string]map[string]any
	skipped     map[string]bool

	// cpMu serializes checkpoint mutation from branch nodes running in
	// parallel within one level; level-completion updates are already
	// sequential.
	cpMu sync.Mutex

	// reuse names the nodes replayed from the checkpoint instead of
	// executed: every completed node on resume, or only the target's
	// ancestors with start-from.
	reuse map[string]bool
}

func (s *executionState) setNodeOutput(nodeID string, output map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeOutputs[nodeID] = output
}

func (s *executionState) nodeOutput(nodeID string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	output, ok := s.nodeOutputs[nodeID]
	return output, ok
}

func (s *executionState) markSkipped(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped[nodeID] = true
}

func (s *executionState) wasSkipped(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.skipped[nodeID]
}

package engine

import (
	"testing"

	"github.com/groksrc/trident/pkg/artifacts"
)

func newManagerForRun(t *testing.T, root, runID string) *artifacts.Manager {
	t.Helper()
	return artifacts.NewManager(artifacts.DefaultConfig(root), runID)
}

// Package visualization renders workflow graphs in various formats.
//
// The package supports rendering Trident projects as:
//   - Mermaid flowchart diagrams (for documentation and GitHub)
//   - ASCII trees (for console output)
package visualization

import (
	"github.com/groksrc/trident/pkg/dag"
	"github.com/groksrc/trident/pkg/models"
)

// Renderer is the interface for rendering workflow graphs.
type Renderer interface {
	// Render converts a project's graph into the target format.
	Render(project *models.Project, graph *dag.DAG, opts *RenderOptions) (string, error)

	// Format returns the format identifier (e.g., "mermaid", "ascii").
	Format() string
}

// RenderOptions configures how graphs are rendered.
type RenderOptions struct {
	// ShowConditions controls whether edge conditions are displayed.
	ShowConditions bool

	// Direction sets the diagram flow direction (Mermaid renderer only).
	// Valid values: "TD", "LR", "RL", "BT".
	Direction string
}

// DefaultRenderOptions returns the default rendering options.
func DefaultRenderOptions() *RenderOptions {
	return &RenderOptions{
		ShowConditions: true,
		Direction:      "TD",
	}
}

// nodeSymbol maps node kinds to their bracket symbols in ASCII output.
func nodeSymbol(nodeType models.NodeType) string {
	switch nodeType {
	case models.NodeTypeInput:
		return "[I]"
	case models.NodeTypePrompt:
		return "[P]"
	case models.NodeTypeTool:
		return "[T]"
	case models.NodeTypeOutput:
		return "[O]"
	case models.NodeTypeAgent:
		return "[A]"
	case models.NodeTypeBranch:
		return "[B]"
	case models.NodeTypeTrigger:
		return "[G]"
	}
	return "[?]"
}

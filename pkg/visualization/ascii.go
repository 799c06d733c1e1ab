package visualization

import (
	"fmt"
	"strings"

	"github.com/groksrc/trident/pkg/dag"
	"github.com/groksrc/trident/pkg/models"
)

// ASCIIRenderer renders workflow graphs as console trees.
type ASCIIRenderer struct{}

// NewASCIIRenderer creates a new ASCII renderer.
func NewASCIIRenderer() *ASCIIRenderer {
	return &ASCIIRenderer{}
}

// Format returns the format identifier.
func (r *ASCIIRenderer) Format() string {
	return "ascii"
}

// Render converts a graph into an ASCII tree: each node in execution
// order with its outgoing connections.
func (r *ASCIIRenderer) Render(project *models.Project, graph *dag.DAG, opts *RenderOptions) (string, error) {
	if opts == nil {
		opts = DefaultRenderOptions()
	}
	if len(graph.Nodes) == 0 {
		return "No nodes found", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", project.Name)

	for i, nodeID := range graph.ExecutionOrder {
		node := graph.Nodes[nodeID]
		fmt.Fprintf(&b, "%s %s\n", nodeSymbol(node.Type), nodeID)

		for j, edge := range node.OutgoingEdges {
			connector := "├──"
			if j == len(node.OutgoingEdges)-1 {
				connector = "└──"
			}
			target := graph.Nodes[edge.ToNode]
			label := ""
			if opts.ShowConditions && edge.Condition != "" {
				label = fmt.Sprintf(" (if %s)", edge.Condition)
			}
			fmt.Fprintf(&b, "  %s> %s %s%s\n", connector, nodeSymbol(target.Type), edge.ToNode, label)
		}

		if i < len(graph.ExecutionOrder)-1 {
			b.WriteString("\n")
		}
	}

	b.WriteString("\nLegend: [I] Input, [P] Prompt, [T] Tool, [A] Agent, [B] Branch, [G] Trigger, [O] Output\n")
	return b.String(), nil
}

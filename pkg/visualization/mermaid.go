package visualization

import (
	"fmt"
	"sort"
	"strings"

	"github.com/groksrc/trident/pkg/dag"
	"github.com/groksrc/trident/pkg/models"
)

// MermaidRenderer renders workflow graphs as Mermaid flowchart diagrams.
type MermaidRenderer struct{}

// NewMermaidRenderer creates a new Mermaid renderer.
func NewMermaidRenderer() *MermaidRenderer {
	return &MermaidRenderer{}
}

// Format returns the format identifier.
func (r *MermaidRenderer) Format() string {
	return "mermaid"
}

// Render converts a graph into Mermaid flowchart syntax. Node shapes
// encode the kind: stadium for input/output, rectangle for prompt,
// hexagon for tool, subroutine for agent, rhombus for branch.
func (r *MermaidRenderer) Render(project *models.Project, graph *dag.DAG, opts *RenderOptions) (string, error) {
	if opts == nil {
		opts = DefaultRenderOptions()
	}

	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "flowchart %s\n", direction)

	b.WriteString("    %% Nodes\n")
	for _, nodeID := range graph.ExecutionOrder {
		node := graph.Nodes[nodeID]
		left, right := mermaidShape(node.Type)
		label := nodeID
		if node.Type != models.NodeTypeInput && node.Type != models.NodeTypeOutput {
			label = fmt.Sprintf("%s: %s", node.Type, nodeID)
		}
		fmt.Fprintf(&b, "    %s%s%s%s\n", mermaidID(nodeID), left, label, right)
	}

	b.WriteString("\n    %% Edges\n")
	edgeIDs := make([]string, 0, len(project.Edges))
	for id := range project.Edges {
		edgeIDs = append(edgeIDs, id)
	}
	sort.Strings(edgeIDs)
	seen := make(map[string]bool)
	for _, edgeID := range edgeIDs {
		edge := project.Edges[edgeID]
		key := edge.FromNode + "->" + edge.ToNode
		if seen[key] {
			continue
		}
		seen[key] = true
		if opts.ShowConditions && edge.Condition != "" {
			fmt.Fprintf(&b, "    %s -->|%s| %s\n", mermaidID(edge.FromNode), edge.Condition, mermaidID(edge.ToNode))
		} else {
			fmt.Fprintf(&b, "    %s --> %s\n", mermaidID(edge.FromNode), mermaidID(edge.ToNode))
		}
	}

	return b.String(), nil
}

func mermaidShape(nodeType models.NodeType) (string, string) {
	switch nodeType {
	case models.NodeTypeInput, models.NodeTypeOutput:
		return "([", "])"
	case models.NodeTypeTool:
		return "{{", "}}"
	case models.NodeTypeAgent:
		return "[[", "]]"
	case models.NodeTypeBranch, models.NodeTypeTrigger:
		return "{", "}"
	}
	return "[", "]"
}

// mermaidID sanitizes a node id for Mermaid syntax.
func mermaidID(id string) string {
	return strings.NewReplacer("-", "_", " ", "_").Replace(id)
}

// Package dag builds and validates the execution graph of a project:
// topological layering with level-parallelism, cycle detection, edge
// mapping validation, and recursive sub-workflow validation.
package dag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/groksrc/trident/pkg/models"
)

// Node is one vertex of the execution graph. Concrete configuration stays
// in the Project, keyed by id; the DAG holds only the kind tag and edges.
type Node struct {
	ID            string
	Type          models.NodeType
	IncomingEdges []*models.Edge
	OutgoingEdges []*models.Edge
}

// DAG is the validated execution graph with its topological layering.
type DAG struct {
	Nodes map[string]*Node
	// ExecutionOrder is the flat topological order (levels concatenated).
	ExecutionOrder []string
	// ExecutionLevels groups nodes by level; nodes within a level have no
	// dependencies on each other and execute in parallel.
	ExecutionLevels [][]string
}

// Build constructs the DAG from a project and computes execution levels
// with a level-grouping variant of Kahn's algorithm. Levels are sorted by
// node id for determinism.
func Build(project *models.Project) (*DAG, error) {
	nodes := make(map[string]*Node)
	for _, id := range project.NodeIDs() {
		nodeType, _ := project.NodeTypeOf(id)
		nodes[id] = &Node{ID: id, Type: nodeType}
	}

	for _, edge := range project.Edges {
		from, ok := nodes[edge.FromNode]
		if !ok {
			return nil, &models.DAGError{
				Message: fmt.Sprintf("edge %s references unknown source node: %s", edge.ID, edge.FromNode),
			}
		}
		to, ok := nodes[edge.ToNode]
		if !ok {
			return nil, &models.DAGError{
				Message: fmt.Sprintf("edge %s references unknown target node: %s", edge.ID, edge.ToNode),
			}
		}
		from.OutgoingEdges = append(from.OutgoingEdges, edge)
		to.IncomingEdges = append(to.IncomingEdges, edge)
	}

	// Stable edge iteration order so mapping ties break the same way on
	// every run.
	for _, node := range nodes {
		sortEdges(node.IncomingEdges)
		sortEdges(node.OutgoingEdges)
	}

	inDegree := make(map[string]int, len(nodes))
	for id, node := range nodes {
		inDegree[id] = len(node.IncomingEdges)
	}

	var currentLevel []string
	for id, degree := range inDegree {
		if degree == 0 {
			currentLevel = append(currentLevel, id)
		}
	}

	var levels [][]string
	var order []string
	for len(currentLevel) > 0 {
		sort.Strings(currentLevel)
		levels = append(levels, currentLevel)
		order = append(order, currentLevel...)

		var nextLevel []string
		for _, id := range currentLevel {
			for _, edge := range nodes[id].OutgoingEdges {
				inDegree[edge.ToNode]--
				if inDegree[edge.ToNode] == 0 {
					nextLevel = append(nextLevel, edge.ToNode)
				}
			}
		}
		currentLevel = nextLevel
	}

	if len(order) != len(nodes) {
		remaining := make([]string, 0, len(nodes)-len(order))
		seen := make(map[string]bool, len(order))
		for _, id := range order {
			seen[id] = true
		}
		for id := range nodes {
			if !seen[id] {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, &models.DAGError{
			Message: fmt.Sprintf("cycle detected in DAG, nodes involved: %s", strings.Join(remaining, ", ")),
		}
	}

	return &DAG{Nodes: nodes, ExecutionOrder: order, ExecutionLevels: levels}, nil
}

func sortEdges(edges []*models.Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
}

// Upstream returns the direct parents of a node.
func (d *DAG) Upstream(nodeID string) []string {
	node := d.Nodes[nodeID]
	if node == nil {
		return nil
	}
	parents := make([]string, 0, len(node.IncomingEdges))
	for _, edge := range node.IncomingEdges {
		parents = append(parents, edge.FromNode)
	}
	return parents
}

// Downstream returns the direct children of a node.
func (d *DAG) Downstream(nodeID string) []string {
	node := d.Nodes[nodeID]
	if node == nil {
		return nil
	}
	children := make([]string, 0, len(node.OutgoingEdges))
	for _, edge := range node.OutgoingEdges {
		children = append(children, edge.ToNode)
	}
	return children
}

// Ancestors returns the transitive upstream closure of a node,
// excluding the node itself.
func (d *DAG) Ancestors(nodeID string) map[string]bool {
	ancestors := make(map[string]bool)
	var visit func(id string)
	visit = func(id string) {
		for _, parent := range d.Upstream(id) {
			if !ancestors[parent] {
				ancestors[parent] = true
				visit(parent)
			}
		}
	}
	visit(nodeID)
	return ancestors
}

package workflow

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	DefaultCopyOffsetX = 50
	DefaultCopyOffsetY = 50
)

// Subtree returns the nodes reachable from nodeID by following edges from
// source to target, together with every edge met during the traversal.
// An unknown nodeID yields an empty workflow.
func Subtree(nodeID string, nodes []Node, edges []Edge) Workflow {
	if !containsNode(nodes, nodeID) {
		return Empty()
	}

	visited, traversed := reach(nodeID, edges)

	result := Empty()
	for _, n := range nodes {
		if visited[n.ID] {
			result.Nodes = append(result.Nodes, n.Clone())
		}
	}
	result.Edges = append(result.Edges, traversed...)

	return result
}

// reach runs a breadth-first traversal over outgoing edges. Each node enters
// the queue at most once; every outgoing edge of a dequeued node is collected,
// including edges into nodes already visited.
func reach(root string, edges []Edge) (map[string]bool, []Edge) {
	outgoing := make(map[string][]Edge)
	for _, e := range edges {
		outgoing[e.Source] = append(outgoing[e.Source], e)
	}

	visited := map[string]bool{root: true}
	queue := []string{root}
	var traversed []Edge

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, e := range outgoing[current] {
			if !visited[e.Target] {
				visited[e.Target] = true
				queue = append(queue, e.Target)
			}
			traversed = append(traversed, e)
		}
	}

	return visited, traversed
}

func containsNode(nodes []Node, id string) bool {
	for _, n := range nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// IDGenerator derives a fresh id for a copied node or edge from its original id
type IDGenerator func(oldID string) string

// CopyIDGenerator produces "<old>_copy_<uuid>" ids
func CopyIDGenerator(oldID string) string {
	return fmt.Sprintf("%s_copy_%s", oldID, uuid.NewString())
}

type copyOptions struct {
	offsetX float64
	offsetY float64
	newID   IDGenerator
}

type CopyOption func(*copyOptions)

func WithOffset(x, y float64) CopyOption {
	return func(o *copyOptions) {
		o.offsetX = x
		o.offsetY = y
	}
}

func WithIDGenerator(gen IDGenerator) CopyOption {
	return func(o *copyOptions) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// CopySubtree clones the subtree rooted at nodeID. Every node gets a fresh id
// and is moved by the offset (50, 50 unless WithOffset is given); every edge is
// rewired through the id map. Only the new nodes and edges are returned.
func CopySubtree(nodeID string, nodes []Node, edges []Edge, opts ...CopyOption) Workflow {
	options := copyOptions{
		offsetX: DefaultCopyOffsetX,
		offsetY: DefaultCopyOffsetY,
		newID:   CopyIDGenerator,
	}
	for _, opt := range opts {
		opt(&options)
	}

	subtree := Subtree(nodeID, nodes, edges)

	// The id map must be complete before any edge is rewired: an edge may
	// point at a node that comes later in traversal order.
	idMap := make(map[string]string, len(subtree.Nodes))
	result := Empty()
	for _, n := range subtree.Nodes {
		clone := n.Clone()
		clone.ID = options.newID(n.ID)
		clone.Position = n.Position.Translate(options.offsetX, options.offsetY)
		idMap[n.ID] = clone.ID
		result.Nodes = append(result.Nodes, clone)
	}

	for _, e := range subtree.Edges {
		source, okSource := idMap[e.Source]
		target, okTarget := idMap[e.Target]
		if !okSource || !okTarget {
			// dangling edge in the original; copying it would leave a dangling copy
			continue
		}
		clone := e
		clone.ID = options.newID(e.ID)
		clone.Source = source
		clone.Target = target
		result.Edges = append(result.Edges, clone)
	}

	return result
}

// DeleteSubtree returns the graph without the subtree rooted at nodeID. Edges
// touching any removed node are dropped as well, including edges entering the
// subtree from outside. The inputs are not modified.
func DeleteSubtree(nodeID string, nodes []Node, edges []Edge) Workflow {
	subtree := Subtree(nodeID, nodes, edges)
	removed := make(map[string]bool, len(subtree.Nodes))
	for _, n := range subtree.Nodes {
		removed[n.ID] = true
	}

	result := Empty()
	for _, n := range nodes {
		if !removed[n.ID] {
			result.Nodes = append(result.Nodes, n.Clone())
		}
	}
	for _, e := range edges {
		if !removed[e.Source] && !removed[e.Target] {
			result.Edges = append(result.Edges, e)
		}
	}

	return result
}

// withoutNode removes a single node and every edge touching it
func withoutNode(w Workflow, nodeID string) Workflow {
	result := Empty()
	for _, n := range w.Nodes {
		if n.ID != nodeID {
			result.Nodes = append(result.Nodes, n.Clone())
		}
	}
	for _, e := range w.Edges {
		if !e.Touches(nodeID) {
			result.Edges = append(result.Edges, e)
		}
	}
	return result
}

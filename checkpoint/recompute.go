package checkpoint

import (
	"github.com/tensorforge/checkpoint/internal/graph"
	"github.com/tensorforge/checkpoint/internal/tensor"
)

// Recompute rematerializes root.Value and root.SavedTensors if they
// have been deleted, walking back through ancestors via breadth-first
// search until it reaches a live boundary on every branch — a
// checkpoint, a leaf, or a node that was never deleted — then replays
// the forward computation from those anchors back down to root in
// dependency order.
//
// maxDepth bounds how far from root a node that needs replaying may
// lie: a deleted node more than maxDepth edges away fails the search
// with ErrRecomputeDepthExceeded (a live anchor one edge further is
// still accepted). Zero means unbounded.
func Recompute(backend tensor.Backend, root *graph.Node, maxDepth int) error {
	if isLive(root) {
		return nil
	}

	type frontierNode struct {
		node  *graph.Node
		depth int
	}

	visited := map[*graph.Node]bool{root: true}
	queue := []frontierNode{{root, 0}}
	var discovered []*graph.Node

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		discovered = append(discovered, cur.node)

		if isLive(cur.node) {
			continue
		}

		if maxDepth > 0 && cur.depth > maxDepth {
			return ErrRecomputeDepthExceeded
		}

		if cur.node.IsLeaf() {
			return ErrNoCheckpointReachable
		}

		if !cur.node.Op.Supported() {
			return &RecomputeError{Node: cur.node.Name, Op: cur.node.Op.String(), Reason: ErrUnsupportedOpDuringRecompute}
		}
		if cur.node.Op.IsStochastic() {
			return &RecomputeError{Node: cur.node.Name, Op: cur.node.Op.String(), Reason: ErrStochasticOpOnDeletedPath}
		}

		for _, in := range cur.node.Inputs {
			if !visited[in] {
				visited[in] = true
				queue = append(queue, frontierNode{in, cur.depth + 1})
			}
		}
	}

	// Replay the visited deleted nodes in topological order, so every
	// ancestor is computed before the node that consumes it, which is
	// exactly the dependency order forward evaluation needs.
	for _, n := range graph.TopologicalOrder(root) {
		if !visited[n] || isLive(n) {
			continue
		}

		n.Value, n.SavedTensors = graph.EvalWithSaved(backend, n.Op, n.Inputs, n.Axes)
		n.ValueDeleted = false

		if !n.Value.Shape().Equal(n.CachedShape) {
			return ErrShapeMismatch
		}
	}

	return nil
}

// isLive reports whether n's value is currently materialized and can
// be read without recomputation.
func isLive(n *graph.Node) bool {
	return !n.ValueDeleted && !n.Value.Empty()
}

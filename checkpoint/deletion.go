package checkpoint

import "github.com/tensorforge/checkpoint/internal/graph"

// DeleteUnmarked releases the materialized value and saved tensors of
// every interior node in order that Mark did not select as a
// checkpoint, recording each node's shape in CachedShape first so a
// later recomputation pass can allocate the right output shape without
// dereferencing the now-empty tensor.
//
// Leaves are never deleted: they're the graph's external inputs, and
// nothing downstream can ever recompute them. Nodes already marked
// IsCheckpoint are left untouched — that's the entire point of having
// marked them.
//
// Returns the number of nodes whose value was actually released, and
// the total bytes reclaimed (Value plus SavedTensors).
func DeleteUnmarked(order []*graph.Node) (deleted int, bytesReclaimed uint64) {
	for _, n := range order {
		if n.IsLeaf() || n.IsCheckpoint || n.ValueDeleted {
			continue
		}

		n.CachedShape = n.Value.Shape()
		bytesReclaimed += Footprint(n)
		n.Value.Release()
		for _, st := range n.SavedTensors {
			st.Release()
		}
		n.SavedTensors = nil
		n.ValueDeleted = true
		deleted++
	}
	return deleted, bytesReclaimed
}

package checkpoint

import "github.com/tensorforge/checkpoint/internal/graph"

// Footprint returns the number of bytes n.Value plus each entry of
// n.SavedTensors currently occupies. Leaves report zero, since they are
// never deleted. A node whose value has already been deleted reports
// zero for that part — deletion also releases SavedTensors, so in
// practice a deleted node's footprint is zero overall, not just for
// Value.
//
// An unknown/invalid dtype is never guessed at: tensor.DataType.Size
// panics on one, so Footprint panics rather than returning a size.
func Footprint(n *graph.Node) uint64 {
	if n.IsLeaf() {
		return 0
	}
	var total uint64
	if !n.ValueDeleted && !n.Value.Empty() {
		total += n.Value.ByteSize()
	}
	for _, st := range n.SavedTensors {
		if !st.Empty() {
			total += st.ByteSize()
		}
	}
	return total
}

// TotalFootprint sums Footprint across nodes. Nothing in this package
// calls it; BudgetPolicy sums Footprint node by node itself.
func TotalFootprint(nodes []*graph.Node) uint64 {
	var total uint64
	for _, n := range nodes {
		total += Footprint(n)
	}
	return total
}

// StampFootprint records n's current Footprint into
// n.MemoryFootprint, freezing the number so it survives the node's
// later deletion. Placement policies call this during their pass over
// the topological order, before any deletion happens.
func StampFootprint(n *graph.Node) {
	n.MemoryFootprint = Footprint(n)
}

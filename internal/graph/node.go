// Package graph defines the retained computation DAG the checkpoint
// core operates over: nodes owning strong references to their input
// nodes, each carrying an optional materialized value plus the
// annotations the checkpointing passes read and write.
//
// Unlike a linear gradient tape, nodes keep owning references to their
// inputs directly, so the graph outlives a single backward call and a
// later pass can walk back through it to recompute deleted values on
// demand.
package graph

import (
	"github.com/tensorforge/checkpoint/internal/tensor"
)

// Node is one vertex of the retained computation graph: an operation,
// its owning references to its input nodes, and the tensor value (if
// still materialized) that operation produced.
type Node struct {
	// Name is an optional label for diagnostics; unset for most nodes.
	Name string

	Op     Op
	Inputs []*Node

	// Axes holds OpTranspose's permutation. Unused by other ops.
	Axes []int

	// Value is the node's materialized output. It may be empty
	// (tensor.RawTensor.Empty() == true) if this node's value has been
	// deleted by the checkpoint core's deletion pass.
	Value *tensor.RawTensor

	// SavedTensors holds extra tensors an op's backward pass needs
	// beyond Inputs' own values (e.g. a mask). Most ops need none.
	SavedTensors []*tensor.RawTensor

	RequiresGrad bool
	Grad         *tensor.RawTensor

	// Checkpoint annotations, read and written by the checkpoint
	// package's placement, deletion and recomputation passes.

	// IsCheckpoint marks a node the placement policy selected to keep
	// materialized through backward; its Value is never deleted.
	IsCheckpoint bool
	// ValueDeleted records that Value was released by the deletion
	// pass and must be recomputed before a consumer can read it.
	ValueDeleted bool
	// CachedShape preserves Value's shape across deletion, since a
	// released tensor.RawTensor no longer reports one reliably.
	CachedShape tensor.Shape
	// MemoryFootprint is the byte size of Value plus SavedTensors as
	// computed by checkpoint.Footprint when checkpoint.Mark last
	// stamped it.
	MemoryFootprint uint64
	// RecomputePriority breaks ties between otherwise-equal placement
	// candidates; lower values are preferred for deletion, higher ones
	// as checkpoints. Zero value means "no preference".
	RecomputePriority int
}

// NewLeaf creates a node with no inputs, wrapping an already-computed
// or externally supplied tensor value.
func NewLeaf(value *tensor.RawTensor, requiresGrad bool) *Node {
	return &Node{
		Op:           OpLeaf,
		Value:        value,
		RequiresGrad: requiresGrad,
		CachedShape:  value.Shape(),
	}
}

// IsLeaf reports whether n has no input nodes.
func (n *Node) IsLeaf() bool {
	return len(n.Inputs) == 0
}

// Shape returns n's shape, reading CachedShape if Value has been
// deleted rather than dereferencing the released tensor.
func (n *Node) Shape() tensor.Shape {
	if n.ValueDeleted || n.Value.Empty() {
		return n.CachedShape
	}
	return n.Value.Shape()
}

// TopologicalOrder returns the nodes reachable from root in an order
// where every node appears after all of its inputs (a valid forward
// evaluation / checkpoint-placement order), root last.
//
// Cooperative, single-pass, no goroutines: the checkpoint core's
// scheduling model visits nodes from a single control thread, same as
// the framework's GradientTape walks its recorded operations.
func TopologicalOrder(root *Node) []*Node {
	var order []*Node
	visited := make(map[*Node]bool)

	var visit func(n *Node)
	visit = func(n *Node) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, in := range n.Inputs {
			visit(in)
		}
		order = append(order, n)
	}
	visit(root)

	return order
}

package checkpoint

import (
	"math"
	"sort"

	"github.com/tensorforge/checkpoint/internal/graph"
)

// Policy selects which nodes in a topologically ordered forward graph
// should be retained as checkpoints (IsCheckpoint = true) and which
// are left as deletion/recomputation candidates. Leaves are never
// deletion candidates regardless of policy — they're the graph's
// inputs, not intermediate activations — so policies only need to
// decide about interior nodes. The root is always marked, by every
// policy, regardless of what else it selects.
type Policy interface {
	// Apply marks IsCheckpoint on the nodes of order it selects.
	// order must be a valid topological order, e.g. from
	// graph.TopologicalOrder, with the root last.
	Apply(order []*graph.Node)
}

// UniformPolicy checkpoints every Interval-th node, numbering the
// entire topological order 0..N-1 (leaves are counted in the numbering
// but never marked, since leaves are never deleted), plus the root
// unconditionally.
type UniformPolicy struct {
	Interval int
}

// NewUniformPolicy validates interval and returns a UniformPolicy.
func NewUniformPolicy(interval int) (*UniformPolicy, error) {
	if interval < 1 {
		return nil, ErrConfigInvalid
	}
	return &UniformPolicy{Interval: interval}, nil
}

// Apply marks node i as a checkpoint iff i mod Interval == 0 or i is
// the last index (the root).
func (p *UniformPolicy) Apply(order []*graph.Node) {
	last := len(order) - 1
	for i, n := range order {
		if n.IsLeaf() {
			continue
		}
		if i%p.Interval == 0 || i == last {
			n.IsCheckpoint = true
		}
	}
}

// AdaptivePolicy implements the √N placement strategy (Chen et al.,
// "Training Deep Nets with Sublinear Memory Cost"): checkpoint
// ceil(sqrt(N)) of the N non-leaf nodes, chosen by ranking on a
// composite key — expensive ops first (ShouldCheckpoint), footprint
// descending as the next tie-break, and RecomputePriority descending
// as the final tie-break (a lower RecomputePriority marks a node as
// preferred for deletion, so higher values sort toward the kept end).
type AdaptivePolicy struct{}

// NewAdaptivePolicy returns an AdaptivePolicy. It takes no parameters:
// the number of checkpoints is derived from the graph's size, not
// configured.
func NewAdaptivePolicy() *AdaptivePolicy {
	return &AdaptivePolicy{}
}

// Apply marks the top ceil(sqrt(N)) ranked non-leaf nodes as
// checkpoints, plus the root.
func (p *AdaptivePolicy) Apply(order []*graph.Node) {
	var interior []*graph.Node
	for _, n := range order {
		if !n.IsLeaf() {
			interior = append(interior, n)
		}
	}
	if len(interior) == 0 {
		return
	}

	target := int(math.Ceil(math.Sqrt(float64(len(interior)))))

	ranked := make([]*graph.Node, len(interior))
	copy(ranked, interior)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		ea, eb := ShouldCheckpoint(a.Op), ShouldCheckpoint(b.Op)
		if ea != eb {
			return ea
		}
		fa, fb := Footprint(a), Footprint(b)
		if fa != fb {
			return fa > fb
		}
		return a.RecomputePriority > b.RecomputePriority
	})

	for i := 0; i < target && i < len(ranked); i++ {
		ranked[i].IsCheckpoint = true
	}

	interior[len(interior)-1].IsCheckpoint = true // root
}

// BudgetPolicy checkpoints nodes so that the live (non-checkpoint)
// intermediate state between any two consecutive checkpoints never
// exceeds MaxBytes.
type BudgetPolicy struct {
	MaxBytes uint64
}

// NewBudgetPolicy returns a BudgetPolicy with the given byte budget.
func NewBudgetPolicy(maxBytes uint64) (*BudgetPolicy, error) {
	if maxBytes == 0 {
		return nil, ErrConfigInvalid
	}
	return &BudgetPolicy{MaxBytes: maxBytes}, nil
}

// Apply walks order in reverse (root toward leaves), accumulating
// Footprint. Whenever adding the current node's footprint would push
// the running sum past MaxBytes, the current node is marked as a
// checkpoint and the accumulator resets. The root is always marked
// last, regardless of where the walk left off.
//
// If every individual node's footprint alone exceeds MaxBytes, this
// marks every node — equivalent to disabling deletion for this graph,
// since there is no budget-respecting gap to leave unmarked.
func (p *BudgetPolicy) Apply(order []*graph.Node) {
	if len(order) == 0 {
		return
	}

	var sum uint64
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		if n.IsLeaf() {
			continue
		}
		footprint := Footprint(n)
		if sum+footprint > p.MaxBytes {
			n.IsCheckpoint = true
			sum = 0
		} else {
			sum += footprint
		}
	}

	if root := order[len(order)-1]; !root.IsLeaf() {
		root.IsCheckpoint = true
	}
}

// Mark stamps every node's MemoryFootprint (so it survives later
// deletion) and then runs policy over the topological order, setting
// IsCheckpoint on the nodes it selects.
func Mark(order []*graph.Node, policy Policy) {
	for _, n := range order {
		StampFootprint(n)
	}
	policy.Apply(order)
}

package checkpoint

import "github.com/tensorforge/checkpoint/internal/graph"

// ShouldCheckpoint classifies op as a cheap or expensive recompute
// candidate: a pure, advisory function the Adaptive placement policy
// ranks nodes by. Cheap ops (elementwise arithmetic, simple
// activations, shape ops) are always cheaper to recompute than to
// keep resident; expensive ops (matmul, exp, log, and stochastic ops
// by convention, since their recompute cost includes RNG replay) are
// preferred checkpoint candidates.
//
// The oracle is advisory: AdaptivePolicy breaks ties between
// equally-classified nodes by footprint and recompute priority, and
// BudgetPolicy and UniformPolicy don't consult it at all.
func ShouldCheckpoint(op graph.Op) bool {
	switch op {
	case graph.OpMatMul, graph.OpExp, graph.OpLog, graph.OpDropout:
		return true
	default:
		return false
	}
}

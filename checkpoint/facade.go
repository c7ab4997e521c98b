package checkpoint

import (
	"fmt"

	"github.com/tensorforge/checkpoint/internal/graph"
	"github.com/tensorforge/checkpoint/internal/tensor"
)

// EnsureLive makes sure n.Value is materialized, recomputing it via
// Recompute if it was deleted. The backward pass calls this before
// reading a node's own value (e.g. Sigmoid/Tanh's VJP, which read the
// node's output rather than its inputs).
func EnsureLive(backend tensor.Backend, n *graph.Node, maxDepth int) error {
	return Recompute(backend, n, maxDepth)
}

// EnsureInputsLive makes sure every one of n's inputs has a
// materialized value, recomputing each that was deleted. The backward
// pass calls this immediately before computing n's VJP, since most
// ops' gradients are functions of their inputs' forward values.
func EnsureInputsLive(backend tensor.Backend, n *graph.Node, maxDepth int) error {
	for _, in := range n.Inputs {
		if err := Recompute(backend, in, maxDepth); err != nil {
			return err
		}
	}
	return nil
}

// ZeroGrad zero-fills the gradient buffer of n and, recursively, every
// ancestor with RequiresGrad set, reallocating each one sized to the
// node's current shape (falling back to CachedShape for a node whose
// value has since been deleted — dtype and device survive Release(),
// so no live value is needed to size the replacement). Nodes without
// RequiresGrad are left untouched, since they never carry a gradient
// to begin with. Idempotent: calling it again after a node's value has
// since been deleted still only needs CachedShape, never the value
// itself.
func ZeroGrad(n *graph.Node) {
	visited := make(map[*graph.Node]bool)
	var visit func(*graph.Node)
	visit = func(cur *graph.Node) {
		if visited[cur] {
			return
		}
		visited[cur] = true
		if cur.RequiresGrad {
			cur.Grad = zeroedGrad(cur)
		}
		for _, in := range cur.Inputs {
			visit(in)
		}
	}
	visit(n)
}

// zeroedGrad allocates a zero-filled tensor sized and typed to match
// n's output, reading dtype/device off n.Value (which RawTensor keeps
// intact even after Release) and shape off n.Shape() (which falls back
// to CachedShape once deleted).
func zeroedGrad(n *graph.Node) *tensor.RawTensor {
	dtype, device := tensor.Float32, tensor.CPU
	if n.Value != nil {
		dtype, device = n.Value.DType(), n.Value.Device()
	}
	grad, err := tensor.NewRaw(n.Shape(), dtype, device)
	if err != nil {
		panic(fmt.Sprintf("checkpoint: zero_grad: %v", err))
	}
	return grad
}

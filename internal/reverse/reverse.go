// Package reverse implements reverse-mode automatic differentiation
// over the retained graph.Node DAG, seeded with checkpoint-aware
// liveness hooks in place of a linear gradient tape.
package reverse

import (
	"fmt"

	"github.com/tensorforge/checkpoint/checkpoint"
	"github.com/tensorforge/checkpoint/internal/graph"
	"github.com/tensorforge/checkpoint/internal/tensor"
)

// Backward computes gradients for every node reachable from root by
// walking its topological order in reverse, accumulating into each
// node's Grad field. Before reading any node's value or its inputs'
// values it calls m.EnsureLive / m.EnsureInputsLive, so a deletion
// candidate is transparently recomputed the first time backward needs
// it rather than failing on a released buffer.
//
// root's own seed gradient is all-ones, matching the conventional
// scalar-loss convention (seeding is the caller's job for a
// non-scalar root — pass an already-seeded Grad and a chain with no
// further consumers above it).
func Backward(m *checkpoint.Manager, root *graph.Node) error {
	if root.Grad == nil {
		seed, err := onesLike(root)
		if err != nil {
			return fmt.Errorf("reverse: seed output gradient: %w", err)
		}
		root.Grad = seed
	}

	order := graph.TopologicalOrder(root)
	backend := m.Backend()

	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		if n.Grad == nil || n.IsLeaf() {
			continue
		}

		if err := m.EnsureLive(n); err != nil {
			return fmt.Errorf("reverse: node %q: %w", n.Name, err)
		}
		if err := m.EnsureInputsLive(n); err != nil {
			return fmt.Errorf("reverse: node %q inputs: %w", n.Name, err)
		}

		inputGrads := graph.VJP(backend, n, n.Grad)
		for j, in := range n.Inputs {
			if j >= len(inputGrads) || inputGrads[j] == nil {
				continue
			}
			accumulate(backend, in, inputGrads[j])
		}
	}

	return nil
}

// accumulate adds grad into n.Grad, allocating n.Grad if this is the
// first gradient to reach n. Multiple consumers of the same node each
// contribute a term here, mirroring the chain rule's sum-over-paths.
func accumulate(backend tensor.Backend, n *graph.Node, grad *tensor.RawTensor) {
	if n.Grad == nil {
		n.Grad = grad
		return
	}
	n.Grad = backend.Add(n.Grad, grad)
}

func onesLike(n *graph.Node) (*tensor.RawTensor, error) {
	raw, err := tensor.NewRaw(n.Shape(), n.Value.DType(), n.Value.Device())
	if err != nil {
		return nil, err
	}
	switch raw.DType() {
	case tensor.Float32:
		data := raw.AsFloat32()
		for i := range data {
			data[i] = 1.0
		}
	case tensor.Float64:
		data := raw.AsFloat64()
		for i := range data {
			data[i] = 1.0
		}
	default:
		return nil, fmt.Errorf("reverse: unsupported dtype %v for output gradient seed", raw.DType())
	}
	return raw, nil
}

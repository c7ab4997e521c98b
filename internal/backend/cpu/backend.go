// Package cpu implements the pure-Go CPU backend the graph layer
// dispatches forward-op execution to, both for ordinary forward passes
// and for the checkpoint core's recomputation replay.
package cpu

import (
	"fmt"

	"github.com/tensorforge/checkpoint/internal/parallel"
	"github.com/tensorforge/checkpoint/internal/tensor"
)

// CPUBackend implements tensor.Backend on the CPU.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// New creates a new CPU backend with parallel fan-out enabled according
// to runtime.NumCPU().
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		par:    parallel.DefaultConfig(),
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp(a, b, "add", addInplace, addVectorized, addBroadcast)
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp(a, b, "sub", subInplace, subVectorized, subBroadcast)
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp(a, b, "mul", mulInplace, mulVectorized, mulBroadcast)
}

// Div performs element-wise division with broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp(a, b, "div", divInplace, divVectorized, divBroadcast)
}

type inplaceFn func(a, b *tensor.RawTensor, par parallel.Config)
type vectorizedFn func(dst, a, b *tensor.RawTensor, par parallel.Config)
type broadcastFn func(dst, a, b *tensor.RawTensor, outShape tensor.Shape)

func (cpu *CPUBackend) binaryOp(a, b *tensor.RawTensor, name string, inplace inplaceFn, vectorized vectorizedFn, broadcast broadcastFn) *tensor.RawTensor {
	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	// The result always goes to a fresh tensor, never into a's buffer:
	// operands are node values that other nodes and the backward pass
	// still read after this call.
	if !needsBroadcast && a.Shape().Equal(b.Shape()) {
		result, err := tensor.NewRaw(outShape, a.DType(), cpu.device)
		if err != nil {
			panic(fmt.Sprintf("%s: failed to create result tensor: %v", name, err))
		}
		vectorized(result, a, b, cpu.par)
		return result
	}

	result, err := tensor.NewRaw(outShape, a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", name, err))
	}
	broadcast(result, a, b, outShape)
	return result
}

// Reshape returns a tensor with the same data but a different shape.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if err := newShape.Validate(); err != nil {
		panic(fmt.Sprintf("reshape: invalid shape: %v", err))
	}
	if t.NumElements() != newShape.NumElements() {
		panic(fmt.Sprintf("reshape: incompatible shapes: %v -> %v", t.Shape(), newShape))
	}

	result, err := tensor.NewRaw(newShape, t.DType(), t.Device())
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}

	switch t.DType() {
	case tensor.Float32:
		copy(result.AsFloat32(), t.AsFloat32())
	case tensor.Float64:
		copy(result.AsFloat64(), t.AsFloat64())
	default:
		panic(fmt.Sprintf("reshape: unsupported dtype %s", t.DType()))
	}
	return result
}

// Transpose permutes the tensor's dimensions. With no axes given, it
// reverses all dimensions.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: axes length %d != ndim %d", len(axes), ndim))
	}

	seen := make([]bool, ndim)
	for _, ax := range axes {
		if ax < 0 || ax >= ndim {
			panic(fmt.Sprintf("transpose: invalid axis %d for %dD tensor", ax, ndim))
		}
		if seen[ax] {
			panic(fmt.Sprintf("transpose: duplicate axis %d", ax))
		}
		seen[ax] = true
	}

	newShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		newShape[i] = shape[ax]
	}

	result, err := tensor.NewRaw(newShape, t.DType(), t.Device())
	if err != nil {
		panic(fmt.Sprintf("transpose: %v", err))
	}

	switch t.DType() {
	case tensor.Float32:
		transposeFloat32(result.AsFloat32(), t.AsFloat32(), shape, axes)
	case tensor.Float64:
		transposeFloat64(result.AsFloat64(), t.AsFloat64(), shape, axes)
	default:
		panic(fmt.Sprintf("transpose: unsupported dtype %s", t.DType()))
	}

	return result
}

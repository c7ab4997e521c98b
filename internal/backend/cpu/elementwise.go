package cpu

import (
	"github.com/tensorforge/checkpoint/internal/parallel"
	"github.com/tensorforge/checkpoint/internal/tensor"
)

// addInplace, subInplace, mulInplace and divInplace write the result of
// the binary op into a's buffer. Only valid when a.IsUnique().

func addInplace(a, b *tensor.RawTensor, par parallel.Config) {
	dispatchBinary(a, b, a, par, func(x, y float64) float64 { return x + y })
}

func subInplace(a, b *tensor.RawTensor, par parallel.Config) {
	dispatchBinary(a, b, a, par, func(x, y float64) float64 { return x - y })
}

func mulInplace(a, b *tensor.RawTensor, par parallel.Config) {
	dispatchBinary(a, b, a, par, func(x, y float64) float64 { return x * y })
}

func divInplace(a, b *tensor.RawTensor, par parallel.Config) {
	dispatchBinary(a, b, a, par, func(x, y float64) float64 { return x / y })
}

// addVectorized, subVectorized, mulVectorized and divVectorized write
// into a freshly allocated dst tensor of the same shape as a and b.

func addVectorized(dst, a, b *tensor.RawTensor, par parallel.Config) {
	dispatchBinary(a, b, dst, par, func(x, y float64) float64 { return x + y })
}

func subVectorized(dst, a, b *tensor.RawTensor, par parallel.Config) {
	dispatchBinary(a, b, dst, par, func(x, y float64) float64 { return x - y })
}

func mulVectorized(dst, a, b *tensor.RawTensor, par parallel.Config) {
	dispatchBinary(a, b, dst, par, func(x, y float64) float64 { return x * y })
}

func divVectorized(dst, a, b *tensor.RawTensor, par parallel.Config) {
	dispatchBinary(a, b, dst, par, func(x, y float64) float64 { return x / y })
}

// dispatchBinary applies fn element-wise over a and b into dst, fanning
// out across goroutines once the element count clears par's threshold.
// Everything is routed through float64 math; float32 operands are
// widened and narrowed at the boundary, avoiding four near-identical
// per-dtype dispatch paths for the same four ops.
func dispatchBinary(a, b, dst *tensor.RawTensor, par parallel.Config, fn func(x, y float64) float64) {
	switch a.DType() {
	case tensor.Float32:
		av, bv, dv := a.AsFloat32(), b.AsFloat32(), dst.AsFloat32()
		parallel.For(len(dv), func(i int) {
			dv[i] = float32(fn(float64(av[i]), float64(bv[i])))
		}, par)
	case tensor.Float64:
		av, bv, dv := a.AsFloat64(), b.AsFloat64(), dst.AsFloat64()
		parallel.For(len(dv), func(i int) {
			dv[i] = fn(av[i], bv[i])
		}, par)
	default:
		panic("cpu: unsupported dtype in elementwise op")
	}
}

// addBroadcast, subBroadcast, mulBroadcast and divBroadcast handle the
// NumPy-style broadcasting path, where a and b may differ in shape.

func addBroadcast(dst, a, b *tensor.RawTensor, outShape tensor.Shape) {
	dispatchBroadcast(dst, a, b, outShape, func(x, y float64) float64 { return x + y })
}

func subBroadcast(dst, a, b *tensor.RawTensor, outShape tensor.Shape) {
	dispatchBroadcast(dst, a, b, outShape, func(x, y float64) float64 { return x - y })
}

func mulBroadcast(dst, a, b *tensor.RawTensor, outShape tensor.Shape) {
	dispatchBroadcast(dst, a, b, outShape, func(x, y float64) float64 { return x * y })
}

func divBroadcast(dst, a, b *tensor.RawTensor, outShape tensor.Shape) {
	dispatchBroadcast(dst, a, b, outShape, func(x, y float64) float64 { return x / y })
}

func dispatchBroadcast(dst, a, b *tensor.RawTensor, outShape tensor.Shape, fn func(x, y float64) float64) {
	outStrides := outShape.ComputeStrides()
	aStrides := computeBroadcastStridesForShape(a.Shape(), outShape)
	bStrides := computeBroadcastStridesForShape(b.Shape(), outShape)
	n := outShape.NumElements()

	switch a.DType() {
	case tensor.Float32:
		av, bv, dv := a.AsFloat32(), b.AsFloat32(), dst.AsFloat32()
		for i := 0; i < n; i++ {
			aIdx := computeFlatIndex(i, outStrides, aStrides)
			bIdx := computeFlatIndex(i, outStrides, bStrides)
			dv[i] = float32(fn(float64(av[aIdx]), float64(bv[bIdx])))
		}
	case tensor.Float64:
		av, bv, dv := a.AsFloat64(), b.AsFloat64(), dst.AsFloat64()
		for i := 0; i < n; i++ {
			aIdx := computeFlatIndex(i, outStrides, aStrides)
			bIdx := computeFlatIndex(i, outStrides, bStrides)
			dv[i] = fn(av[aIdx], bv[bIdx])
		}
	default:
		panic("cpu: unsupported dtype in broadcast op")
	}
}

func transposeFloat32(dst, src []float32, shape tensor.Shape, axes []int) {
	ndim := len(shape)
	srcStrides := shape.ComputeStrides()

	dstShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		dstShape[i] = shape[ax]
	}
	dstStrides := dstShape.ComputeStrides()

	n := shape.NumElements()
	coords := make([]int, ndim)
	for i := 0; i < n; i++ {
		idx := i
		for dim := 0; dim < ndim; dim++ {
			coords[dim] = idx / srcStrides[dim]
			idx %= srcStrides[dim]
		}

		dstIdx := 0
		for dstDim, srcDim := range axes {
			dstIdx += coords[srcDim] * dstStrides[dstDim]
		}
		dst[dstIdx] = src[i]
	}
}

func transposeFloat64(dst, src []float64, shape tensor.Shape, axes []int) {
	ndim := len(shape)
	srcStrides := shape.ComputeStrides()

	dstShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		dstShape[i] = shape[ax]
	}
	dstStrides := dstShape.ComputeStrides()

	n := shape.NumElements()
	coords := make([]int, ndim)
	for i := 0; i < n; i++ {
		idx := i
		for dim := 0; dim < ndim; dim++ {
			coords[dim] = idx / srcStrides[dim]
			idx %= srcStrides[dim]
		}

		dstIdx := 0
		for dstDim, srcDim := range axes {
			dstIdx += coords[srcDim] * dstStrides[dstDim]
		}
		dst[dstIdx] = src[i]
	}
}

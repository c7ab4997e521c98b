package cpu

import (
	"fmt"
	"math"

	"github.com/tensorforge/checkpoint/internal/tensor"
)

// ReLU computes the element-wise rectified linear unit: max(0, x).
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("relu: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		src := x.AsFloat32()
		dst := result.AsFloat32()
		for i, v := range src {
			if v > 0 {
				dst[i] = v
			}
		}
	case tensor.Float64:
		src := x.AsFloat64()
		dst := result.AsFloat64()
		for i, v := range src {
			if v > 0 {
				dst[i] = v
			}
		}
	default:
		panic(fmt.Sprintf("relu: unsupported dtype %s (only float32/float64 supported)", x.DType()))
	}

	return result
}

// Sigmoid computes the element-wise logistic function: 1 / (1 + exp(-x)).
func (cpu *CPUBackend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("sigmoid: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		src := x.AsFloat32()
		dst := result.AsFloat32()
		for i, v := range src {
			dst[i] = float32(1.0 / (1.0 + math.Exp(float64(-v))))
		}
	case tensor.Float64:
		src := x.AsFloat64()
		dst := result.AsFloat64()
		for i, v := range src {
			dst[i] = 1.0 / (1.0 + math.Exp(-v))
		}
	default:
		panic(fmt.Sprintf("sigmoid: unsupported dtype %s (only float32/float64 supported)", x.DType()))
	}

	return result
}

// Tanh computes the element-wise hyperbolic tangent.
func (cpu *CPUBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("tanh: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		src := x.AsFloat32()
		dst := result.AsFloat32()
		for i, v := range src {
			dst[i] = float32(math.Tanh(float64(v)))
		}
	case tensor.Float64:
		src := x.AsFloat64()
		dst := result.AsFloat64()
		for i, v := range src {
			dst[i] = math.Tanh(v)
		}
	default:
		panic(fmt.Sprintf("tanh: unsupported dtype %s (only float32/float64 supported)", x.DType()))
	}

	return result
}

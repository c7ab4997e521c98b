package cpu

import (
	"fmt"

	"github.com/tensorforge/checkpoint/internal/tensor"
)

// Sum reduces all elements of x to a rank-0 (scalar) tensor.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result, err := tensor.NewRaw(tensor.Shape{}, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("sum: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		var total float32
		for _, v := range x.AsFloat32() {
			total += v
		}
		result.AsFloat32()[0] = total
	case tensor.Float64:
		var total float64
		for _, v := range x.AsFloat64() {
			total += v
		}
		result.AsFloat64()[0] = total
	default:
		panic(fmt.Sprintf("sum: unsupported dtype %s (only float32/float64 supported)", x.DType()))
	}

	return result
}

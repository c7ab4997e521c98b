// Package tensor provides the tensor value type the checkpointing core
// consumes: shape, dtype and byte-size queries, plus buffer-sharing
// clones (Clone) and a destructive release back to the empty state
// (Release).
package tensor

import "fmt"

// DType is a constraint for supported tensor data types.
type DType interface {
	~float32 | ~float64
}

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	Float64
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		panic("tensor: unknown data type")
	}
}

// Validate reports an error for any dtype the footprint accountant and
// backend kernels do not recognize, rather than silently assuming a
// size (spec.md C1 edge case: unknown dtype must fail, not guess).
func (dt DataType) Validate() error {
	if dt != Float32 && dt != Float64 {
		return fmt.Errorf("tensor: unsupported dtype %d", int(dt))
	}
	return nil
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// inferDataType infers DataType from a generic type T.
func inferDataType[T DType](dummy T) DataType {
	switch any(dummy).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	default:
		panic("tensor: unsupported type")
	}
}

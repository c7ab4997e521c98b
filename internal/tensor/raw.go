package tensor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Device represents the compute device for tensor operations.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	default:
		return "Unknown"
	}
}

// tensorBuffer is a reference-counted shared buffer for Copy-on-Write semantics.
// This enables cheap cloning and inplace optimizations when refCount == 1.
type tensorBuffer struct {
	data     []byte
	refCount atomic.Int32
	mu       sync.Mutex // For safe deallocation
}

// newTensorBuffer creates a new reference-counted buffer with refCount = 1.
func newTensorBuffer(size int) *tensorBuffer {
	buf := &tensorBuffer{
		data: make([]byte, size),
	}
	buf.refCount.Store(1)
	return buf
}

// addRef increments the reference count (for Clone operations).
func (tb *tensorBuffer) addRef() {
	tb.refCount.Add(1)
}

// release decrements the reference count and deallocates if it reaches 0.
func (tb *tensorBuffer) release() {
	if tb.refCount.Add(-1) == 0 {
		tb.mu.Lock()
		defer tb.mu.Unlock()
		tb.data = nil
	}
}

// isUnique returns true if this buffer has only one reference (enables inplace ops).
func (tb *tensorBuffer) isUnique() bool {
	return tb.refCount.Load() == 1
}

// RawTensor is the low-level tensor representation consumed by the
// checkpointing core: a value type with shape/dtype/byte-size queries,
// a destructive release back to the empty state, and a Clone that
// shares the buffer. It uses a reference-counted shared buffer for
// cheap clones; writes through one clone are visible through the
// others.
//
// The zero value is the empty tensor (Empty() reports true), matching
// the "default-construct-as-empty" requirement the core relies on for
// deleted node values.
type RawTensor struct {
	buffer *tensorBuffer // Shared reference-counted buffer; nil means empty
	shape  Shape         // Tensor dimensions
	stride []int         // Memory strides (row-major)
	dtype  DataType      // Runtime type information
	device Device        // Compute device
	offset int           // Offset for slicing/views
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is allocated but not initialized (contains zeros).
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if err := dtype.Validate(); err != nil {
		return nil, err
	}

	numElements := shape.NumElements()
	byteSize := numElements * dtype.Size()

	return &RawTensor{
		buffer: newTensorBuffer(byteSize),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
		offset: 0,
	}, nil
}

// Shape returns the tensor's shape. Valid even on an empty tensor
// (returns a nil/zero-length Shape); callers who need the shape of a
// tensor that has been released should consult the owning node's
// CachedShape instead, per I3 of the checkpoint core.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes reclaimable by
// releasing this tensor.
func (r *RawTensor) ByteSize() uint64 {
	if r.Empty() {
		return 0
	}
	return r.shape.ByteSize(r.dtype)
}

// Empty reports whether this tensor holds no materialized storage,
// either because it was never allocated (zero value) or because it was
// released by the deletion pass.
func (r *RawTensor) Empty() bool {
	return r == nil || r.buffer == nil
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32 or the tensor is empty.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	data := r.buffer.data[r.offset:]
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64 or the tensor is empty.
func (r *RawTensor) AsFloat64() []float64 {
	if r.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", r.dtype))
	}
	data := r.buffer.data[r.offset:]
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*float64)(unsafe.Pointer(&data[0])), r.NumElements())
}

// Clone creates a shallow copy of the RawTensor (shares buffer with
// reference counting). The buffer is reference-counted and only
// released when the last clone is released.
func (r *RawTensor) Clone() *RawTensor {
	if r.Empty() {
		return &RawTensor{}
	}
	r.buffer.addRef()
	return &RawTensor{
		buffer: r.buffer,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		device: r.device,
		offset: r.offset,
	}
}

// Release destructively returns this tensor to the empty state,
// decrementing the shared buffer's reference count and deallocating it
// once no clone remains. After Release, Empty() reports true and
// Shape()/AsFloat32()/AsFloat64() must not be relied upon — the
// checkpoint core reads CachedShape on the owning node instead.
func (r *RawTensor) Release() {
	if r.Empty() {
		return
	}
	r.buffer.release()
	r.buffer = nil
	r.shape = nil
	r.stride = nil
}

// IsUnique returns true if this tensor is the only reference to the
// buffer, enabling inplace operations in the backend.
func (r *RawTensor) IsUnique() bool {
	return !r.Empty() && r.buffer.isUnique()
}

package tensor

import (
	"testing"
)

func TestRawTensorRelease(t *testing.T) {
	raw, _ := NewRaw(Shape{2, 2}, Float32, CPU)

	if raw.Empty() {
		t.Fatal("freshly created tensor should not be empty")
	}

	raw.Release()

	if !raw.Empty() {
		t.Error("Release() should make the tensor report Empty() == true")
	}

	// Idempotent: releasing an already-empty tensor must not panic.
	raw.Release()
}

func TestZeroValueIsEmpty(t *testing.T) {
	var raw RawTensor
	if !raw.Empty() {
		t.Error("zero-value RawTensor should be Empty()")
	}
}

func TestRawTensorCloneIsShared(t *testing.T) {
	raw, _ := NewRaw(Shape{2, 2}, Float32, CPU)
	data := raw.AsFloat32()
	data[0] = 1.0

	clone := raw.Clone()

	if clone.AsFloat32()[0] != 1.0 {
		t.Error("Clone should share data initially")
	}

	if raw.IsUnique() || clone.IsUnique() {
		t.Error("After Clone(), neither tensor should be unique")
	}
}

func TestNewRawAllTypes(t *testing.T) {
	types := []struct {
		dtype       DataType
		elementSize int
	}{
		{Float32, 4},
		{Float64, 8},
	}

	shape := Shape{2, 3}
	for _, tt := range types {
		raw, err := NewRaw(shape, tt.dtype, CPU)
		if err != nil {
			t.Fatalf("NewRaw(%v, %v) failed: %v", shape, tt.dtype, err)
		}

		if raw.DType() != tt.dtype {
			t.Errorf("DType = %v, want %v", raw.DType(), tt.dtype)
		}

		expectedByteSize := uint64(6 * tt.elementSize) // 2*3 elements
		if raw.ByteSize() != expectedByteSize {
			t.Errorf("ByteSize = %d, want %d for type %v", raw.ByteSize(), expectedByteSize, tt.dtype)
		}
	}
}

func TestNewRawInvalidShape(t *testing.T) {
	invalidShapes := []Shape{
		{0},
		{-1},
		{2, 0},
		{2, -3},
	}

	for _, shape := range invalidShapes {
		_, err := NewRaw(shape, Float32, CPU)
		if err == nil {
			t.Errorf("NewRaw(%v) should fail but didn't", shape)
		}
	}
}

func TestRawTensorReferenceCounting(t *testing.T) {
	raw, _ := NewRaw(Shape{2, 2}, Float32, CPU)

	if !raw.IsUnique() {
		t.Error("New tensor should be unique")
	}

	clone1 := raw.Clone()
	if raw.IsUnique() || clone1.IsUnique() {
		t.Error("After Clone(), neither tensor should be unique")
	}

	clone2 := raw.Clone()
	if raw.IsUnique() || clone1.IsUnique() || clone2.IsUnique() {
		t.Error("With 3 references, none should be unique")
	}

	clone1.Release()
	clone2.Release()

	_ = raw.IsUnique()
}

func TestRawTensorAsWrongTypePanics(t *testing.T) {
	raw32, _ := NewRaw(Shape{2}, Float32, CPU)

	_ = raw32.AsFloat32()

	defer func() {
		if r := recover(); r == nil {
			t.Error("AsFloat64 on Float32 tensor should panic")
		}
	}()
	_ = raw32.AsFloat64()
}

func TestRawTensorScalar(t *testing.T) {
	raw, _ := NewRaw(Shape{}, Float32, CPU)

	if raw.NumElements() != 1 {
		t.Errorf("Scalar tensor NumElements = %d, want 1", raw.NumElements())
	}

	if raw.ByteSize() != 4 {
		t.Errorf("Scalar tensor ByteSize = %d, want 4", raw.ByteSize())
	}

	data := raw.AsFloat32()
	if len(data) != 1 {
		t.Errorf("Scalar tensor data length = %d, want 1", len(data))
	}
}

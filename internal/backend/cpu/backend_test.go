package cpu

import (
	"testing"

	"github.com/tensorforge/checkpoint/internal/tensor"
)

func newFilled(t *testing.T, shape tensor.Shape, values []float32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	copy(raw.AsFloat32(), values)
	return raw
}

func TestAddSameShape(t *testing.T) {
	backend := New()
	a := newFilled(t, tensor.Shape{2}, []float32{1, 2})
	b := newFilled(t, tensor.Shape{2}, []float32{3, 4})

	out := backend.Add(a, b)
	want := []float32{4, 6}
	for i, v := range out.AsFloat32() {
		if v != want[i] {
			t.Errorf("Add[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestAddBroadcast(t *testing.T) {
	backend := New()
	a := newFilled(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	b := newFilled(t, tensor.Shape{2}, []float32{10, 20})

	out := backend.Add(a, b)
	want := []float32{11, 22, 13, 24}
	for i, v := range out.AsFloat32() {
		if v != want[i] {
			t.Errorf("Add[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestMatMul(t *testing.T) {
	backend := New()
	a := newFilled(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	b := newFilled(t, tensor.Shape{2, 2}, []float32{5, 6, 7, 8})

	out := backend.MatMul(a, b)
	want := []float32{19, 22, 43, 50}
	for i, v := range out.AsFloat32() {
		if v != want[i] {
			t.Errorf("MatMul[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestReLU(t *testing.T) {
	backend := New()
	x := newFilled(t, tensor.Shape{4}, []float32{-2, -1, 0, 3})

	out := backend.ReLU(x)
	want := []float32{0, 0, 0, 3}
	for i, v := range out.AsFloat32() {
		if v != want[i] {
			t.Errorf("ReLU[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestSum(t *testing.T) {
	backend := New()
	x := newFilled(t, tensor.Shape{4}, []float32{1, 2, 3, 4})

	out := backend.Sum(x)
	if out.AsFloat32()[0] != 10 {
		t.Errorf("Sum = %v, want 10", out.AsFloat32()[0])
	}
}

func TestTransposeDefault(t *testing.T) {
	backend := New()
	x := newFilled(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})

	out := backend.Transpose(x)
	if !out.Shape().Equal(tensor.Shape{3, 2}) {
		t.Fatalf("Transpose shape = %v, want [3 2]", out.Shape())
	}
	want := []float32{1, 4, 2, 5, 3, 6}
	for i, v := range out.AsFloat32() {
		if v != want[i] {
			t.Errorf("Transpose[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestReshapeRejectsElementCountMismatch(t *testing.T) {
	backend := New()
	x := newFilled(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})

	defer func() {
		if r := recover(); r == nil {
			t.Error("Reshape to incompatible shape should panic")
		}
	}()
	backend.Reshape(x, tensor.Shape{4, 4})
}

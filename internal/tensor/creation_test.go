package tensor

import (
	"math"
	"testing"
)

func TestZerosFloat32(t *testing.T) {
	shape := Shape{2, 3}
	raw := Zeros[float32](shape, CPU)

	if !shape.Equal(raw.Shape()) {
		t.Errorf("Zeros shape = %v, want %v", raw.Shape(), shape)
	}

	for i, v := range raw.AsFloat32() {
		if v != 0 {
			t.Errorf("Zeros[%d] = %v, want 0", i, v)
		}
	}
}

func TestZerosFloat64(t *testing.T) {
	shape := Shape{3, 2}
	raw := Zeros[float64](shape, CPU)

	for i, v := range raw.AsFloat64() {
		if v != 0 {
			t.Errorf("Zeros[%d] = %v, want 0", i, v)
		}
	}
}

func TestFullFloat32(t *testing.T) {
	shape := Shape{3, 3}
	raw := Full[float32](shape, 42, CPU)

	for i, v := range raw.AsFloat32() {
		if v != 42 {
			t.Errorf("Full[%d] = %v, want 42", i, v)
		}
	}
}

func TestFullFloat64(t *testing.T) {
	shape := Shape{2, 2}
	raw := Full[float64](shape, 7.5, CPU)

	for i, v := range raw.AsFloat64() {
		if v != 7.5 {
			t.Errorf("Full[%d] = %v, want 7.5", i, v)
		}
	}
}

func TestRandnFloat32ProducesVariedValues(t *testing.T) {
	raw := Randn[float32](Shape{100, 50}, CPU)
	data := raw.AsFloat32()

	nonZero := 0
	for _, v := range data {
		if v != 0 {
			nonZero++
		}
	}
	if nonZero < len(data)/2 {
		t.Errorf("Randn should produce mostly non-zero values, got %d of %d", nonZero, len(data))
	}

	var sum float64
	for _, v := range data {
		sum += float64(v)
	}
	mean := sum / float64(len(data))
	if math.Abs(mean) > 0.5 {
		t.Logf("Randn mean = %v, expected roughly 0", mean)
	}
}

func TestRandnFloat64Shape(t *testing.T) {
	shape := Shape{10, 10}
	raw := Randn[float64](shape, CPU)

	if !shape.Equal(raw.Shape()) {
		t.Errorf("Randn shape = %v, want %v", raw.Shape(), shape)
	}
}

func TestRandnOddElementCount(t *testing.T) {
	// Box-Muller fills pairs; an odd element count exercises the
	// leftover-element branch.
	raw := Randn[float32](Shape{7}, CPU)
	if raw.NumElements() != 7 {
		t.Fatalf("NumElements = %d, want 7", raw.NumElements())
	}
}

package tensor

import (
	"math"
	"math/rand"
)

// Zeros creates a RawTensor filled with zeros.
func Zeros[T DType](shape Shape, device Device) *RawTensor {
	var dummy T
	dtype := inferDataType(dummy)

	raw, err := NewRaw(shape, dtype, device)
	if err != nil {
		panic(err) // Shape validation should prevent this.
	}
	return raw // make() already zero-initializes the buffer.
}

// Full creates a RawTensor filled with a specific value.
func Full[T DType](shape Shape, value T, device Device) *RawTensor {
	t := Zeros[T](shape, device)
	switch any(value).(type) {
	case float32:
		data := t.AsFloat32()
		v := any(value).(float32)
		for i := range data {
			data[i] = v
		}
	case float64:
		data := t.AsFloat64()
		v := any(value).(float64)
		for i := range data {
			data[i] = v
		}
	}
	return t
}

// Randn creates a RawTensor with values from a standard normal
// distribution, using the Box-Muller transform.
//
// Uses math/rand rather than crypto/rand: pseudo-random activations
// are what training and this package's tests want, not cryptographic
// unpredictability. The package-level math/rand source is seeded at
// random, so values differ from run to run.
func Randn[T DType](shape Shape, device Device) *RawTensor {
	t := Zeros[T](shape, device)
	switch any(*new(T)).(type) {
	case float32:
		data := t.AsFloat32()
		fillNormalFloat32(data)
	case float64:
		data := t.AsFloat64()
		fillNormalFloat64(data)
	}
	return t
}

func fillNormalFloat32(data []float32) {
	for i := 0; i < len(data); i += 2 {
		u1 := rand.Float64() //nolint:gosec // math/rand is intentional for ML activations
		u2 := rand.Float64() //nolint:gosec // math/rand is intentional for ML activations
		z0 := math.Sqrt(-2.0*math.Log(u1)) * math.Cos(2.0*math.Pi*u2)
		z1 := math.Sqrt(-2.0*math.Log(u1)) * math.Sin(2.0*math.Pi*u2)
		data[i] = float32(z0)
		if i+1 < len(data) {
			data[i+1] = float32(z1)
		}
	}
}

func fillNormalFloat64(data []float64) {
	for i := 0; i < len(data); i += 2 {
		u1 := rand.Float64() //nolint:gosec // math/rand is intentional for ML activations
		u2 := rand.Float64() //nolint:gosec // math/rand is intentional for ML activations
		z0 := math.Sqrt(-2.0*math.Log(u1)) * math.Cos(2.0*math.Pi*u2)
		z1 := math.Sqrt(-2.0*math.Log(u1)) * math.Sin(2.0*math.Pi*u2)
		data[i] = z0
		if i+1 < len(data) {
			data[i+1] = z1
		}
	}
}

package tensor

// Backend defines the compute interface the graph/ops layer dispatches
// forward-op execution to. This is the minimal set spec.md's §4.5
// forward re-execution primitive requires: Add, Sub, Mul, Div, MatMul,
// ReLU, Tanh, Exp, Log, Sigmoid, Transpose, Sum, plus the identity-like
// Reshape a handful of ops need to restore shape after a reduction.
//
// Implementations: internal/backend/cpu (pure Go).
type Backend interface {
	// Element-wise binary operations.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Matrix multiplication (2D only).
	MatMul(a, b *RawTensor) *RawTensor

	// Shape operations.
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// Element-wise math.
	Exp(x *RawTensor) *RawTensor
	Log(x *RawTensor) *RawTensor

	// Activations.
	ReLU(x *RawTensor) *RawTensor
	Sigmoid(x *RawTensor) *RawTensor
	Tanh(x *RawTensor) *RawTensor

	// Sum reduces all elements to a rank-0 (scalar) tensor.
	Sum(x *RawTensor) *RawTensor

	// Name identifies the backend for diagnostics.
	Name() string
	// Device reports the compute device this backend targets.
	Device() Device
}

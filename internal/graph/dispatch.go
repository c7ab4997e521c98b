package graph

import (
	"fmt"

	"github.com/tensorforge/checkpoint/internal/tensor"
)

// Apply runs op's forward computation over inputs on backend and
// returns the resulting node, wired with owning references back to
// inputs. Both ordinary forward passes and the checkpoint core's
// recomputation replay go through EvalWithSaved, so the two can never
// compute an op (or its saved backward state) differently.
func Apply(backend tensor.Backend, op Op, inputs []*Node, axes []int) *Node {
	value, saved := EvalWithSaved(backend, op, inputs, axes)

	requiresGrad := false
	for _, in := range inputs {
		if in.RequiresGrad {
			requiresGrad = true
			break
		}
	}

	return &Node{
		Op:           op,
		Inputs:       inputs,
		Axes:         axes,
		Value:        value,
		SavedTensors: saved,
		RequiresGrad: requiresGrad,
		CachedShape:  value.Shape(),
	}
}

// Eval computes op's forward value from inputs' materialized values,
// without constructing a Node or touching saved backward state. Most
// callers that need a node's saved tensors kept consistent with its
// value should call EvalWithSaved instead.
func Eval(backend tensor.Backend, op Op, inputs []*Node, axes []int) *tensor.RawTensor {
	value, _ := EvalWithSaved(backend, op, inputs, axes)
	return value
}

// EvalWithSaved computes op's forward value from inputs' materialized
// values, plus whatever extra tensors that op's VJP needs beyond
// Inputs' own values (e.g. ReLU's zero/nonzero mask). Apply uses this
// for the initial forward pass, and checkpoint.Recompute
// uses it to re-derive both a deleted value and its saved tensors from
// live ancestors, so a node's SavedTensors are never stale relative to
// its Value.
func EvalWithSaved(backend tensor.Backend, op Op, inputs []*Node, axes []int) (*tensor.RawTensor, []*tensor.RawTensor) {
	value := evalValue(backend, op, inputs, axes)
	return value, saveTensorsFor(backend, op, inputs, value)
}

func evalValue(backend tensor.Backend, op Op, inputs []*Node, axes []int) *tensor.RawTensor {
	switch op {
	case OpAdd:
		return backend.Add(inputs[0].Value, inputs[1].Value)
	case OpSub:
		return backend.Sub(inputs[0].Value, inputs[1].Value)
	case OpMul:
		return backend.Mul(inputs[0].Value, inputs[1].Value)
	case OpDiv:
		return backend.Div(inputs[0].Value, inputs[1].Value)
	case OpMatMul:
		return backend.MatMul(inputs[0].Value, inputs[1].Value)
	case OpReLU:
		return backend.ReLU(inputs[0].Value)
	case OpSigmoid:
		return backend.Sigmoid(inputs[0].Value)
	case OpTanh:
		return backend.Tanh(inputs[0].Value)
	case OpExp:
		return backend.Exp(inputs[0].Value)
	case OpLog:
		return backend.Log(inputs[0].Value)
	case OpTranspose:
		return backend.Transpose(inputs[0].Value, axes...)
	case OpSum:
		return backend.Sum(inputs[0].Value)
	case OpLeaf:
		panic("graph: Eval called on OpLeaf, which has no forward computation")
	default:
		panic(fmt.Sprintf("graph: unsupported op %s in Eval", op))
	}
}

// saveTensorsFor stashes whatever tensors op's VJP needs beyond its
// inputs' and output's own values. ReLU's backward pass needs the
// zero/nonzero mask of its input; computing it once here at forward
// (or recompute) time means VJP never has to re-derive it from a value
// that deletion may since have released.
func saveTensorsFor(backend tensor.Backend, op Op, inputs []*Node, value *tensor.RawTensor) []*tensor.RawTensor {
	switch op {
	case OpReLU:
		return []*tensor.RawTensor{reluMask(backend, inputs[0].Value)}
	default:
		return nil
	}
}

// VJP computes the vector-Jacobian product for n's op: the gradients
// with respect to n's inputs, given the gradient with respect to n's
// output. Reads inputs from n.Inputs rather than from an op's own
// recorded fields, since nodes here are DAG vertices, not tape entries.
func VJP(backend tensor.Backend, n *Node, outputGrad *tensor.RawTensor) []*tensor.RawTensor {
	switch n.Op {
	case OpAdd:
		a, b := n.Inputs[0], n.Inputs[1]
		return []*tensor.RawTensor{
			reduceBroadcast(backend, outputGrad, a.Shape()),
			reduceBroadcast(backend, outputGrad, b.Shape()),
		}

	case OpSub:
		a, b := n.Inputs[0], n.Inputs[1]
		return []*tensor.RawTensor{
			reduceBroadcast(backend, outputGrad, a.Shape()),
			reduceBroadcast(backend, negate(backend, outputGrad), b.Shape()),
		}

	case OpMul:
		a, b := n.Inputs[0], n.Inputs[1]
		gradA := reduceBroadcast(backend, backend.Mul(outputGrad, b.Value), a.Shape())
		gradB := reduceBroadcast(backend, backend.Mul(outputGrad, a.Value), b.Shape())
		return []*tensor.RawTensor{gradA, gradB}

	case OpDiv:
		a, b := n.Inputs[0], n.Inputs[1]
		gradA := reduceBroadcast(backend, backend.Div(outputGrad, b.Value), a.Shape())
		bSquared := backend.Mul(b.Value, b.Value)
		numerator := backend.Mul(outputGrad, a.Value)
		gradB := reduceBroadcast(backend, negate(backend, backend.Div(numerator, bSquared)), b.Shape())
		return []*tensor.RawTensor{gradA, gradB}

	case OpMatMul:
		a, b := n.Inputs[0], n.Inputs[1]
		bT := backend.Transpose(b.Value, 1, 0)
		gradA := backend.MatMul(outputGrad, bT)
		aT := backend.Transpose(a.Value, 1, 0)
		gradB := backend.MatMul(aT, outputGrad)
		return []*tensor.RawTensor{gradA, gradB}

	case OpReLU:
		mask := reluMaskFor(backend, n)
		return []*tensor.RawTensor{backend.Mul(outputGrad, mask)}

	case OpSigmoid:
		ones := filled(backend, n.Value.Shape(), n.Value.DType(), 1.0)
		oneMinus := backend.Sub(ones, n.Value)
		derivative := backend.Mul(n.Value, oneMinus)
		return []*tensor.RawTensor{backend.Mul(outputGrad, derivative)}

	case OpTanh:
		squared := backend.Mul(n.Value, n.Value)
		ones := filled(backend, n.Value.Shape(), n.Value.DType(), 1.0)
		derivative := backend.Sub(ones, squared)
		return []*tensor.RawTensor{backend.Mul(outputGrad, derivative)}

	case OpExp:
		return []*tensor.RawTensor{backend.Mul(outputGrad, n.Value)}

	case OpLog:
		return []*tensor.RawTensor{backend.Div(outputGrad, n.Inputs[0].Value)}

	case OpTranspose:
		inverse := make([]int, len(n.Axes))
		for i, ax := range n.Axes {
			inverse[ax] = i
		}
		return []*tensor.RawTensor{backend.Transpose(outputGrad, inverse...)}

	case OpSum:
		return []*tensor.RawTensor{broadcastTo(backend, outputGrad, n.Inputs[0].Shape())}

	default:
		panic(fmt.Sprintf("graph: unsupported op %s in VJP", n.Op))
	}
}

// reduceBroadcast sums grad down to targetShape along whatever
// dimensions forward broadcasting introduced, mirroring
// ops.reduceBroadcast.
func reduceBroadcast(backend tensor.Backend, grad *tensor.RawTensor, targetShape tensor.Shape) *tensor.RawTensor {
	if grad.Shape().Equal(targetShape) {
		return grad.Clone()
	}
	if len(targetShape) == 0 {
		return backend.Sum(grad)
	}

	result := grad
	gradDims := len(result.Shape())
	targetDims := len(targetShape)

	for i := 0; i < gradDims-targetDims; i++ {
		result = sumAlongDimension(backend, result, 0)
	}

	shape := result.Shape()
	for i := 0; i < targetDims; i++ {
		if targetShape[i] == 1 && shape[i] > 1 {
			result = sumAlongDimension(backend, result, i)
		}
	}

	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}
	return result
}

// sumAlongDimension sums t along dim, keeping dim present with size 1.
func sumAlongDimension(backend tensor.Backend, t *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := t.Shape()
	outShape := shape.Clone()
	outShape[dim] = 1

	result, err := tensor.NewRaw(outShape, t.DType(), t.Device())
	if err != nil {
		panic(fmt.Sprintf("graph: sumAlongDimension: %v", err))
	}

	strides := shape.ComputeStrides()
	outStrides := outShape.ComputeStrides()
	n := shape.NumElements()

	switch t.DType() {
	case tensor.Float32:
		src, dst := t.AsFloat32(), result.AsFloat32()
		for i := 0; i < n; i++ {
			dst[outIndex(i, strides, outStrides, dim)] += src[i]
		}
	case tensor.Float64:
		src, dst := t.AsFloat64(), result.AsFloat64()
		for i := 0; i < n; i++ {
			dst[outIndex(i, strides, outStrides, dim)] += src[i]
		}
	default:
		panic(fmt.Sprintf("graph: sumAlongDimension: unsupported dtype %s", t.DType()))
	}

	return result
}

func outIndex(flat int, strides, outStrides []int, reduceDim int) int {
	idx := 0
	remaining := flat
	for d := 0; d < len(strides); d++ {
		coord := remaining / strides[d]
		remaining %= strides[d]
		if d == reduceDim {
			continue
		}
		idx += coord * outStrides[d]
	}
	return idx
}

// broadcastTo expands t up to targetShape, the inverse of
// reduceBroadcast, used by OpSum's backward.
func broadcastTo(backend tensor.Backend, t *tensor.RawTensor, targetShape tensor.Shape) *tensor.RawTensor {
	if t.Shape().Equal(targetShape) {
		return t.Clone()
	}

	result, err := tensor.NewRaw(targetShape, t.DType(), t.Device())
	if err != nil {
		panic(fmt.Sprintf("graph: broadcastTo: %v", err))
	}

	srcShape := t.Shape()
	// Pad srcShape on the left with 1s to targetShape's rank, as
	// scalar/lower-rank grads broadcast against higher-rank inputs.
	padded := make(tensor.Shape, len(targetShape))
	offset := len(targetShape) - len(srcShape)
	for i := range padded {
		if i < offset {
			padded[i] = 1
		} else {
			padded[i] = srcShape[i-offset]
		}
	}

	srcStrides := computeBroadcastStridesForShape(padded, targetShape)
	outStrides := targetShape.ComputeStrides()
	n := targetShape.NumElements()

	switch t.DType() {
	case tensor.Float32:
		src, dst := t.AsFloat32(), result.AsFloat32()
		for i := 0; i < n; i++ {
			dst[i] = src[computeFlatIndex(i, outStrides, srcStrides)]
		}
	case tensor.Float64:
		src, dst := t.AsFloat64(), result.AsFloat64()
		for i := 0; i < n; i++ {
			dst[i] = src[computeFlatIndex(i, outStrides, srcStrides)]
		}
	default:
		panic(fmt.Sprintf("graph: broadcastTo: unsupported dtype %s", t.DType()))
	}

	return result
}

func computeBroadcastStridesForShape(inShape, outShape tensor.Shape) []int {
	outDim := len(outShape)
	strides := make([]int, outDim)
	origStrides := inShape.ComputeStrides()
	for i := 0; i < outDim; i++ {
		if inShape[i] == 1 {
			strides[i] = 0
		} else {
			strides[i] = origStrides[i]
		}
	}
	return strides
}

func computeFlatIndex(outIdx int, outStrides, inStrides []int) int {
	flatIdx := 0
	for i := 0; i < len(outStrides); i++ {
		coord := outIdx / outStrides[i]
		outIdx %= outStrides[i]
		flatIdx += coord * inStrides[i]
	}
	return flatIdx
}

func negate(backend tensor.Backend, t *tensor.RawTensor) *tensor.RawTensor {
	zeros, err := tensor.NewRaw(t.Shape(), t.DType(), t.Device())
	if err != nil {
		panic(fmt.Sprintf("graph: negate: %v", err))
	}
	return backend.Sub(zeros, t)
}

func filled(backend tensor.Backend, shape tensor.Shape, dtype tensor.DataType, value float64) *tensor.RawTensor {
	t, err := tensor.NewRaw(shape, dtype, backend.Device())
	if err != nil {
		panic(fmt.Sprintf("graph: filled: %v", err))
	}
	switch dtype {
	case tensor.Float32:
		data := t.AsFloat32()
		for i := range data {
			data[i] = float32(value)
		}
	case tensor.Float64:
		data := t.AsFloat64()
		for i := range data {
			data[i] = value
		}
	}
	return t
}

// reluMaskFor returns n's saved ReLU mask, computed at forward or
// recompute time by saveTensorsFor. Falls back to recomputing it
// directly from the input's live value for nodes VJP is called on
// without having gone through EvalWithSaved first (e.g. hand-built in
// tests).
func reluMaskFor(backend tensor.Backend, n *Node) *tensor.RawTensor {
	if len(n.SavedTensors) > 0 && !n.SavedTensors[0].Empty() {
		return n.SavedTensors[0]
	}
	return reluMask(backend, n.Inputs[0].Value)
}

func reluMask(backend tensor.Backend, input *tensor.RawTensor) *tensor.RawTensor {
	mask, err := tensor.NewRaw(input.Shape(), input.DType(), backend.Device())
	if err != nil {
		panic(fmt.Sprintf("graph: reluMask: %v", err))
	}
	switch input.DType() {
	case tensor.Float32:
		in, out := input.AsFloat32(), mask.AsFloat32()
		for i, v := range in {
			if v > 0 {
				out[i] = 1.0
			}
		}
	case tensor.Float64:
		in, out := input.AsFloat64(), mask.AsFloat64()
		for i, v := range in {
			if v > 0 {
				out[i] = 1.0
			}
		}
	default:
		panic(fmt.Sprintf("graph: reluMask: unsupported dtype %s", input.DType()))
	}
	return mask
}

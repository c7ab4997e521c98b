package checkpoint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorforge/checkpoint/internal/backend/cpu"
	"github.com/tensorforge/checkpoint/internal/graph"
	"github.com/tensorforge/checkpoint/internal/tensor"
)

func vecLeaf(t *testing.T, values []float32) *graph.Node {
	t.Helper()
	raw, err := tensor.NewRaw(tensor.Shape{len(values)}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(raw.AsFloat32(), values)
	return graph.NewLeaf(raw, true)
}

// chainOf builds a linear chain of n interior nodes, each consuming
// the previous via OpExp, rooted at a single leaf.
func chainOf(t *testing.T, backend tensor.Backend, n int) (leaf *graph.Node, root *graph.Node) {
	t.Helper()
	leaf = vecLeaf(t, []float32{1, 2, 3})
	cur := leaf
	for i := 0; i < n; i++ {
		cur = graph.Apply(backend, graph.OpExp, []*graph.Node{cur}, nil)
	}
	return leaf, cur
}

func TestUniformPolicyOnSevenNodeChain(t *testing.T) {
	backend := cpu.New()
	_, root := chainOf(t, backend, 7)
	order := graph.TopologicalOrder(root)

	policy, err := NewUniformPolicy(2)
	require.NoError(t, err)
	Mark(order, policy)
	deleted, _ := DeleteUnmarked(order)

	assert.Greater(t, deleted, 0)

	// Every surviving interior node's value must either still be live
	// or be recomputable back to a live ancestor.
	for _, n := range order {
		require.NoError(t, EnsureLive(backend, n, 0))
		assert.False(t, n.Value.Empty())
	}
}

func TestAdaptivePolicyOnTwoLayerMLP(t *testing.T) {
	backend := cpu.New()
	x := vecLeaf(t, []float32{1, 2, 3, 4})
	w1 := vecLeaf(t, []float32{0.1, 0.2, 0.3, 0.4})
	h1 := graph.Apply(backend, graph.OpMul, []*graph.Node{x, w1}, nil)
	a1 := graph.Apply(backend, graph.OpReLU, []*graph.Node{h1}, nil)
	w2 := vecLeaf(t, []float32{0.5, 0.6, 0.7, 0.8})
	h2 := graph.Apply(backend, graph.OpMul, []*graph.Node{a1, w2}, nil)
	out := graph.Apply(backend, graph.OpSigmoid, []*graph.Node{h2}, nil)

	order := graph.TopologicalOrder(out)
	Mark(order, NewAdaptivePolicy())
	DeleteUnmarked(order)

	// out (the root) is always a checkpoint; with N=4 non-leaf nodes,
	// ceil(sqrt(4))=2 more are kept: a1, whose saved ReLU mask gives it
	// the largest footprint, and h1, first by the stable tie-break among
	// the equal footprints of the rest. That leaves h2 deleted and
	// recomputable from its surviving ancestor a1.
	require.False(t, out.ValueDeleted)
	require.True(t, h2.ValueDeleted)
	require.NoError(t, EnsureLive(backend, h2, 0))
	assert.False(t, h2.Value.Empty())
	require.NoError(t, EnsureLive(backend, out, 0))
	assert.False(t, out.Value.Empty())
}

func TestBudgetPolicyNoDeletionEdgeCase(t *testing.T) {
	backend := cpu.New()
	leaf := vecLeaf(t, make([]float32, 50*50))
	cur := leaf
	for i := 0; i < 10; i++ {
		cur = graph.Apply(backend, graph.OpExp, []*graph.Node{cur}, nil)
	}
	order := graph.TopologicalOrder(cur)

	// Each interior node is 50*50*4 = 10000 bytes; an 8 KiB budget
	// can't fit even one, so the fallback must checkpoint everything
	// rather than checkpoint nothing.
	policy, err := NewBudgetPolicy(8 * 1024)
	require.NoError(t, err)
	Mark(order, policy)

	for _, n := range order {
		if n.IsLeaf() {
			continue
		}
		assert.True(t, n.IsCheckpoint, "interior node must be checkpointed under the no-deletion fallback")
	}

	deleted, _ := DeleteUnmarked(order)
	assert.Equal(t, 0, deleted)
}

func TestBudgetPolicySpacesCheckpointsByBudget(t *testing.T) {
	backend := cpu.New()
	_, root := chainOf(t, backend, 5)
	order := graph.TopologicalOrder(root)

	perNode := Footprint(order[1]) // every interior node has the same shape/dtype here
	policy, err := NewBudgetPolicy(2 * perNode)
	require.NoError(t, err)
	Mark(order, policy)

	assert.True(t, root.IsCheckpoint, "root must always be marked")

	// Every surviving interior node remains reachable from a live
	// ancestor, regardless of exact spacing.
	deleted, _ := DeleteUnmarked(order)
	assert.Greater(t, deleted, 0, "a budget tighter than the whole chain must still free some nodes")
	for _, n := range order {
		require.NoError(t, EnsureLive(backend, n, 0))
		assert.False(t, n.Value.Empty())
	}
}

func TestRecomputeNoCheckpointReachable(t *testing.T) {
	backend := cpu.New()
	leaf := vecLeaf(t, []float32{1, 2, 3})
	c := graph.Apply(backend, graph.OpExp, []*graph.Node{leaf}, nil)

	// Delete c's value without ever deleting a leaf's, then forcibly
	// wipe the leaf too so no live ancestor exists on the path.
	c.Value.Release()
	c.ValueDeleted = true
	leaf.Value.Release()
	leaf.ValueDeleted = true

	err := Recompute(backend, c, 0)
	assert.ErrorIs(t, err, ErrNoCheckpointReachable)
}

func TestRecomputeUnsupportedOp(t *testing.T) {
	backend := cpu.New()
	leaf := vecLeaf(t, []float32{1, 2, 3})
	bad := &graph.Node{Op: graph.OpCustom, Inputs: []*graph.Node{leaf}}
	bad.Value, _ = tensor.NewRaw(tensor.Shape{3}, tensor.Float32, tensor.CPU)
	bad.CachedShape = bad.Value.Shape()
	bad.Value.Release()
	bad.ValueDeleted = true

	err := Recompute(backend, bad, 0)
	var recomputeErr *RecomputeError
	require.True(t, errors.As(err, &recomputeErr))
	assert.ErrorIs(t, recomputeErr, ErrUnsupportedOpDuringRecompute)
}

func TestRecomputeStochasticOpOnDeletedPath(t *testing.T) {
	backend := cpu.New()
	leaf := vecLeaf(t, []float32{1, 2, 3})
	stochastic := &graph.Node{Op: graph.OpDropout, Inputs: []*graph.Node{leaf}}
	stochastic.Value, _ = tensor.NewRaw(tensor.Shape{3}, tensor.Float32, tensor.CPU)
	stochastic.CachedShape = stochastic.Value.Shape()
	stochastic.Value.Release()
	stochastic.ValueDeleted = true

	err := Recompute(backend, stochastic, 0)
	var recomputeErr *RecomputeError
	require.True(t, errors.As(err, &recomputeErr))
	assert.ErrorIs(t, recomputeErr, ErrStochasticOpOnDeletedPath)
}

func TestRecomputeDepthExceeded(t *testing.T) {
	backend := cpu.New()
	leaf, root := chainOf(t, backend, 5)
	order := graph.TopologicalOrder(root)
	for _, n := range order {
		if n == leaf {
			continue
		}
		n.Value.Release()
		n.ValueDeleted = true
	}

	err := Recompute(backend, root, 1)
	assert.ErrorIs(t, err, ErrRecomputeDepthExceeded)
}

func TestZeroGradIdempotentAfterDeletion(t *testing.T) {
	backend := cpu.New()
	_, root := chainOf(t, backend, 3)
	order := graph.TopologicalOrder(root)

	// chainOf's leaf has RequiresGrad set, so every node it reaches
	// inherits RequiresGrad per graph.Apply's propagation rule.
	for _, n := range order {
		require.True(t, n.RequiresGrad)
	}

	policy, err := NewUniformPolicy(2)
	require.NoError(t, err)
	Mark(order, policy)
	DeleteUnmarked(order)

	someDeleted := false
	for _, n := range order {
		if n.ValueDeleted {
			someDeleted = true
		}
	}
	require.True(t, someDeleted)

	ZeroGrad(root)
	for _, n := range order {
		require.NotNil(t, n.Grad)
		assert.False(t, n.Grad.Empty())
		assert.Equal(t, n.Shape().NumElements(), n.Grad.Shape().NumElements())
		for _, v := range n.Grad.AsFloat32() {
			assert.Zero(t, v)
		}
	}

	// Calling again after deletion must not panic or error, and must
	// still size the replacement grad off CachedShape rather than a
	// released value.
	assert.NotPanics(t, func() { ZeroGrad(root) })
	for _, n := range order {
		require.NotNil(t, n.Grad)
		assert.False(t, n.Grad.Empty())
	}
}

func TestManagerAnalyzeAndDeleteProduceStats(t *testing.T) {
	backend := cpu.New()
	_, root := chainOf(t, backend, 9)

	m, err := NewManager(backend, Config{
		Policy:   PolicyUniform,
		Interval: 3,
	})
	require.NoError(t, err)

	marked := m.AnalyzeAndMark(root)
	assert.Greater(t, marked, 0)
	stats := m.Stats()
	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, marked, stats.MarkedCount)

	freed := m.DeleteUnmarked(root)
	assert.Greater(t, freed, uint64(0))
	assert.Equal(t, freed, m.Stats().BytesFreed)

	// root itself is a checkpoint (always marked), but its direct
	// input was deleted and must be recomputed.
	require.NoError(t, m.EnsureInputsLive(root))
	assert.False(t, root.Inputs[0].Value.Empty())
	assert.Greater(t, m.Stats().RecomputeCount, 0)
}

func TestManagerManualPolicyIsNoOp(t *testing.T) {
	backend := cpu.New()
	leaf, root := chainOf(t, backend, 4)
	order := graph.TopologicalOrder(root)
	var victim *graph.Node
	for _, n := range order {
		if n != leaf && n != root {
			victim = n
			break
		}
	}
	require.NotNil(t, victim)

	m, err := NewManager(backend, Config{Policy: PolicyManual})
	require.NoError(t, err)
	m.Checkpoint(victim)

	marked := m.AnalyzeAndMark(root)
	assert.Equal(t, 0, marked, "manual policy's AnalyzeAndMark must be a no-op")
	assert.True(t, victim.IsCheckpoint)

	m.DeleteUnmarked(root)
	assert.False(t, victim.Value.Empty(), "manually checkpointed node must survive deletion")
	assert.True(t, root.Value.Empty()) // root has no marker under manual policy, so it's a deletion candidate
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	backend := cpu.New()
	_, err := NewManager(backend, Config{Policy: "bogus"})
	assert.ErrorIs(t, err, ErrConfigInvalid)

	_, err = NewManager(nil, Config{Policy: PolicyUniform, Interval: 2})
	assert.ErrorIs(t, err, ErrConfigInvalid)

	_, err = NewManager(backend, Config{Policy: PolicyUniform, Interval: 0})
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestRecomputeIsNoOpWhenAlreadyLive(t *testing.T) {
	backend := cpu.New()
	leaf := vecLeaf(t, []float32{1, 2, 3})
	c := graph.Apply(backend, graph.OpExp, []*graph.Node{leaf}, nil)

	require.NoError(t, Recompute(backend, c, 0))
	assert.False(t, c.ValueDeleted)
}

func TestFootprintIncludesSavedTensors(t *testing.T) {
	backend := cpu.New()
	leaf := vecLeaf(t, []float32{-1, 2, -3, 4})
	relu := graph.Apply(backend, graph.OpReLU, []*graph.Node{leaf}, nil)

	require.Len(t, relu.SavedTensors, 1)
	assert.False(t, relu.SavedTensors[0].Empty())

	want := relu.Value.ByteSize() + relu.SavedTensors[0].ByteSize()
	assert.Equal(t, want, Footprint(relu))
}

func TestDeleteUnmarkedReleasesSavedTensorsAndRecomputeRestoresThem(t *testing.T) {
	backend := cpu.New()
	leaf := vecLeaf(t, []float32{-1, 2, -3, 4})
	relu := graph.Apply(backend, graph.OpReLU, []*graph.Node{leaf}, nil)
	root := graph.Apply(backend, graph.OpExp, []*graph.Node{relu}, nil)
	order := graph.TopologicalOrder(root)

	// interval=2 over [leaf, relu, root]: relu (index 1) is left
	// unmarked, root (index 2, also the last) is checkpointed.
	policy, err := NewUniformPolicy(2)
	require.NoError(t, err)
	Mark(order, policy)
	require.False(t, relu.IsCheckpoint)

	_, freed := DeleteUnmarked(order)
	assert.Greater(t, freed, uint64(0))
	assert.True(t, relu.ValueDeleted)
	assert.Nil(t, relu.SavedTensors)

	require.NoError(t, EnsureLive(backend, relu, 0))
	require.Len(t, relu.SavedTensors, 1)
	assert.False(t, relu.SavedTensors[0].Empty())

	want := reluMaskValues([]float32{-1, 2, -3, 4})
	assert.Equal(t, want, relu.SavedTensors[0].AsFloat32())
}

func reluMaskValues(in []float32) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		if v > 0 {
			out[i] = 1
		}
	}
	return out
}

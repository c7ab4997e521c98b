// Command checkpointdemo builds a synthetic forward graph, runs a
// configured checkpoint placement policy over it, deletes the
// unmarked nodes, and runs a reverse-mode backward pass that
// recomputes whatever the deletion pass released.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"

	"github.com/tensorforge/checkpoint/checkpoint"
	"github.com/tensorforge/checkpoint/internal/backend/cpu"
	"github.com/tensorforge/checkpoint/internal/graph"
	"github.com/tensorforge/checkpoint/internal/reverse"
	"github.com/tensorforge/checkpoint/internal/tensor"
)

func main() {
	policyName := flag.String("policy", "uniform", "placement policy: manual, uniform, adaptive, budget")
	depth := flag.Int("depth", 12, "number of chained layers in the synthetic graph")
	width := flag.Int("width", 64, "width of each layer's activation vector")
	interval := flag.Int("interval", 3, "uniform policy: checkpoint every N-th node")
	budgetKB := flag.Int("budget-kb", 16, "budget policy: ceiling in KiB on non-checkpoint memory between checkpoints")
	verbose := flag.Bool("verbose", false, "log each mark/delete/recompute event")
	flag.Parse()

	backend := cpu.New()
	leaf, root := buildChain(backend, *depth, *width)

	cfg := checkpoint.Config{Verbose: *verbose}
	switch *policyName {
	case "manual":
		cfg.Policy = checkpoint.PolicyManual
	case "uniform":
		cfg.Policy = checkpoint.PolicyUniform
		cfg.Interval = *interval
	case "adaptive":
		cfg.Policy = checkpoint.PolicyAdaptive
	case "budget":
		cfg.Policy = checkpoint.PolicyBudget
		cfg.BudgetBytes = uint64(*budgetKB) * 1024
	default:
		log.Fatalf("unknown policy %q", *policyName)
	}

	mgr, err := checkpoint.NewManager(backend, cfg)
	if err != nil {
		log.Fatalf("new manager: %v", err)
	}

	marked := mgr.AnalyzeAndMark(root)
	freed := mgr.DeleteUnmarked(root)
	fmt.Printf("policy=%s marked=%d bytes_freed=%d\n", *policyName, marked, freed)

	if err := reverse.Backward(mgr, root); err != nil {
		log.Fatalf("backward: %v", err)
	}

	stats := mgr.Stats()
	fmt.Printf("run=%s recompute_count=%d\n", stats.RunID, stats.RecomputeCount)
	fmt.Printf("leaf grad norm: %.6f\n", gradNorm(leaf))
}

// buildChain constructs a linear chain of depth Exp/ReLU layers over a
// width-element leaf, alternating activations the way a deep MLP's
// per-layer nonlinearity would, so Adaptive's cost-class ranking has
// both cheap and expensive ops to choose between.
func buildChain(backend tensor.Backend, depth, width int) (leaf, root *graph.Node) {
	values := make([]float32, width)
	for i := range values {
		values[i] = 0.01 * float32(i+1)
	}
	raw, err := tensor.NewRaw(tensor.Shape{width}, tensor.Float32, tensor.CPU)
	if err != nil {
		log.Fatalf("alloc leaf: %v", err)
	}
	copy(raw.AsFloat32(), values)
	leaf = graph.NewLeaf(raw, true)

	cur := leaf
	for i := 0; i < depth; i++ {
		if i%2 == 0 {
			cur = graph.Apply(backend, graph.OpExp, []*graph.Node{cur}, nil)
		} else {
			cur = graph.Apply(backend, graph.OpReLU, []*graph.Node{cur}, nil)
		}
	}
	return leaf, cur
}

func gradNorm(n *graph.Node) float64 {
	if n.Grad == nil || n.Grad.Empty() {
		return 0
	}
	var sum float64
	for _, v := range n.Grad.AsFloat32() {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

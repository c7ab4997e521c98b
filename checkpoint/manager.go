package checkpoint

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/tensorforge/checkpoint/internal/graph"
	"github.com/tensorforge/checkpoint/internal/tensor"
)

// PolicyKind names a placement strategy for Manager.Config.
type PolicyKind string

// Placement strategies a Manager can run.
const (
	// PolicyManual disables AnalyzeAndMark; the caller marks nodes one
	// at a time via Manager.Checkpoint.
	PolicyManual   PolicyKind = "manual"
	PolicyUniform  PolicyKind = "uniform"
	PolicyAdaptive PolicyKind = "adaptive"
	PolicyBudget   PolicyKind = "budget"
)

// RNGState captures and restores the random state a stochastic op
// (OpDropout) consumed during forward. Config.SaveRNG controls whether
// Manager captures this at all. Recomputation does not use it: any
// stochastic op on a deletion candidate's replay path fails
// recomputation with ErrStochasticOpOnDeletedPath, whether or not
// SaveRNG is set.
type RNGState interface {
	Capture() []byte
	Restore([]byte)
}

// Config configures a Manager. The zero value selects PolicyManual
// with no recompute-depth guard and no verbose logging, which is
// valid on its own.
type Config struct {
	// Policy selects which placement strategy AnalyzeAndMark runs.
	Policy PolicyKind
	// Interval is PolicyUniform's checkpoint spacing. Required, and
	// must be positive, when Policy == PolicyUniform.
	Interval int
	// BudgetBytes is PolicyBudget's ceiling on the non-checkpoint
	// footprint between consecutive checkpoints (see BudgetPolicy).
	// Required, and must be positive, when Policy == PolicyBudget.
	BudgetBytes uint64
	// MaxRecomputeDepth bounds how many ancestor edges from the target
	// a deleted node may lie before Recompute fails with
	// ErrRecomputeDepthExceeded. Zero means unbounded, which is the
	// default: an unenforced guard is harmless until a caller opts in
	// by setting it.
	MaxRecomputeDepth int
	// SaveRNG makes AnalyzeAndMark capture the RNGState installed via
	// SetRNGState, for RestoreRNG to restore later. It does not make
	// stochastic ops recomputable: Recompute refuses them either way.
	SaveRNG bool
	// Verbose emits one diagnostic log line per mark, delete, and
	// recompute event to Logger (or stderr, if Logger is nil).
	Verbose bool
	// Logger receives verbose diagnostics when Verbose is true.
	// Defaults to a stderr logger if nil.
	Logger *log.Logger
}

func (c Config) buildPolicy() (Policy, error) {
	switch c.Policy {
	case PolicyManual, "":
		return nil, nil
	case PolicyUniform:
		return NewUniformPolicy(c.Interval)
	case PolicyAdaptive:
		return NewAdaptivePolicy(), nil
	case PolicyBudget:
		return NewBudgetPolicy(c.BudgetBytes)
	default:
		return nil, fmt.Errorf("%w: unknown policy %q", ErrConfigInvalid, c.Policy)
	}
}

// Stats reports a Manager's cumulative counters: how many nodes its
// placement policy has marked, how many it has deleted and how many
// bytes that freed, and how many times recomputation actually ran.
type Stats struct {
	// RunID identifies the most recent AnalyzeAndMark call.
	RunID string
	// MarkedCount is the number of nodes marked IsCheckpoint across
	// all AnalyzeAndMark/Checkpoint calls so far.
	MarkedCount int
	// DeletedCount is the number of nodes whose value DeleteUnmarked
	// has released so far.
	DeletedCount int
	// BytesFreed is the total footprint DeleteUnmarked has released
	// so far.
	BytesFreed uint64
	// RecomputeCount is the number of nodes EnsureLive/EnsureInputsLive
	// found deleted and recomputed (as opposed to finding the value
	// already live); each recomputed input of an EnsureInputsLive call
	// counts once.
	RecomputeCount int
}

// Manager orchestrates a full checkpointing pass over a forward
// graph: placement (C3) via AnalyzeAndMark, deletion (C4) via
// DeleteUnmarked, and the backward-pass facade hooks (C6) that
// recompute deleted values on demand (C5).
type Manager struct {
	backend tensor.Backend
	policy  Policy // nil under PolicyManual
	cfg     Config
	logger  *log.Logger

	rng      RNGState
	rngState []byte

	stats Stats
}

// NewManager validates cfg, constructs its Policy, and returns a
// ready-to-use Manager bound to backend.
func NewManager(backend tensor.Backend, cfg Config) (*Manager, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend must not be nil", ErrConfigInvalid)
	}
	policy, err := cfg.buildPolicy()
	if err != nil {
		return nil, err
	}

	logger := log.New(io.Discard, "", 0)
	if cfg.Verbose {
		logger = cfg.Logger
		if logger == nil {
			logger = log.New(os.Stderr, "checkpoint: ", log.LstdFlags)
		}
	}

	return &Manager{backend: backend, policy: policy, cfg: cfg, logger: logger}, nil
}

// SetRNGState installs the RNGState Manager captures from when
// SaveRNG is enabled. Without a state installed, SaveRNG has no
// effect.
func (m *Manager) SetRNGState(rng RNGState) {
	m.rng = rng
}

// AnalyzeAndMark dispatches to the configured placement policy over
// root's topological order, returning the number of nodes marked
// IsCheckpoint by this call. Under PolicyManual this is a no-op that
// returns 0: the caller marks nodes individually via Checkpoint.
func (m *Manager) AnalyzeAndMark(root *graph.Node) int {
	m.stats.RunID = uuid.New().String()

	if m.policy == nil {
		m.logger.Printf("run=%s analyze_and_mark: manual policy, no-op", m.stats.RunID)
		return 0
	}

	order := graph.TopologicalOrder(root)
	alreadyMarked := 0
	for _, n := range order {
		if n.IsCheckpoint {
			alreadyMarked++
		}
	}
	Mark(order, m.policy)

	if m.cfg.SaveRNG && m.rng != nil {
		m.rngState = m.rng.Capture()
	}

	marked := -alreadyMarked
	for _, n := range order {
		if n.IsCheckpoint {
			marked++
		}
	}
	m.stats.MarkedCount += marked
	m.logger.Printf("run=%s analyze_and_mark: marked %d of %d nodes", m.stats.RunID, marked, len(order))
	return marked
}

// DeleteUnmarked releases the value of every node reachable from root
// that AnalyzeAndMark (or manual Checkpoint calls) did not mark,
// updating Stats, and returns the number of bytes freed.
func (m *Manager) DeleteUnmarked(root *graph.Node) uint64 {
	order := graph.TopologicalOrder(root)
	deleted, bytesFreed := DeleteUnmarked(order)

	m.stats.DeletedCount += deleted
	m.stats.BytesFreed += bytesFreed
	m.logger.Printf("run=%s delete_unmarked: freed %d nodes, %d bytes", m.stats.RunID, deleted, bytesFreed)
	return bytesFreed
}

// Stats returns the Manager's cumulative counters.
func (m *Manager) Stats() Stats {
	return m.stats
}

// Checkpoint marks n as a checkpoint and returns n, mirroring the
// checkpoint(value) -> value marker primitive: manual mode's way of
// pinning specific nodes without running a placement policy at all.
func (m *Manager) Checkpoint(n *graph.Node) *graph.Node {
	n.IsCheckpoint = true
	m.stats.MarkedCount++
	return n
}

// RestoreRNG restores the RNG state the most recent AnalyzeAndMark
// captured, if SaveRNG is enabled and an RNGState has been installed
// via SetRNGState. Callers recomputing a stochastic node's replay
// path should call this first so the replayed op draws the same
// sequence it drew originally.
func (m *Manager) RestoreRNG() {
	if m.cfg.SaveRNG && m.rng != nil && m.rngState != nil {
		m.rng.Restore(m.rngState)
	}
}

// EnsureLive recomputes n's value if deleted, honoring the Manager's
// configured MaxRecomputeDepth and counting the call in Stats if a
// recomputation actually ran.
func (m *Manager) EnsureLive(n *graph.Node) error {
	needed := n.ValueDeleted
	if err := EnsureLive(m.backend, n, m.cfg.MaxRecomputeDepth); err != nil {
		return err
	}
	if needed {
		m.stats.RecomputeCount++
		m.logger.Printf("run=%s ensure_live: recomputed %q", m.stats.RunID, n.Name)
	}
	return nil
}

// EnsureInputsLive recomputes each of n's inputs' values if deleted,
// honoring the Manager's configured MaxRecomputeDepth and counting
// each actual recomputation in Stats.
func (m *Manager) EnsureInputsLive(n *graph.Node) error {
	for _, in := range n.Inputs {
		if err := m.EnsureLive(in); err != nil {
			return err
		}
	}
	return nil
}

// ZeroGrad zero-fills n's gradient and every RequiresGrad ancestor's
// gradient.
func (m *Manager) ZeroGrad(n *graph.Node) {
	ZeroGrad(n)
}

// Backend returns the tensor.Backend the Manager was constructed with.
func (m *Manager) Backend() tensor.Backend {
	return m.backend
}

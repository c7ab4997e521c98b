package checkpoint

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the checkpoint core.
var (
	// ErrNoCheckpointReachable means the recomputation engine's anchor
	// search walked every ancestor of a deleted node without finding
	// one whose value is still live (a checkpoint, a leaf, or a node
	// that was never deleted).
	ErrNoCheckpointReachable = errors.New("checkpoint: no live ancestor reachable for recomputation")

	// ErrStochasticOpOnDeletedPath means the replay path from the
	// nearest live ancestor to the requested node passes through a
	// stochastic op (e.g. dropout). Recomputation never replays such
	// an op, since it could not reproduce the original forward value.
	ErrStochasticOpOnDeletedPath = errors.New("checkpoint: replay path crosses a stochastic op with no captured RNG state")

	// ErrConfigInvalid means a Config or Policy failed validation.
	ErrConfigInvalid = errors.New("checkpoint: invalid configuration")

	// ErrRecomputeDepthExceeded means a replay path was longer than
	// Config.MaxRecomputeDepth.
	ErrRecomputeDepthExceeded = errors.New("checkpoint: recompute depth exceeds configured maximum")
)

// RecomputeError reports a failure encountered while replaying the
// forward path to rematerialize a deleted node's value. It wraps
// ErrUnsupportedOpDuringRecompute-class failures with the node and op
// involved, since a bare sentinel doesn't say which node in a large
// graph failed.
type RecomputeError struct {
	// Node is a diagnostic label for the node recomputation failed at;
	// empty if the node was unnamed.
	Node string
	// Op is the operation that could not be replayed.
	Op string
	// Reason is the underlying failure.
	Reason error
}

// Error implements the error interface.
func (e *RecomputeError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("checkpoint: recompute failed at node %q (op %s): %v", e.Node, e.Op, e.Reason)
	}
	return fmt.Sprintf("checkpoint: recompute failed at op %s: %v", e.Op, e.Reason)
}

// Unwrap exposes Reason to errors.Is/errors.As.
func (e *RecomputeError) Unwrap() error {
	return e.Reason
}

// ErrUnsupportedOpDuringRecompute means the replay path required
// re-running an op the dispatch table has no forward kernel for.
var ErrUnsupportedOpDuringRecompute = errors.New("checkpoint: op has no forward kernel registered for recomputation")

// ErrShapeMismatch means a recomputed value's shape does not match the
// node's CachedShape recorded before deletion, which would indicate
// either a bug in the replay path or a backend that behaves
// non-deterministically across runs.
var ErrShapeMismatch = errors.New("checkpoint: recomputed value shape does not match cached shape")

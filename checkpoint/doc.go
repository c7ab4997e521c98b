// Package checkpoint implements activation (gradient) checkpointing
// over a retained computation graph: selectively deleting the
// materialized values of interior nodes after the forward pass, and
// recomputing them on demand during backward.
//
// The core passes are:
//
//   - Footprint (footprint.go) and the cost oracle (oracle.go) estimate
//     how much memory a node's value occupies and how expensive it is
//     to recompute.
//   - Placement (placement.go) selects which nodes to keep resident as
//     checkpoints, via a Policy: UniformPolicy, AdaptivePolicy, or
//     BudgetPolicy.
//   - Deletion (deletion.go) releases every interior node's value the
//     placement pass didn't select.
//   - Recomputation (recompute.go) rematerializes a deleted node's
//     value by walking back to the nearest live ancestors and
//     replaying forward evaluation.
//   - The facade (facade.go) exposes EnsureLive/EnsureInputsLive/
//     ZeroGrad, the hooks a backward pass calls around each node.
//
// Manager (manager.go) ties these together into AnalyzeAndMark,
// DeleteUnmarked, and the backward-pass hooks, tracking cumulative
// Stats across all three, and is the entry point most callers use
// directly.
package checkpoint

// Package tree implements the decision layer of the event-sourced tree.
//
// Engine exposes AddNode and MoveNode. Each command computes a consistency
// boundary (a StreamQuery over the log), validates its invariants against
// the events inside that boundary, and appends a single event conditioned on
// nothing new having appeared inside the boundary since.
//
// There are no locks across processes. Two commands whose boundaries
// overlap race at the log, which commits at most one of them; the loser
// gets ErrConflict and may recompute and resubmit. Engine never retries on
// its own.
//
// AddNode reasons over raw events: it reads every NodeAdded event for the
// node or its parent. MoveNode reasons over the materialized hierarchy,
// because it must walk ancestor chains: its boundary is every event tagged
// with any id on the old or new ancestor chain.
//
// Error kinds:
//   - *ConstraintError: the command is invalid for the observed state.
//     Not retryable.
//   - ErrConflict: the append condition failed. Retryable.
//   - anything else: log infrastructure failure, propagated.
package tree

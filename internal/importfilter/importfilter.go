// Package importfilter implements the Sync Import Filter: the keep/discard
// test that protects a client's latest full-state import (SYNC_IMPORT /
// BACKUP_IMPORT / REPAIR) from being undone by pre-import history still
// circulating among peers.
package importfilter

import (
	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
)

// Keep reports whether incoming should survive filtering against
// fullState, the client's latest full-state op on record. fullState may be
// nil, meaning the client has no full-state op on record.
//
// incoming is kept iff at least one of four tests holds:
//  1. there is no local full-state op;
//  2. incoming.Id sorts lexicographically after fullState.Id (authored
//     later);
//  3. incoming and fullState share a ClientId and incoming's counter for
//     that client strictly exceeds fullState's (definitive even under
//     asymmetric pruning);
//  4. incoming.VectorClock strictly dominates fullState.VectorClock.
//
// Both clocks passed in must be the full, unpruned clocks; see the
// compare-before-prune rule in package vclock.
func Keep(incoming op.Operation, fullState *op.Operation) bool {
	if fullState == nil {
		return true
	}
	if string(incoming.Id) > string(fullState.Id) {
		return true
	}
	if incoming.ClientId == fullState.ClientId &&
		incoming.VectorClock.Get(fullState.ClientId) > fullState.VectorClock.Get(fullState.ClientId) {
		return true
	}
	return vclock.Compare(incoming.VectorClock, fullState.VectorClock) == vclock.Greater
}

// Relation reports how incoming's vector clock compares to fullState's,
// for conflict classification rather than the keep/discard decision itself.
// A Concurrent relation among a batch's discarded ops is a local data
// conflict: genuinely divergent history, not just pre-import staleness
// (which relates as Less or Equal). fullState == nil has no basis for
// conflict and reports Equal.
func Relation(incoming op.Operation, fullState *op.Operation) vclock.Ordering {
	if fullState == nil {
		return vclock.Equal
	}
	return vclock.Compare(incoming.VectorClock, fullState.VectorClock)
}

// FilterResult partitions a downloaded batch.
type FilterResult struct {
	Kept      []op.Operation
	Discarded []op.Operation
}

// Filter applies Keep to every op in batch against the same fullState
// snapshot, which the caller must fetch once per batch, not once per op,
// so that a concurrent local import mid-batch can't produce a
// partially-inconsistent filtering decision.
func Filter(batch []op.Operation, fullState *op.Operation) FilterResult {
	var res FilterResult
	for _, o := range batch {
		if Keep(o, fullState) {
			res.Kept = append(res.Kept, o)
		} else {
			res.Discarded = append(res.Discarded, o)
		}
	}
	return res
}

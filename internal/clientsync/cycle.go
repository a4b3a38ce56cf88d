package clientsync

import (
	"context"
	"time"

	"github.com/yzkee/super-productivity-sub001/internal/ident"
	"github.com/yzkee/super-productivity-sub001/internal/importfilter"
	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
)

// ErrConflictAwaitingUpload is returned when a LocalDataConflict resolved to
// USE_LOCAL: the cycle has stopped and the caller must call
// ForceUploadLocalState with the current domain state snapshot, which only
// the caller's reducer layer can produce.
var ErrConflictAwaitingUpload = syncerr.ClientSync.New("local data conflict resolved to use-local; call ForceUploadLocalState")

// runDownload fetches new ops since the last known server sequence, filters
// them through the import rule, and applies what survives.
func (e *Engine) runDownload(ctx context.Context, result *CycleResult) error {
	dres, err := e.transport.GetOpsSince(ctx, e.userId, e.lastKnownServerSeq, downloadBatchCap)
	if err != nil {
		return err
	}
	result.Downloaded += len(dres.Ops)

	fullState, hasFullState, err := e.store.GetLatestFullStateOp()
	if err != nil {
		return err
	}
	var fs *op.Operation
	if hasFullState {
		fs = fullState
	}

	var toApply []op.Operation
	var concurrentDiscards []op.Operation
	for _, o := range dres.Ops {
		if e.store.HasOpId(o.Id) {
			continue // already applied; dedupe against the applied-op-id cache
		}
		if importfilter.Keep(o, fs) {
			toApply = append(toApply, o)
			continue
		}
		result.Discarded++
		if importfilter.Relation(o, fs) == vclock.Concurrent {
			concurrentDiscards = append(concurrentDiscards, o)
		}
	}

	if len(concurrentDiscards) > 0 {
		return e.resolveLocalDataConflict(ctx, *fs, concurrentDiscards, result)
	}

	if len(toApply) > 0 {
		entries, err := e.store.AppendBatch(toApply, op.SourceRemote)
		if err != nil {
			// Duplicate-id constraint violation: fail this batch, retry next cycle.
			return err
		}
		var appliedSeqs []uint64
		for i, entry := range entries {
			if e.reducer != nil {
				if err := e.reducer.Apply(toApply[i]); err != nil {
					e.log.Error().Err(err).Str("opId", string(entry.Id)).Msg("clientsync: reducer rejected remote op")
					continue
				}
			}
			appliedSeqs = append(appliedSeqs, entry.Seq)
		}
		if len(appliedSeqs) > 0 {
			if err := e.store.MarkApplied(appliedSeqs); err != nil {
				return err
			}
		}
		if err := e.store.MergeRemoteOpClocks(toApply); err != nil {
			return err
		}
	}

	if dres.MaxServerSeq > e.lastKnownServerSeq {
		e.lastKnownServerSeq = dres.MaxServerSeq
	}
	return nil
}

func (e *Engine) resolveLocalDataConflict(ctx context.Context, fullState op.Operation, concurrent []op.Operation, result *CycleResult) error {
	if e.resolve == nil {
		return syncerr.ErrLocalDataConflict
	}
	choice := e.resolve(ctx, fullState, concurrent)
	result.ConflictChoice = &choice

	switch choice {
	case ConflictUseRemote:
		if err := e.store.ClearFullStateOps(); err != nil {
			return err
		}
		if err := e.store.DiscardUnsynced(); err != nil {
			return err
		}
		// The local full-state constraint is gone; re-run download so the
		// previously-concurrent ops now pass the filter unconditionally.
		return e.runDownload(ctx, result)
	case ConflictUseLocal:
		return ErrConflictAwaitingUpload
	default:
		return syncerr.ErrCancelled
	}
}

// runUpload uploads the unsynced batch and applies the resulting verdicts.
// It returns whether another settle round is warranted: anything accepted,
// or any LWW recovery op enqueued.
func (e *Engine) runUpload(ctx context.Context, result *CycleResult) (bool, error) {
	unsynced, err := e.store.GetUnsynced()
	if err != nil {
		return false, err
	}
	if len(unsynced) == 0 {
		return false, nil
	}
	if len(unsynced) > uploadBatchCap {
		unsynced = unsynced[:uploadBatchCap]
	}

	batch := make([]op.Operation, len(unsynced))
	for i, entry := range unsynced {
		batch[i] = entry.Operation
	}

	verdicts, err := e.transport.UploadOps(ctx, e.userId, e.selfID, batch)
	if err != nil {
		return false, err
	}
	result.Uploaded += len(batch)

	localClock, err := e.store.GetVectorClock()
	if err != nil {
		return false, err
	}

	bySeq := make(map[string]uint64, len(unsynced))
	for _, entry := range unsynced {
		bySeq[string(entry.Id)] = entry.Seq
	}

	var syncedSeqs []uint64
	var rejectedIds []ident.OpId
	var recoveryOps []op.Operation
	settleNeeded := false

	for _, v := range verdicts {
		if v.Accepted {
			result.Accepted++
			settleNeeded = true
			if seq, ok := bySeq[v.OpId]; ok {
				syncedSeqs = append(syncedSeqs, seq)
			}
			continue
		}
		result.Rejected++
		if v.ExistingClock == nil {
			rejectedIds = append(rejectedIds, ident.OpId(v.OpId))
			continue
		}
		var original op.Operation
		for _, o := range batch {
			if string(o.Id) == v.OpId {
				original = o
				break
			}
		}
		recovery := synthesizeRecoveryOp(original, v.ExistingClock, localClock, e.selfID)
		recoveryOps = append(recoveryOps, recovery)
		rejectedIds = append(rejectedIds, ident.OpId(v.OpId))
	}

	if len(syncedSeqs) > 0 {
		if err := e.store.MarkSynced(syncedSeqs); err != nil {
			return false, err
		}
	}
	if len(rejectedIds) > 0 {
		if err := e.store.MarkRejected(rejectedIds); err != nil {
			return false, err
		}
	}
	if len(recoveryOps) > 0 {
		if _, err := e.store.AppendBatch(recoveryOps, op.SourceLocal); err != nil {
			return false, err
		}
		result.RecoveryOps += len(recoveryOps)
		settleNeeded = true
	}

	return settleNeeded, nil
}

// synthesizeRecoveryOp builds an LWW recovery op: same entity identity and
// payload as the rejected op, a new id and timestamp, and a vector clock
// that strictly dominates the server's stored clock, the rejected op's
// clock and the device's local clock so it cannot itself be rejected as
// concurrent.
//
// A rejected moveToArchive op is re-emitted the same way as any other
// rejected op, carrying its original EntityId/Payload forward even if the
// reducer's live state no longer has that entity; re-application is the
// reducer's concern, not this engine's.
func synthesizeRecoveryOp(rejected op.Operation, existingClock, localClock vclock.VectorClock, selfID vclock.ClientId) op.Operation {
	merged := vclock.Merge(vclock.Merge(existingClock, rejected.VectorClock), localClock)
	merged = vclock.Increment(merged, selfID)
	return op.Operation{
		Id:            ident.NewOpId(time.Now()),
		ClientId:      selfID,
		OpType:        op.TypeLWW,
		EntityType:    rejected.EntityType,
		EntityId:      rejected.EntityId,
		Payload:       rejected.Payload,
		VectorClock:   merged,
		TimestampMs:   time.Now().UnixMilli(),
		SchemaVersion: rejected.SchemaVersion,
		Encrypted:     rejected.Encrypted,
	}
}

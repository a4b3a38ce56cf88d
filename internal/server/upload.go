package server

import (
	"time"

	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/store"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
)

// UploadOps runs per-op conflict detection and acceptance, all within one
// per-user transaction. Partial success is allowed across ops: one
// rejected op does not roll back another op's acceptance, but a
// storage-level error aborts the whole batch, since nothing in it has
// durably committed yet.
func (s *Service) UploadOps(userId string, clientId vclock.ClientId, ops []op.Operation) ([]UploadResult, error) {
	tx := s.kv.NewTransaction()

	maxSeq, err := readMaxSeqLocked(tx, userId)
	if err != nil {
		tx.Abort()
		return nil, err
	}

	results := make([]UploadResult, len(ops))
	dirty := false

	for i, o := range ops {
		res, accepted, err := s.evaluateOne(tx, userId, o)
		if err != nil {
			tx.Abort()
			return nil, err
		}
		if accepted {
			maxSeq++
			res.ServerSeq = maxSeq
			if err := s.persistAccepted(tx, userId, o, maxSeq); err != nil {
				tx.Abort()
				return nil, err
			}
			dirty = true
		}
		results[i] = res
	}

	if dirty {
		if err := tx.Put(maxSeqKey(userId), encodeSeq(maxSeq)); err != nil {
			tx.Abort()
			return nil, syncerr.Server.Wrap(err)
		}
		if err := tx.Commit(); err != nil {
			return nil, syncerr.Server.Wrap(err)
		}
	} else {
		tx.Abort()
	}

	return results, nil
}

// evaluateOne runs the conflict-detection algorithm for a single op and
// reports whether it should be accepted. It does not write anything;
// persistAccepted does that once the caller has decided.
func (s *Service) evaluateOne(tx store.Transaction, userId string, o op.Operation) (UploadResult, bool, error) {
	res := UploadResult{OpId: string(o.Id)}

	// Idempotent retry of an already-accepted op: a uniqueness violation on
	// op id is idempotent, returning the prior verdict.
	if seq, ok, err := lookupOpIDSeq(tx, userId, string(o.Id)); err != nil {
		return res, false, err
	} else if ok {
		res.Accepted = true
		res.ServerSeq = seq
		return res, false, nil // already persisted; nothing new to write
	}

	if o.OpType.IsFullState() {
		if o.OpType == op.TypeSyncImport && o.Reason == op.ReasonInitial {
			has, err := hasInitialImport(tx, userId)
			if err != nil {
				return res, false, err
			}
			if has {
				res.Accepted = false
				res.ErrorCode = syncerr.CodeSyncImportExists
				return res, false, nil
			}
		}
		res.Accepted = true
		return res, true, nil
	}

	if o.EntityType == op.EntityAll || o.EntityType == op.EntityRecovery {
		res.Accepted = true
		return res, true, nil
	}

	stored, ok, err := lookupEntity(tx, userId, string(o.EntityType), o.EntityId)
	if err != nil {
		return res, false, err
	}
	if !ok {
		res.Accepted = true
		return res, true, nil
	}

	switch vclock.Compare(o.VectorClock, stored.VectorClock) {
	case vclock.Greater:
		res.Accepted = true
		return res, true, nil
	case vclock.Equal:
		if o.ClientId == stored.ClientId {
			res.Accepted = true
			return res, true, nil
		}
		res.Accepted = false
		res.ErrorCode = syncerr.CodeEqualDifferentClient
		return res, false, nil
	case vclock.Less:
		res.Accepted = false
		res.ErrorCode = syncerr.CodeConflictSuperseded
		res.ExistingClock = stored.VectorClock
		return res, false, nil
	default: // Concurrent
		res.Accepted = false
		res.ErrorCode = syncerr.CodeConflictConcurrent
		res.ExistingClock = stored.VectorClock
		return res, false, nil
	}
}

// persistAccepted prunes the op's clock, assigns seq, and writes the op
// record, the opId index, the entity index (unless bulk), and the
// initial-import marker. Pruning happens strictly after the comparison in
// evaluateOne, never before.
func (s *Service) persistAccepted(tx store.Transaction, userId string, o op.Operation, seq uint64) error {
	pruned := o.Clone()
	pruned.VectorClock = vclock.Prune(o.VectorClock, MaxVCSize, o.ClientId)

	rec := op.StoredOperation{
		Operation:    pruned,
		ServerSeq:    seq,
		ReceivedAtMs: time.Now().UnixMilli(),
		UserId:       userId,
	}
	b, err := encodeStored(rec)
	if err != nil {
		return err
	}
	if err := tx.Put(opKey(userId, seq), b); err != nil {
		return syncerr.Server.Wrap(err)
	}
	if err := tx.Put(opIDKey(userId, string(o.Id)), encodeSeq(seq)); err != nil {
		return syncerr.Server.Wrap(err)
	}
	if o.EntityType != op.EntityAll && o.EntityType != op.EntityRecovery {
		if err := tx.Put(entityKey(userId, string(o.EntityType), o.EntityId), encodeSeq(seq)); err != nil {
			return syncerr.Server.Wrap(err)
		}
	}
	if o.OpType == op.TypeSyncImport && o.Reason == op.ReasonInitial {
		if err := tx.Put(initialImportKey(userId), []byte{1}); err != nil {
			return syncerr.Server.Wrap(err)
		}
	}
	return nil
}

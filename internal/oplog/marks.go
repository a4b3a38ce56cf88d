package oplog

import (
	"strconv"
	"time"

	"github.com/yzkee/super-productivity-sub001/internal/ident"
	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/store"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
)

func (s *Store) getEntryBySeq(r store.StoreReader, seq uint64) (*op.LogEntry, error) {
	b, err := r.Get(seqKey(seq))
	if err != nil {
		if err == store.ErrUnknownKey {
			return nil, syncerr.Store.New("no log entry with seq %d", seq)
		}
		return nil, syncerr.Store.Wrap(err)
	}
	return decodeEntry(b)
}

func (s *Store) seqForOpID(r store.StoreReader, id ident.OpId) (uint64, bool, error) {
	b, err := r.Get(opIDKey(string(id)))
	if err != nil {
		if err == store.ErrUnknownKey {
			return 0, false, nil
		}
		return 0, false, syncerr.Store.Wrap(err)
	}
	seq, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0, false, syncerr.Store.Wrap(err)
	}
	return seq, true, nil
}

// HasOpId reports whether id is already present in the log, local or
// remote, via the in-memory applied-op-id cache. Used by the client sync
// engine's download phase to deduplicate before running the import filter.
func (s *Store) HasOpId(id ident.OpId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.appliedIDs[id]
	return ok
}

func (s *Store) putEntry(w store.StoreWriter, e *op.LogEntry) error {
	b, err := encodeEntry(e)
	if err != nil {
		return err
	}
	if err := w.Put(seqKey(e.Seq), b); err != nil {
		return syncerr.Store.Wrap(err)
	}
	return nil
}

// MarkSynced marks the given seqs as successfully uploaded and accepted.
func (s *Store) MarkSynced(seqs []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UnixMilli()
	tx := s.kv.NewTransaction()
	for _, seq := range seqs {
		e, err := s.getEntryBySeq(tx, seq)
		if err != nil {
			tx.Abort()
			return err
		}
		t := now
		e.SyncedAtMs = &t
		if err := s.putEntry(tx, e); err != nil {
			tx.Abort()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return syncerr.Store.Wrap(err)
	}
	for _, seq := range seqs {
		delete(s.unsyncedCache, seq)
	}
	return nil
}

// MarkRejected tombstones the given op ids as rejected, not deleted, so
// they remain visible for diagnostics but are excluded from getUnsynced()
// going forward.
func (s *Store) MarkRejected(opIDs []ident.OpId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UnixMilli()
	tx := s.kv.NewTransaction()
	var seqs []uint64
	for _, id := range opIDs {
		seq, ok, err := s.seqForOpID(tx, id)
		if err != nil {
			tx.Abort()
			return err
		}
		if !ok {
			continue
		}
		e, err := s.getEntryBySeq(tx, seq)
		if err != nil {
			tx.Abort()
			return err
		}
		t := now
		e.RejectedAtMs = &t
		if err := s.putEntry(tx, e); err != nil {
			tx.Abort()
			return err
		}
		seqs = append(seqs, seq)
	}
	if err := tx.Commit(); err != nil {
		return syncerr.Store.Wrap(err)
	}
	for _, seq := range seqs {
		delete(s.unsyncedCache, seq)
	}
	return nil
}

// DiscardUnsynced tombstones every currently-unsynced entry as rejected,
// without ever uploading it. Used by forceDownloadRemoteState and the
// USE_REMOTE branch of a LocalDataConflict resolution to throw away
// local-only history in favor of the server's view.
func (s *Store) DiscardUnsynced() error {
	unsynced, err := s.GetUnsynced()
	if err != nil {
		return err
	}
	if len(unsynced) == 0 {
		return nil
	}
	ids := make([]ident.OpId, len(unsynced))
	for i, e := range unsynced {
		ids[i] = e.Id
	}
	return s.MarkRejected(ids)
}

// MarkApplied marks the given seqs as applied to the reducer. A client's
// MarkApplied call must never precede the successful reducer dispatch of
// the op; enforcing that ordering is the caller's responsibility
// (clientsync), not this store's.
func (s *Store) MarkApplied(seqs []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := s.kv.NewTransaction()
	for _, seq := range seqs {
		e, err := s.getEntryBySeq(tx, seq)
		if err != nil {
			tx.Abort()
			return err
		}
		e.ApplicationStatus = op.StatusApplied
		if err := s.putEntry(tx, e); err != nil {
			tx.Abort()
			return err
		}
	}
	return syncerr.Store.Wrap(tx.Commit())
}

// MarkFailed marks the given op ids as failed, bumping RetryCount. Once
// RetryCount exceeds maxRetries, the op is tombstoned as rejected and
// reported instead.
func (s *Store) MarkFailed(opIDs []ident.OpId, maxRetries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UnixMilli()
	tx := s.kv.NewTransaction()
	var invalidatedSeqs []uint64
	for _, id := range opIDs {
		seq, ok, err := s.seqForOpID(tx, id)
		if err != nil {
			tx.Abort()
			return err
		}
		if !ok {
			continue
		}
		e, err := s.getEntryBySeq(tx, seq)
		if err != nil {
			tx.Abort()
			return err
		}
		e.RetryCount++
		if e.RetryCount > maxRetries {
			e.ApplicationStatus = op.StatusFailed
			t := now
			e.RejectedAtMs = &t
			invalidatedSeqs = append(invalidatedSeqs, seq)
		} else {
			e.ApplicationStatus = op.StatusFailed
		}
		if err := s.putEntry(tx, e); err != nil {
			tx.Abort()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return syncerr.Store.Wrap(err)
	}
	for _, seq := range invalidatedSeqs {
		delete(s.unsyncedCache, seq)
	}
	return nil
}

package oplog

import (
	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/store"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
)

// GetUnsynced returns all entries with neither SyncedAtMs nor RejectedAtMs
// set. Incremental: the store caches the highest seq it has already
// scanned and only scans the tail on subsequent calls.
func (s *Store) GetUnsynced() ([]*op.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsyncedCache == nil {
		s.unsyncedCache = make(map[uint64]*op.LogEntry)
		s.unsyncedScannedThrough = 0
	}

	start := seqKey(s.unsyncedScannedThrough + 1)
	_, limit := store.PrefixRange([]byte(prefixOp))
	strm := s.kv.Scan(start, limit)
	defer strm.Cancel()

	var maxSeen uint64
	for strm.Advance() {
		e, err := decodeEntry(strm.Value())
		if err != nil {
			return nil, err
		}
		if e.Seq > maxSeen {
			maxSeen = e.Seq
		}
		if e.IsUnsynced() {
			s.unsyncedCache[e.Seq] = e
		}
	}
	if err := strm.Err(); err != nil {
		return nil, syncerr.Store.Wrap(err)
	}
	if maxSeen > s.unsyncedScannedThrough {
		s.unsyncedScannedThrough = maxSeen
	}

	out := make([]*op.LogEntry, 0, len(s.unsyncedCache))
	for _, e := range s.unsyncedCache {
		if e.IsUnsynced() {
			out = append(out, e)
		}
	}
	sortBySeq(out)
	return out, nil
}

// GetLatestFullStateOp scans the whole log in ascending seq order for the
// op of type SYNC_IMPORT|BACKUP_IMPORT|REPAIR with the lexicographically
// greatest id, used by the import filter. The result is decided by id
// alone, not by the order in which entries are seen.
func (s *Store) GetLatestFullStateOp() (*op.Operation, bool, error) {
	_, limit := store.PrefixRange([]byte(prefixOp))
	strm := s.kv.Scan([]byte(prefixOp), limit)
	defer strm.Cancel()

	var best *op.Operation
	for strm.Advance() {
		e, err := decodeEntry(strm.Value())
		if err != nil {
			return nil, false, err
		}
		if !e.OpType.IsFullState() {
			continue
		}
		if best == nil || string(e.Id) > string(best.Id) {
			o := e.Operation
			best = &o
		}
	}
	if err := strm.Err(); err != nil {
		return nil, false, syncerr.Store.Wrap(err)
	}
	return best, best != nil, nil
}

// ClearFullStateOps removes every full-state op from the log, used when the
// user chooses "use remote" during an import conflict.
func (s *Store) ClearFullStateOps() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, limit := store.PrefixRange([]byte(prefixOp))
	strm := s.kv.Scan([]byte(prefixOp), limit)
	var toDelete [][]byte
	for strm.Advance() {
		e, err := decodeEntry(strm.Value())
		if err != nil {
			strm.Cancel()
			return err
		}
		if e.OpType.IsFullState() {
			toDelete = append(toDelete, append([]byte(nil), strm.Key()...))
		}
	}
	if err := strm.Err(); err != nil {
		strm.Cancel()
		return syncerr.Store.Wrap(err)
	}
	strm.Cancel()

	if len(toDelete) == 0 {
		return nil
	}
	tx := s.kv.NewTransaction()
	for _, k := range toDelete {
		if err := tx.Delete(k); err != nil {
			tx.Abort()
			return syncerr.Store.Wrap(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return syncerr.Store.Wrap(err)
	}
	s.invalidateCachesLocked()
	return nil
}

// HasSyncedOps reports whether any op with SyncedAtMs set exists, excluding
// MIGRATION/RECOVERY entity types, used to distinguish fresh clients from
// server-migration scenarios.
func (s *Store) HasSyncedOps() (bool, error) {
	_, limit := store.PrefixRange([]byte(prefixOp))
	strm := s.kv.Scan([]byte(prefixOp), limit)
	defer strm.Cancel()
	for strm.Advance() {
		e, err := decodeEntry(strm.Value())
		if err != nil {
			return false, err
		}
		if e.SyncedAtMs == nil {
			continue
		}
		if e.EntityType == "MIGRATION" || e.EntityType == "RECOVERY" {
			continue
		}
		return true, nil
	}
	return false, strm.Err()
}

// GetPendingRemoteOps returns remote-sourced entries still StatusPending,
// surfaced at startup for crash recovery.
func (s *Store) GetPendingRemoteOps() ([]*op.LogEntry, error) {
	return s.scanRemoteByStatus(op.StatusPending)
}

// GetFailedRemoteOps returns remote-sourced, non-rejected entries
// StatusFailed, surfaced at startup for retry.
func (s *Store) GetFailedRemoteOps() ([]*op.LogEntry, error) {
	return s.scanRemoteByStatus(op.StatusFailed)
}

func (s *Store) scanRemoteByStatus(status op.ApplicationStatus) ([]*op.LogEntry, error) {
	_, limit := store.PrefixRange([]byte(prefixOp))
	strm := s.kv.Scan([]byte(prefixOp), limit)
	defer strm.Cancel()
	var out []*op.LogEntry
	for strm.Advance() {
		e, err := decodeEntry(strm.Value())
		if err != nil {
			return nil, err
		}
		if e.Source != op.SourceRemote {
			continue
		}
		if e.ApplicationStatus != status {
			continue
		}
		if status == op.StatusFailed && e.RejectedAtMs != nil {
			continue
		}
		out = append(out, e)
	}
	if err := strm.Err(); err != nil {
		return nil, syncerr.Store.Wrap(err)
	}
	sortBySeq(out)
	return out, nil
}

func sortBySeq(entries []*op.LogEntry) {
	// Insertion sort: simpler than importing sort and allocation-free. It is
	// O(n^2) in the number of entries passed, which is every matching entry
	// in the log (the callers do not cap it).
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].Seq > entries[j].Seq; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

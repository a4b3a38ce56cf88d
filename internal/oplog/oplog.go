// Package oplog implements the client-side Operation Log Store: durable
// append-only storage of operation log entries, the VectorClock singleton,
// state snapshots, import backups, and archive snapshots, with two
// incrementally-maintained in-memory caches (applied op ids, unsynced ops).
package oplog

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yzkee/super-productivity-sub001/internal/ident"
	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/store"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
)

// MaxVCSize is the recommended bound on vector clock entries before pruning.
const MaxVCSize = 20

// ErrDuplicateOpID is returned by AppendBatch when a uniqueness violation
// occurs; the whole batch fails and the unsynced-op cache is dropped. The
// applied-op-id cache is not cleared.
var ErrDuplicateOpID = syncerr.Store.New("duplicate operation id in batch")

// Store is the durable Operation Log Store for one client device.
type Store struct {
	kv     store.Store
	log    zerolog.Logger
	selfID vclock.ClientId

	mu sync.Mutex

	// nextSeq is the next log seq to assign. Loaded at New() and bumped
	// under mu on every append.
	nextSeq uint64

	// appliedIDs caches every op id ever appended, for O(1) dedup of
	// already-applied remote ops during download.
	appliedIDs map[ident.OpId]struct{}

	// unsyncedCache + unsyncedScannedThrough implement the incremental
	// getUnsynced() contract: cache last-seen seq, and on next call only
	// scan the tail.
	unsyncedCache          map[uint64]*op.LogEntry
	unsyncedScannedThrough uint64

	// vcCache is the in-memory copy of the VectorClock singleton; nil means
	// not loaded, read through to storage next time. Cleared for multi-tab
	// safety.
	vcCache *vclock.VectorClock
}

// New opens an Operation Log Store backed by kv. selfID is this device's
// ClientId, used to tag Source=local appends.
func New(kv store.Store, selfID vclock.ClientId, log zerolog.Logger) (*Store, error) {
	s := &Store{
		kv:         kv,
		log:        log,
		selfID:     selfID,
		appliedIDs: make(map[ident.OpId]struct{}),
	}
	if err := s.loadAppliedIDsAndNextSeq(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadAppliedIDsAndNextSeq() error {
	start, limit := store.PrefixRange([]byte(prefixOp))
	strm := s.kv.Scan(start, limit)
	defer strm.Cancel()
	var maxSeq uint64
	for strm.Advance() {
		e, err := decodeEntry(strm.Value())
		if err != nil {
			return err
		}
		s.appliedIDs[e.Id] = struct{}{}
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
	}
	if err := strm.Err(); err != nil {
		return syncerr.Store.Wrap(err)
	}
	s.nextSeq = maxSeq + 1
	return nil
}

// Append appends op as a new log entry. If source is local, the
// VectorClock singleton is updated in the same transaction: one
// transaction per local op.
func (s *Store) Append(o op.Operation, source op.Source) (*op.LogEntry, error) {
	entries, err := s.AppendBatch([]op.Operation{o}, source)
	if err != nil {
		return nil, err
	}
	return entries[0], nil
}

// AppendBatch appends ops as a batch. On a uniqueness violation (an op id
// already present in the log) the entire batch fails, nothing is written,
// and the unsynced-op cache is dropped so the next GetUnsynced rescans the
// log; the applied-op-id cache is left as it is.
func (s *Store) AppendBatch(ops []op.Operation, source op.Source) ([]*op.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range ops {
		if _, ok := s.appliedIDs[o.Id]; ok {
			s.invalidateCachesLocked()
			return nil, ErrDuplicateOpID
		}
	}

	tx := s.kv.NewTransaction()
	now := time.Now().UnixMilli()
	entries := make([]*op.LogEntry, len(ops))
	seq := s.nextSeq

	var mergedLocalVC vclock.VectorClock
	if source == op.SourceLocal {
		vc, err := s.getVectorClockLocked(tx)
		if err != nil {
			tx.Abort()
			return nil, err
		}
		mergedLocalVC = vc
	}

	for i, o := range ops {
		entry := &op.LogEntry{
			Operation:         o,
			Seq:               seq,
			AppliedAtMs:       now,
			Source:            source,
			ApplicationStatus: op.StatusPending,
		}
		if source == op.SourceRemote {
			// Remote ops are durable immediately but need a reducer
			// dispatch before MarkApplied.
			entry.ApplicationStatus = op.StatusPending
		}
		b, err := encodeEntry(entry)
		if err != nil {
			tx.Abort()
			return nil, err
		}
		if err := tx.Put(seqKey(seq), b); err != nil {
			tx.Abort()
			return nil, syncerr.Store.Wrap(err)
		}
		if err := tx.Put(opIDKey(string(o.Id)), []byte(strconv.FormatUint(seq, 10))); err != nil {
			tx.Abort()
			return nil, syncerr.Store.Wrap(err)
		}
		if source == op.SourceLocal {
			mergedLocalVC = vclock.Merge(mergedLocalVC, o.VectorClock)
		}
		entries[i] = entry
		seq++
	}

	if source == op.SourceLocal {
		if err := s.putVectorClock(tx, mergedLocalVC); err != nil {
			tx.Abort()
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, syncerr.Store.Wrap(err)
	}

	s.nextSeq = seq
	for _, e := range entries {
		s.appliedIDs[e.Id] = struct{}{}
		if e.IsUnsynced() && s.unsyncedCache != nil {
			s.unsyncedCache[e.Seq] = e
		}
	}
	if source == op.SourceLocal {
		vc := mergedLocalVC
		s.vcCache = &vc
	}
	if len(entries) > 0 {
		s.unsyncedScannedThrough = entries[len(entries)-1].Seq
	}

	return entries, nil
}

func (s *Store) invalidateCachesLocked() {
	s.unsyncedCache = nil
	s.unsyncedScannedThrough = 0
}

// GetOpsAfterSeq returns all entries with Seq > seq, ordered ascending.
func (s *Store) GetOpsAfterSeq(seq uint64) ([]*op.LogEntry, error) {
	start := seqKey(seq + 1)
	_, limit := store.PrefixRange([]byte(prefixOp))
	strm := s.kv.Scan(start, limit)
	defer strm.Cancel()

	var out []*op.LogEntry
	for strm.Advance() {
		e, err := decodeEntry(strm.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := strm.Err(); err != nil {
		return nil, syncerr.Store.Wrap(err)
	}
	return out, nil
}

package oplog

import (
	"strconv"

	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/store"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
)

func marshalSnapshot(snap op.StateSnapshot) ([]byte, error) {
	b, err := json.Marshal(snap)
	if err != nil {
		return nil, syncerr.Store.Wrap(err)
	}
	return b, nil
}

func unmarshalSnapshot(b []byte) (op.StateSnapshot, error) {
	var snap op.StateSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return op.StateSnapshot{}, syncerr.Store.Wrap(err)
	}
	return snap, nil
}

// SaveStateCache atomically replaces the previous snapshot.
func (s *Store) SaveStateCache(snap op.StateSnapshot) error {
	b, err := marshalSnapshot(snap)
	if err != nil {
		return err
	}
	if err := s.kv.Put([]byte(keyStateCache), b); err != nil {
		return syncerr.Store.Wrap(err)
	}
	return nil
}

// LoadStateCache returns the current snapshot, or ok=false if none exists
// yet (a fresh client with no compaction history).
func (s *Store) LoadStateCache() (op.StateSnapshot, bool, error) {
	b, err := s.kv.Get([]byte(keyStateCache))
	if err != nil {
		if err == store.ErrUnknownKey {
			return op.StateSnapshot{}, false, nil
		}
		return op.StateSnapshot{}, false, syncerr.Store.Wrap(err)
	}
	snap, err := unmarshalSnapshot(b)
	if err != nil {
		return op.StateSnapshot{}, false, err
	}
	return snap, true, nil
}

// SaveStateCacheBackup persists a crash-safety copy of the snapshot around
// state-migration runs.
func (s *Store) SaveStateCacheBackup(snap op.StateSnapshot) error {
	b, err := marshalSnapshot(snap)
	if err != nil {
		return err
	}
	if err := s.kv.Put([]byte(keyStateBackup), b); err != nil {
		return syncerr.Store.Wrap(err)
	}
	return nil
}

// RestoreStateCacheFromBackup promotes the backup snapshot (if any) to be
// the live state cache, then clears the backup slot. Used at startup when
// an interrupted migration is detected.
func (s *Store) RestoreStateCacheFromBackup() (op.StateSnapshot, bool, error) {
	b, err := s.kv.Get([]byte(keyStateBackup))
	if err != nil {
		if err == store.ErrUnknownKey {
			return op.StateSnapshot{}, false, nil
		}
		return op.StateSnapshot{}, false, syncerr.Store.Wrap(err)
	}
	snap, err := unmarshalSnapshot(b)
	if err != nil {
		return op.StateSnapshot{}, false, err
	}
	if err := s.SaveStateCache(snap); err != nil {
		return op.StateSnapshot{}, false, err
	}
	if err := s.kv.Delete([]byte(keyStateBackup)); err != nil {
		return op.StateSnapshot{}, false, syncerr.Store.Wrap(err)
	}
	return snap, true, nil
}

// hasStateCacheBackup reports whether an interrupted migration left a
// backup behind, without promoting it.
func (s *Store) hasStateCacheBackup() (bool, error) {
	_, err := s.kv.Get([]byte(keyStateBackup))
	if err != nil {
		if err == store.ErrUnknownKey {
			return false, nil
		}
		return false, syncerr.Store.Wrap(err)
	}
	return true, nil
}

// SaveImportBackup saves the singleton ImportBackup, overwriting any prior
// one; only the most recent import's backup is kept.
func (s *Store) SaveImportBackup(b op.ImportBackup) error {
	buf, err := json.Marshal(b)
	if err != nil {
		return syncerr.Store.Wrap(err)
	}
	if err := s.kv.Put([]byte(keyImportBackup), buf); err != nil {
		return syncerr.Store.Wrap(err)
	}
	return nil
}

// LoadImportBackup returns the singleton ImportBackup, if any.
func (s *Store) LoadImportBackup() (op.ImportBackup, bool, error) {
	buf, err := s.kv.Get([]byte(keyImportBackup))
	if err != nil {
		if err == store.ErrUnknownKey {
			return op.ImportBackup{}, false, nil
		}
		return op.ImportBackup{}, false, syncerr.Store.Wrap(err)
	}
	var b op.ImportBackup
	if err := json.Unmarshal(buf, &b); err != nil {
		return op.ImportBackup{}, false, syncerr.Store.Wrap(err)
	}
	return b, true, nil
}

// IncrementCompactionCounter bumps the persistent compaction counter and
// returns its new value. The counter survives restarts and drives periodic
// compaction.
func (s *Store) IncrementCompactionCounter() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.readCompactionCounterLocked()
	if err != nil {
		return 0, err
	}
	cur++
	if err := s.writeCompactionCounterLocked(cur); err != nil {
		return 0, err
	}
	return cur, nil
}

// ResetCompactionCounter resets the counter to zero, typically called right
// after a compaction completes.
func (s *Store) ResetCompactionCounter() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeCompactionCounterLocked(0)
}

func (s *Store) readCompactionCounterLocked() (uint64, error) {
	b, err := s.kv.Get([]byte(keyCompactCounter))
	if err != nil {
		if err == store.ErrUnknownKey {
			return 0, nil
		}
		return 0, syncerr.Store.Wrap(err)
	}
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0, syncerr.Store.Wrap(err)
	}
	return v, nil
}

func (s *Store) writeCompactionCounterLocked(v uint64) error {
	if err := s.kv.Put([]byte(keyCompactCounter), []byte(strconv.FormatUint(v, 10))); err != nil {
		return syncerr.Store.Wrap(err)
	}
	return nil
}

// SaveArchiveSnapshot persists an archive snapshot under one of the two
// archive generations (archive_young / archive_old).
func (s *Store) SaveArchiveSnapshot(young bool, key string, snap op.StateSnapshot) error {
	b, err := marshalSnapshot(snap)
	if err != nil {
		return err
	}
	prefix := prefixArchiveOld
	if young {
		prefix = prefixArchiveYoung
	}
	if err := s.kv.Put(archiveKey(prefix, key), b); err != nil {
		return syncerr.Store.Wrap(err)
	}
	return nil
}

// LoadArchiveSnapshot loads a previously saved archive snapshot.
func (s *Store) LoadArchiveSnapshot(young bool, key string) (op.StateSnapshot, bool, error) {
	prefix := prefixArchiveOld
	if young {
		prefix = prefixArchiveYoung
	}
	b, err := s.kv.Get(archiveKey(prefix, key))
	if err != nil {
		if err == store.ErrUnknownKey {
			return op.StateSnapshot{}, false, nil
		}
		return op.StateSnapshot{}, false, syncerr.Store.Wrap(err)
	}
	snap, err := unmarshalSnapshot(b)
	if err != nil {
		return op.StateSnapshot{}, false, err
	}
	return snap, true, nil
}

package oplog

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/store"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
)

// getVectorClockLocked reads the VectorClock singleton through r (either
// the live kv or an in-flight transaction), bypassing the in-memory cache.
// Callers must hold s.mu.
func (s *Store) getVectorClockLocked(r store.StoreReader) (vclock.VectorClock, error) {
	b, err := r.Get([]byte(keyVectorClock))
	if err != nil {
		if err == store.ErrUnknownKey {
			return vclock.VectorClock{}, nil
		}
		return nil, syncerr.Store.Wrap(err)
	}
	var m map[string]uint64
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(b, &m); err != nil {
		return nil, syncerr.Store.Wrap(err)
	}
	out := make(vclock.VectorClock, len(m))
	for k, v := range m {
		out[vclock.ClientId(k)] = vclock.Counter(v)
	}
	return out, nil
}

func (s *Store) putVectorClock(w store.StoreWriter, vc vclock.VectorClock) error {
	m := make(map[string]uint64, len(vc))
	for k, v := range vc {
		m[string(k)] = uint64(v)
	}
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(m)
	if err != nil {
		return syncerr.Store.Wrap(err)
	}
	if err := w.Put([]byte(keyVectorClock), b); err != nil {
		return syncerr.Store.Wrap(err)
	}
	return nil
}

// GetVectorClock returns the current VectorClock singleton, reading through
// the in-memory cache when present (invalidated via ClearVectorClockCache
// for multi-tab safety).
func (s *Store) GetVectorClock() (vclock.VectorClock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vcCache != nil {
		return (*s.vcCache).Clone(), nil
	}
	vc, err := s.getVectorClockLocked(s.kv)
	if err != nil {
		return nil, err
	}
	s.vcCache = &vc
	return vc.Clone(), nil
}

// SetVectorClock overwrites the VectorClock singleton.
func (s *Store) SetVectorClock(vc vclock.VectorClock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putVectorClock(s.kv, vc); err != nil {
		return err
	}
	cloned := vc.Clone()
	s.vcCache = &cloned
	return nil
}

// MergeRemoteOpClocks merges every incoming op's clock into the local
// singleton after successful application. This is mandatory: its absence
// silently breaks causality, because the device would then fail to
// recognize it has already observed concurrent updates it applied from a
// remote peer.
func (s *Store) MergeRemoteOpClocks(ops []op.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	vc, err := s.getVectorClockLocked(s.kv)
	if err != nil {
		return err
	}
	for _, o := range ops {
		vc = vclock.Merge(vc, o.VectorClock)
	}
	if err := s.putVectorClock(s.kv, vc); err != nil {
		return err
	}
	s.vcCache = &vc
	return nil
}

// ClearVectorClockCache invalidates the in-memory copy so the next read
// goes through to storage. Needed for multi-tab safety: the log is a
// shared resource across cooperative writers in distinct processes, and a
// sibling tab may have written the singleton directly.
func (s *Store) ClearVectorClockCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vcCache = nil
}

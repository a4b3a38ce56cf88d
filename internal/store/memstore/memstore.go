// Package memstore is an in-memory store.Store used by tests across the
// sync core. It is a full store.Store implementation backed by a plain
// map[string][]byte, so oplog/clientsync/server tests don't need a real
// bbolt file.
package memstore

import (
	"sort"
	"sync"

	"github.com/yzkee/super-productivity-sub001/internal/store"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
)

// Store is a mutex-guarded sorted map. It is not meant to be fast, only a
// faithful, simple reference implementation of the store.Store contract.
type Store struct {
	mu     sync.Mutex
	data   map[string][]byte
	closed bool
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) checkOpen() error {
	if s.closed {
		return syncerr.Store.New("closed store")
	}
	return nil
}

func (s *Store) Get(key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	v, ok := s.data[string(key)]
	if !ok {
		return nil, store.ErrUnknownKey
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	delete(s.data, string(key))
	return nil
}

func (s *Store) Scan(start, limit []byte) store.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return &errStream{err: err}
	}
	return newSliceStream(s.snapshotRange(start, limit))
}

func (s *Store) snapshotRange(start, limit []byte) []kv {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if k < string(start) {
			continue
		}
		if limit != nil && k >= string(limit) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]kv, len(keys))
	for i, k := range keys {
		out[i] = kv{key: []byte(k), val: append([]byte(nil), s.data[k]...)}
	}
	return out
}

func (s *Store) NewSnapshot() store.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		cp[k] = append([]byte(nil), v...)
	}
	return &snapshot{data: cp}
}

func (s *Store) NewTransaction() store.Transaction {
	s.mu.Lock()
	base := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		base[k] = v
	}
	s.mu.Unlock()
	return &txn{parent: s, data: base, dirty: make(map[string][]byte), deleted: make(map[string]bool)}
}

type snapshot struct {
	data   map[string][]byte
	closed bool
}

func (s *snapshot) Get(key []byte) ([]byte, error) {
	if s.closed {
		return nil, syncerr.Store.New("closed snapshot")
	}
	v, ok := s.data[string(key)]
	if !ok {
		return nil, store.ErrUnknownKey
	}
	return append([]byte(nil), v...), nil
}

func (s *snapshot) Scan(start, limit []byte) store.Stream {
	if s.closed {
		return &errStream{err: syncerr.Store.New("closed snapshot")}
	}
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if k < string(start) || (limit != nil && k >= string(limit)) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]kv, len(keys))
	for i, k := range keys {
		out[i] = kv{key: []byte(k), val: s.data[k]}
	}
	return newSliceStream(out)
}

func (s *snapshot) Close() error {
	s.closed = true
	return nil
}

// txn buffers writes and applies them to the parent store atomically on
// Commit.
type txn struct {
	parent  *Store
	data    map[string][]byte // base view at txn start, overlaid by dirty/deleted
	dirty   map[string][]byte
	deleted map[string]bool
	closed  bool
}

func (t *txn) view(key string) ([]byte, bool) {
	if t.deleted[key] {
		return nil, false
	}
	if v, ok := t.dirty[key]; ok {
		return v, true
	}
	v, ok := t.data[key]
	return v, ok
}

func (t *txn) Get(key []byte) ([]byte, error) {
	if t.closed {
		return nil, syncerr.Store.New("aborted transaction")
	}
	v, ok := t.view(string(key))
	if !ok {
		return nil, store.ErrUnknownKey
	}
	return append([]byte(nil), v...), nil
}

func (t *txn) Put(key, value []byte) error {
	if t.closed {
		return syncerr.Store.New("aborted transaction")
	}
	k := string(key)
	delete(t.deleted, k)
	t.dirty[k] = append([]byte(nil), value...)
	return nil
}

func (t *txn) Delete(key []byte) error {
	if t.closed {
		return syncerr.Store.New("aborted transaction")
	}
	k := string(key)
	delete(t.dirty, k)
	t.deleted[k] = true
	return nil
}

func (t *txn) Scan(start, limit []byte) store.Stream {
	if t.closed {
		return &errStream{err: syncerr.Store.New("aborted transaction")}
	}
	seen := make(map[string]bool)
	var keys []string
	for k := range t.dirty {
		if k < string(start) || (limit != nil && k >= string(limit)) {
			continue
		}
		keys = append(keys, k)
		seen[k] = true
	}
	for k := range t.data {
		if seen[k] || t.deleted[k] {
			continue
		}
		if k < string(start) || (limit != nil && k >= string(limit)) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]kv, len(keys))
	for i, k := range keys {
		v, _ := t.view(k)
		out[i] = kv{key: []byte(k), val: v}
	}
	return newSliceStream(out)
}

func (t *txn) Commit() error {
	if t.closed {
		return syncerr.Store.New("aborted transaction")
	}
	t.closed = true
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	for k := range t.deleted {
		delete(t.parent.data, k)
	}
	for k, v := range t.dirty {
		t.parent.data[k] = v
	}
	return nil
}

func (t *txn) Abort() error {
	t.closed = true
	return nil
}

type kv struct {
	key, val []byte
}

type sliceStream struct {
	items []kv
	i     int
}

func newSliceStream(items []kv) *sliceStream {
	return &sliceStream{items: items, i: -1}
}

func (s *sliceStream) Advance() bool {
	if s.i+1 >= len(s.items) {
		return false
	}
	s.i++
	return true
}

func (s *sliceStream) Key() []byte {
	if s.i < 0 || s.i >= len(s.items) {
		return nil
	}
	return s.items[s.i].key
}

func (s *sliceStream) Value() []byte {
	if s.i < 0 || s.i >= len(s.items) {
		return nil
	}
	return s.items[s.i].val
}

func (s *sliceStream) Err() error { return nil }
func (s *sliceStream) Cancel()    { s.i = len(s.items) }

type errStream struct{ err error }

func (e *errStream) Advance() bool { return false }
func (e *errStream) Key() []byte   { return nil }
func (e *errStream) Value() []byte { return nil }
func (e *errStream) Err() error    { return e.err }
func (e *errStream) Cancel()       {}

// Package boltstore implements store.Store on top of go.etcd.io/bbolt, a
// pure-Go embedded KV store. bbolt is an MVCC B+tree with native snapshot
// and read-write transaction support, so Snapshot and Transaction below are
// thin wrappers around *bbolt.Tx rather than a hand-rolled copy-on-write
// layer.
package boltstore

import (
	"go.etcd.io/bbolt"

	"github.com/yzkee/super-productivity-sub001/internal/store"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
)

var bucketName = []byte("sup_ops")

// DB wraps a *bbolt.Db to implement store.Store.
type DB struct {
	bolt *bbolt.DB
}

var _ store.Store = (*DB)(nil)

// Open opens (creating if needed) the bbolt file at path.
func Open(path string) (*DB, error) {
	bdb, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, syncerr.Store.Wrap(err)
	}
	if err := bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		_ = bdb.Close()
		return nil, syncerr.Store.Wrap(err)
	}
	return &DB{bolt: bdb}, nil
}

func (d *DB) Close() error {
	return d.bolt.Close()
}

func (d *DB) Get(key []byte) ([]byte, error) {
	var out []byte
	err := d.bolt.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get(key)
		if v == nil {
			return store.ErrUnknownKey
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DB) Put(key, value []byte) error {
	return d.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(key, value)
	})
}

func (d *DB) Delete(key []byte) error {
	return d.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete(key)
	})
}

func (d *DB) Scan(start, limit []byte) store.Stream {
	tx, err := d.bolt.Begin(false)
	if err != nil {
		return &errStream{err: syncerr.Store.Wrap(err)}
	}
	return newCursorStream(tx, true, start, limit)
}

func (d *DB) NewSnapshot() store.Snapshot {
	tx, err := d.bolt.Begin(false)
	if err != nil {
		return &errSnapshot{err: syncerr.Store.Wrap(err)}
	}
	return &snapshot{tx: tx}
}

func (d *DB) NewTransaction() store.Transaction {
	tx, err := d.bolt.Begin(true)
	if err != nil {
		return &errTxn{err: syncerr.Store.Wrap(err)}
	}
	return &transaction{tx: tx}
}

// snapshot is a point-in-time read-only view backed by a bbolt read
// transaction; bbolt's MVCC guarantees it observes no writes committed
// after it began.
type snapshot struct {
	tx     *bbolt.Tx
	closed bool
}

func (s *snapshot) Get(key []byte) ([]byte, error) {
	if s.closed {
		return nil, syncerr.Store.New("closed snapshot")
	}
	v := s.tx.Bucket(bucketName).Get(key)
	if v == nil {
		return nil, store.ErrUnknownKey
	}
	return append([]byte(nil), v...), nil
}

func (s *snapshot) Scan(start, limit []byte) store.Stream {
	if s.closed {
		return &errStream{err: syncerr.Store.New("closed snapshot")}
	}
	return newCursorStream(s.tx, false, start, limit)
}

func (s *snapshot) Close() error {
	s.closed = true
	return s.tx.Rollback()
}

// transaction is a read-write view committed or aborted atomically. One
// local op append uses exactly one transaction.
type transaction struct {
	tx     *bbolt.Tx
	closed bool
}

func (t *transaction) Get(key []byte) ([]byte, error) {
	if t.closed {
		return nil, syncerr.Store.New("aborted transaction")
	}
	v := t.tx.Bucket(bucketName).Get(key)
	if v == nil {
		return nil, store.ErrUnknownKey
	}
	return append([]byte(nil), v...), nil
}

func (t *transaction) Scan(start, limit []byte) store.Stream {
	if t.closed {
		return &errStream{err: syncerr.Store.New("aborted transaction")}
	}
	return newCursorStream(t.tx, false, start, limit)
}

func (t *transaction) Put(key, value []byte) error {
	if t.closed {
		return syncerr.Store.New("aborted transaction")
	}
	return t.tx.Bucket(bucketName).Put(key, value)
}

func (t *transaction) Delete(key []byte) error {
	if t.closed {
		return syncerr.Store.New("aborted transaction")
	}
	return t.tx.Bucket(bucketName).Delete(key)
}

func (t *transaction) Commit() error {
	t.closed = true
	return t.tx.Commit()
}

func (t *transaction) Abort() error {
	t.closed = true
	return t.tx.Rollback()
}

// cursorStream adapts a bbolt cursor to store.Stream, ordered ascending
// over [start, limit).
type cursorStream struct {
	tx        *bbolt.Tx
	ownsTx    bool
	cur       *bbolt.Cursor
	limit     []byte
	started   bool
	cancelled bool
	k, v      []byte
	err       error
}

func newCursorStream(tx *bbolt.Tx, ownsTx bool, start, limit []byte) *cursorStream {
	return &cursorStream{
		tx:     tx,
		ownsTx: ownsTx,
		cur:    tx.Bucket(bucketName).Cursor(),
		limit:  limit,
		k:      start,
	}
}

func (c *cursorStream) Advance() bool {
	if c.cancelled || c.err != nil {
		return false
	}
	var k, v []byte
	if !c.started {
		c.started = true
		k, v = c.cur.Seek(c.k)
	} else {
		k, v = c.cur.Next()
	}
	if k == nil || (c.limit != nil && string(k) >= string(c.limit)) {
		c.k, c.v = nil, nil
		return false
	}
	c.k = append([]byte(nil), k...)
	c.v = append([]byte(nil), v...)
	return true
}

func (c *cursorStream) Key() []byte   { return c.k }
func (c *cursorStream) Value() []byte { return c.v }
func (c *cursorStream) Err() error    { return c.err }

func (c *cursorStream) Cancel() {
	c.cancelled = true
	if c.ownsTx && c.tx != nil {
		_ = c.tx.Rollback()
		c.tx = nil
	}
}

// errStream/errSnapshot/errTxn surface an open error (e.g. failed Begin)
// through the same interfaces rather than panicking.
type errStream struct{ err error }

func (e *errStream) Advance() bool { return false }
func (e *errStream) Key() []byte   { return nil }
func (e *errStream) Value() []byte { return nil }
func (e *errStream) Err() error    { return e.err }
func (e *errStream) Cancel()       {}

type errSnapshot struct{ err error }

func (e *errSnapshot) Get(key []byte) ([]byte, error)        { return nil, e.err }
func (e *errSnapshot) Scan(start, limit []byte) store.Stream { return &errStream{err: e.err} }
func (e *errSnapshot) Close() error                          { return e.err }

type errTxn struct{ err error }

func (e *errTxn) Get(key []byte) ([]byte, error) { return nil, e.err }
func (e *errTxn) Scan(_, _ []byte) store.Stream  { return &errStream{err: e.err} }
func (e *errTxn) Put(key, value []byte) error    { return e.err }
func (e *errTxn) Delete(key []byte) error        { return e.err }
func (e *errTxn) Commit() error                  { return e.err }
func (e *errTxn) Abort() error                   { return e.err }

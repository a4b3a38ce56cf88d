// Package store defines the embedded key-value storage contract the
// Operation Log Store is built on: Store / Snapshot / Transaction /
// Stream. The concrete backend lives in the boltstore subpackage.
package store

import "errors"

// ErrUnknownKey is returned by Get when the key does not exist. Named
// distinctly from a generic "not found" so callers can distinguish
// "absent" from "storage error".
var ErrUnknownKey = errors.New("store: unknown key")

// StoreReader is the read half of Store.
type StoreReader interface {
	// Get returns the value for key, or ErrUnknownKey if absent.
	Get(key []byte) ([]byte, error)
	// Scan returns a Stream over all keys in [start, limit).
	Scan(start, limit []byte) Stream
}

// StoreWriter is the write half of Store.
type StoreWriter interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// StoreReadWriter is satisfied by both Store and Transaction.
type StoreReadWriter interface {
	StoreReader
	StoreWriter
}

// Snapshot is a point-in-time, read-only view of a Store.
type Snapshot interface {
	StoreReader
	Close() error
}

// Transaction is a read-write view of a Store that is committed or aborted
// atomically. One local op append is one transaction.
type Transaction interface {
	StoreReadWriter
	Commit() error
	Abort() error
}

// Stream iterates over a range of keys in ascending order.
type Stream interface {
	// Advance stages the next key/value pair. It must be called before the
	// first Key/Value access and returns false at end-of-stream or on error.
	Advance() bool
	Key() []byte
	Value() []byte
	// Err returns any error encountered during iteration; nil at a clean
	// end-of-stream.
	Err() error
	// Cancel stops the stream early, releasing its resources.
	Cancel()
}

// Store is a durable, append-friendly key-value store with snapshot and
// transaction isolation.
type Store interface {
	StoreReadWriter
	NewSnapshot() Snapshot
	NewTransaction() Transaction
	Close() error
}

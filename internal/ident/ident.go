// Package ident issues the two identifiers the sync core relies on:
// ClientId (stable, device-unique, issued once) and OpId (time-sortable,
// unique per operation).
package ident

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/yzkee/super-productivity-sub001/internal/vclock"
)

// NewClientId issues a new, globally unique device identifier. Callers must
// persist it immediately and reuse it for the lifetime of the device's
// install; a ClientId is never reused across devices.
func NewClientId() vclock.ClientId {
	return vclock.ClientId(uuid.NewString())
}

// OpId is a time-sortable, lexicographically ordered unique operation
// identifier. It is backed by a ULID so that byte/string comparison order
// matches authoring order, which the sync import filter depends on.
type OpId string

// entropy is package-level because ulid.New reads randomness on every call;
// sharing one crypto/rand-backed source avoids re-opening /dev/urandom in
// hot paths such as appendBatch. ulid.Monotonic is not safe for concurrent
// use on its own, so access is serialized with entropyMu.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewOpId returns a fresh op id for the given authoring instant.
func NewOpId(at time.Time) OpId {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return OpId(ulid.MustNew(ulid.Timestamp(at), entropy).String())
}

// Less reports whether a was authored strictly before b, using the same
// lexicographic order the import filter relies on.
func (a OpId) Less(b OpId) bool {
	return string(a) < string(b)
}

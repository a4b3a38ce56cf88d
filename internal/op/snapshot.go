package op

import "github.com/yzkee/super-productivity-sub001/internal/vclock"

// StateSnapshot is a compacted reducer state value. The reducer itself is
// an external collaborator; State is therefore opaque bytes the store
// never interprets, just like Operation.Payload.
//
// Invariant: replaying all ops with seq > LastAppliedOpSeq onto State
// reproduces the current live state exactly.
type StateSnapshot struct {
	State             []byte
	LastAppliedOpSeq  uint64
	VectorClock       vclock.VectorClock
	CompactedAtMs     int64
	SchemaVersion     int
	CompactionCounter uint64
	EntityKeys        []string
}

// ImportBackup is the snapshot saved immediately before any import
// operation, keyed as a singleton, used for manual recovery.
type ImportBackup struct {
	Snapshot  StateSnapshot
	SavedAtMs int64
}

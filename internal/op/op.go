// Package op defines the Operation data model and the two representations
// the codec round-trips between: the full, self-describing representation
// used in-memory and on the wire, and the compact representation used in
// durable storage.
package op

import (
	"github.com/yzkee/super-productivity-sub001/internal/ident"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
)

// Type enumerates the kinds of operation.
type Type string

const (
	TypeCreate       Type = "CRT"
	TypeUpdate       Type = "UPD"
	TypeDelete       Type = "DEL"
	TypeLWW          Type = "LWW"
	TypeBatch        Type = "BATCH"
	TypeSyncImport   Type = "SYNC_IMPORT"
	TypeBackupImport Type = "BACKUP_IMPORT"
	TypeRepair       Type = "REPAIR"
)

// IsFullState reports whether t invalidates prior history.
func (t Type) IsFullState() bool {
	return t == TypeSyncImport || t == TypeBackupImport || t == TypeRepair
}

// EntityType names the kind of domain entity an op targets, or one of the
// two bulk pseudo-entities.
type EntityType string

const (
	EntityAll      EntityType = "ALL"
	EntityRecovery EntityType = "RECOVERY"
)

// ImportReason distinguishes a first-time import from a recovery import:
// exactly one "initial" SYNC_IMPORT is allowed per user account; "recovery"
// is always allowed.
type ImportReason string

const (
	ReasonInitial  ImportReason = "initial"
	ReasonRecovery ImportReason = "recovery"
)

// Operation is the unit of causality in the sync core. Once created it is
// never mutated; OperationLogEntry and StoredOperation layer mutable
// bookkeeping on top without touching these fields.
type Operation struct {
	Id            ident.OpId
	ClientId      vclock.ClientId
	OpType        Type
	EntityType    EntityType
	EntityId      string // empty for EntityAll/EntityRecovery
	Payload       []byte // opaque; ciphertext if encryption is enabled
	VectorClock   vclock.VectorClock
	TimestampMs   int64 // wall-clock ms at authoring; LWW tiebreak only, never ordering
	SchemaVersion int
	Reason        ImportReason `json:",omitempty"` // only meaningful for full-state ops
	Encrypted     bool         // server-visible flag, not secret itself
}

// Clone returns a deep copy safe to mutate independently of op.
func (o Operation) Clone() Operation {
	out := o
	if o.Payload != nil {
		out.Payload = append([]byte(nil), o.Payload...)
	}
	out.VectorClock = o.VectorClock.Clone()
	return out
}

// Source records whether an OperationLogEntry originated on this device or
// was received from a remote peer.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// ApplicationStatus tracks whether a log entry has been applied to the
// reducer.
type ApplicationStatus string

const (
	StatusPending ApplicationStatus = "pending"
	StatusApplied ApplicationStatus = "applied"
	StatusFailed  ApplicationStatus = "failed"
)

// LogEntry is a client-local durable record: an Operation plus the
// bookkeeping fields the Operation Log Store maintains.
type LogEntry struct {
	Operation
	Seq               uint64
	AppliedAtMs       int64
	Source            Source
	SyncedAtMs        *int64 // nil until uploaded+accepted
	RejectedAtMs      *int64 // nil unless tombstoned
	ApplicationStatus ApplicationStatus
	RetryCount        int
}

// IsUnsynced reports whether this entry still needs to be uploaded: it
// originated on this device and has neither syncedAt nor rejectedAt set.
// Remote-sourced entries are never uploaded back to the server they came
// from.
func (e *LogEntry) IsUnsynced() bool {
	return e.Source == SourceLocal && e.SyncedAtMs == nil && e.RejectedAtMs == nil
}

// StoredOperation is the server-side record: a client Operation plus the
// fields the server assigns.
type StoredOperation struct {
	Operation
	ServerSeq    uint64
	ReceivedAtMs int64
	UserId       string
}

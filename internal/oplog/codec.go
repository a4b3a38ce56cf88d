package oplog

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// storedEntry is the durable shape of an op.LogEntry: the Operation nested
// via its own compact codec, wrapped with the bookkeeping fields the
// Operation Log Store owns.
type storedEntry struct {
	Op                []byte `json:"op"`
	Seq               uint64 `json:"seq"`
	AppliedAtMs       int64  `json:"appliedAt"`
	Source            string `json:"source"`
	SyncedAtMs        *int64 `json:"syncedAt,omitempty"`
	RejectedAtMs      *int64 `json:"rejectedAt,omitempty"`
	ApplicationStatus string `json:"status"`
	RetryCount        int    `json:"retryCount"`
}

func encodeEntry(e *op.LogEntry) ([]byte, error) {
	opBytes, err := op.MarshalCompact(e.Operation)
	if err != nil {
		return nil, err
	}
	se := storedEntry{
		Op:                opBytes,
		Seq:               e.Seq,
		AppliedAtMs:       e.AppliedAtMs,
		Source:            string(e.Source),
		SyncedAtMs:        e.SyncedAtMs,
		RejectedAtMs:      e.RejectedAtMs,
		ApplicationStatus: string(e.ApplicationStatus),
		RetryCount:        e.RetryCount,
	}
	b, err := json.Marshal(se)
	if err != nil {
		return nil, syncerr.Store.Wrap(err)
	}
	return b, nil
}

func decodeEntry(b []byte) (*op.LogEntry, error) {
	var se storedEntry
	if err := json.Unmarshal(b, &se); err != nil {
		return nil, syncerr.Store.Wrap(err)
	}
	o, err := op.UnmarshalCompact(se.Op)
	if err != nil {
		return nil, err
	}
	return &op.LogEntry{
		Operation:         o,
		Seq:               se.Seq,
		AppliedAtMs:       se.AppliedAtMs,
		Source:            op.Source(se.Source),
		SyncedAtMs:        se.SyncedAtMs,
		RejectedAtMs:      se.RejectedAtMs,
		ApplicationStatus: op.ApplicationStatus(se.ApplicationStatus),
		RetryCount:        se.RetryCount,
	}, nil
}

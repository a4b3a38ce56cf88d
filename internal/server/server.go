// Package server implements the Server Sync Service: per-user authority
// over the op stream, entity-scoped conflict detection, and monotone
// serverSeq assignment.
package server

import (
	"github.com/rs/zerolog"

	"github.com/yzkee/super-productivity-sub001/internal/oplog"
	"github.com/yzkee/super-productivity-sub001/internal/store"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
)

// MaxVCSize mirrors oplog.MaxVCSize; kept as its own constant because the
// server and client stores are separate deployables and must not share a
// compile-time dependency on each other's internals beyond this shared
// policy value.
const MaxVCSize = oplog.MaxVCSize

// Service is the Server Sync Service backing one or more user accounts'
// authoritative op streams.
type Service struct {
	kv  store.Store
	log zerolog.Logger
}

// New constructs a Service backed by kv.
func New(kv store.Store, log zerolog.Logger) *Service {
	return &Service{kv: kv, log: log}
}

// UploadResult is the per-op verdict UploadOps returns.
type UploadResult struct {
	OpId          string
	Accepted      bool
	ServerSeq     uint64
	ErrorCode     syncerr.Code
	ExistingClock vclock.VectorClock
}

package clientsync

import (
	"context"

	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
)

// UploadVerdict is one op's per-op accept/reject result from
// Transport.UploadOps.
type UploadVerdict struct {
	OpId     string
	Accepted bool
	// ExistingClock is set by the server on rejection when it has a stored
	// clock to rebase against. Nil means rejected with no rebase
	// information; the client marks the op rejected outright.
	ExistingClock vclock.VectorClock
}

// DownloadResult is the server's answer to a getOpsSince request.
type DownloadResult struct {
	Ops []op.Operation
	// MaxServerSeq is the sequence the client passes as sinceSeq on its
	// next request. The REST back end reports the highest server sequence
	// among Ops (0 when Ops is empty); the file adapter reports its
	// document's current syncVersion.
	MaxServerSeq uint64
}

// Transport is the client's view of the Server Sync Service, satisfied by
// internal/wire's REST client and by the file-based adapter. clientsync is
// deliberately ignorant of HTTP/file-format details.
type Transport interface {
	UploadOps(ctx context.Context, userId string, clientId vclock.ClientId, ops []op.Operation) ([]UploadVerdict, error)
	GetOpsSince(ctx context.Context, userId string, sinceSeq uint64, limit int) (DownloadResult, error)
}

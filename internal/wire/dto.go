// Package wire implements the Wire Protocol and external adapters: a
// versioned JSON envelope over REST, a server-side chi handler, an HTTP
// client implementing clientsync.Transport, and (in the fileadapter
// subpackage) an alternate WebDAV-style file back end.
package wire

import (
	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
)

// ProtocolVersion is bumped whenever a wire DTO's shape changes
// incompatibly. Carried on every envelope so a server can reject a request
// from a client it no longer understands with a clear AUTH/UNAVAILABLE-style
// error rather than a confusing decode failure.
const ProtocolVersion = 1

// UploadRequest is the body of POST /sync/upload.
type UploadRequest struct {
	Version  int                `json:"version"`
	ClientId vclock.ClientId    `json:"clientId"`
	Ops      []op.WireOperation `json:"ops"`
}

// UploadResultDTO is one entry of UploadResponse.Results.
type UploadResultDTO struct {
	OpId          string            `json:"opId"`
	Accepted      bool              `json:"accepted"`
	ServerSeq     uint64            `json:"serverSeq,omitempty"`
	ErrorCode     syncerr.Code      `json:"errorCode,omitempty"`
	ExistingClock map[string]uint64 `json:"existingClock,omitempty"`
}

// UploadResponse is the body returned by POST /sync/upload.
type UploadResponse struct {
	Version int               `json:"version"`
	Results []UploadResultDTO `json:"results"`
}

// DownloadRequest is the query carried by GET /sync/download.
type DownloadRequest struct {
	SinceSeq uint64 `json:"sinceSeq"`
	Limit    int    `json:"limit"`
}

// StoredOperationDTO is the wire shape of a server-held op, returned by
// GET /sync/download.
type StoredOperationDTO struct {
	op.WireOperation
	ServerSeq    uint64 `json:"serverSeq"`
	ReceivedAtMs int64  `json:"receivedAt"`
}

// DownloadResponse is the body returned by GET /sync/download.
type DownloadResponse struct {
	Version      int                  `json:"version"`
	Ops          []StoredOperationDTO `json:"ops"`
	MaxServerSeq uint64               `json:"maxServerSeq"`
}

// SyncStateResponse is the body returned by GET /sync/state, mirroring
// server.UserSyncState.
type SyncStateResponse struct {
	Version          int    `json:"version"`
	MaxServerSeq     uint64 `json:"maxServerSeq"`
	HasInitialImport bool   `json:"hasInitialImport"`
}

// ErrorResponse carries one of the stable wire error codes when a request
// fails outright rather than producing per-op verdicts.
type ErrorResponse struct {
	Version int          `json:"version"`
	Code    syncerr.Code `json:"errorCode"`
	Message string       `json:"message,omitempty"`
}

func storedToDTO(s op.StoredOperation) StoredOperationDTO {
	return StoredOperationDTO{
		WireOperation: op.EncodeWire(s.Operation),
		ServerSeq:     s.ServerSeq,
		ReceivedAtMs:  s.ReceivedAtMs,
	}
}

func storedFromDTO(d StoredOperationDTO) op.StoredOperation {
	return op.StoredOperation{
		Operation: op.DecodeWire(d.WireOperation),
		ServerSeq: d.ServerSeq,
	}
}

func vcToWire(vc vclock.VectorClock) map[string]uint64 {
	if len(vc) == 0 {
		return nil
	}
	out := make(map[string]uint64, len(vc))
	for k, v := range vc {
		out[string(k)] = uint64(v)
	}
	return out
}

func vcFromWire(m map[string]uint64) vclock.VectorClock {
	if len(m) == 0 {
		return vclock.VectorClock{}
	}
	out := make(vclock.VectorClock, len(m))
	for k, v := range m {
		out[vclock.ClientId(k)] = vclock.Counter(v)
	}
	return out
}

// Package syncerr defines the stable error taxonomy shared by the client
// and server halves of the sync core. Components raise errors through
// component-scoped errs.Classes; each wire-visible error code is a stable
// Code carried by a *WireError, and conditions that are not wire codes are
// sentinel errors, so every error carries a stable identity a caller can
// branch on.
package syncerr

import (
	"errors"

	"github.com/zeebo/errs"
)

// Classes group errors by the component that raises them.
var (
	Vclock     = errs.Class("vclock")
	Codec      = errs.Class("codec")
	Store      = errs.Class("store")
	ImportFlt  = errs.Class("importfilter")
	ClientSync = errs.Class("clientsync")
	Crypto     = errs.Class("crypto")
	Server     = errs.Class("server")
	Wire       = errs.Class("wire")
)

// Code is a stable, wire-visible error code.
type Code string

const (
	CodeConflictConcurrent   Code = "CONFLICT_CONCURRENT"
	CodeConflictSuperseded   Code = "CONFLICT_SUPERSEDED"
	CodeEqualDifferentClient Code = "EQUAL_DIFFERENT_CLIENT"
	CodeSyncImportExists     Code = "SYNC_IMPORT_EXISTS"
	CodeStorageQuotaExceeded Code = "STORAGE_QUOTA_EXCEEDED"
	CodeAuth                 Code = "AUTH"
	CodeUnavailable          Code = "UNAVAILABLE"
)

// WireError is a typed, stable-code error surfaced across the client/server
// boundary. It is not itself retried or interpreted by syncerr; callers
// (clientsync, server) decide recovery.
type WireError struct {
	Code Code
	Msg  string
}

func (e *WireError) Error() string {
	if e.Msg == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Msg
}

// NewWireError constructs a WireError for the given stable code.
func NewWireError(code Code, msg string) *WireError {
	return &WireError{Code: code, Msg: msg}
}

// CodeOf extracts the wire Code from err, if any.
func CodeOf(err error) (Code, bool) {
	var w *WireError
	if errors.As(err, &w) {
		return w.Code, true
	}
	return "", false
}

// Sentinel errors for conditions that are not wire codes but still need a
// stable identity the engine can branch on.
var (
	// ErrLocalDataConflict is raised by the client sync engine's download
	// phase when remote ops discarded by the import filter are concurrent
	// with the client's local full-state op and no ConflictResolver is set.
	ErrLocalDataConflict = ClientSync.New("local data conflict: remote ops concurrent with local import")

	// ErrDecryptionFailed surfaces a visible error and halts sync until the
	// password is corrected.
	ErrDecryptionFailed = Crypto.New("decryption failed")

	// ErrSyncDisabled is returned by clientsync operations when sync has
	// been disabled via DisableSync.
	ErrSyncDisabled = ClientSync.New("sync is disabled")

	// ErrSyncAlreadyRunning enforces the single-writer discipline: at most
	// one sync cycle runs at a time on a given device.
	ErrSyncAlreadyRunning = ClientSync.New("a sync cycle is already running")

	// ErrCancelled is returned when a cooperative cancellation token fires
	// between network-await points.
	ErrCancelled = ClientSync.New("sync cycle cancelled")
)

// Package clientsync implements the Client Sync Engine: the
// download/apply/upload state machine that drives one device's Operation
// Log Store to and from the Server Sync Service.
package clientsync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yzkee/super-productivity-sub001/internal/config"
	"github.com/yzkee/super-productivity-sub001/internal/crypto"
	"github.com/yzkee/super-productivity-sub001/internal/ident"
	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/oplog"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
)

// Reducer applies a decoded Operation to the domain's live state. The
// engine is deliberately ignorant of what state looks like; it only
// guarantees ordering and bookkeeping around the call.
type Reducer interface {
	Apply(o op.Operation) error
}

// ConflictChoice is the user's answer to a LocalDataConflict prompt.
type ConflictChoice int

const (
	ConflictCancel ConflictChoice = iota
	ConflictUseLocal
	ConflictUseRemote
)

// ConflictResolver surfaces a LocalDataConflict to the user and returns
// their choice. concurrent holds the remote ops that were discarded by the
// import filter yet related as CONCURRENT to the local full-state op: the
// evidence of genuinely divergent history.
type ConflictResolver func(ctx context.Context, localFullState op.Operation, concurrent []op.Operation) ConflictChoice

// maxSettleRounds bounds the settle loop; a bounded retry counter prevents
// livelock.
const maxSettleRounds = 5

// downloadBatchCap and uploadBatchCap are the per-request batch size caps.
const (
	downloadBatchCap = 500
	uploadBatchCap   = 500
)

// Engine is one device's Client Sync Engine.
type Engine struct {
	log       zerolog.Logger
	store     *oplog.Store
	transport Transport
	reducer   Reducer
	resolve   ConflictResolver
	selfID    vclock.ClientId

	// mu is the single process-wide lock: at most one sync cycle runs at a
	// time (enforced via TryLock so a second concurrent cycle fails fast
	// instead of queuing, callers retry on their own schedule), and local op
	// appends block on it too, so they never race a cycle's vector-clock
	// read.
	mu sync.Mutex

	cfg                config.SyncConfig
	userId             string
	enabled            bool
	lastKnownServerSeq uint64
}

// New constructs an Engine. reducer may be nil: downloaded ops are then
// logged and marked applied without a dispatch. resolve may be nil: a
// LocalDataConflict then ends the cycle with syncerr.ErrLocalDataConflict.
func New(store *oplog.Store, transport Transport, reducer Reducer, resolve ConflictResolver, selfID vclock.ClientId, log zerolog.Logger) *Engine {
	return &Engine{
		store:     store,
		transport: transport,
		reducer:   reducer,
		resolve:   resolve,
		selfID:    selfID,
		log:       log,
	}
}

// SetupSync validates and installs cfg, enabling the sync cycle.
func (e *Engine) SetupSync(cfg config.SyncConfig, userId string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.userId = userId
	e.enabled = true
	return nil
}

// DisableSync turns sync off; waits for an in-flight cycle to finish
// before taking effect, so SyncAndWait never observes a half-disabled
// state mid-cycle.
func (e *Engine) DisableSync() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = false
}

// acquire enforces the single-writer discipline: exactly one sync cycle
// holds the engine's lock at a time. TryLock makes a second concurrent
// cycle fail fast (ErrSyncAlreadyRunning) rather than queue; the caller's
// scheduler retries later instead of piling up blocked cycles.
func (e *Engine) acquire() (func(), error) {
	if !e.mu.TryLock() {
		return nil, syncerr.ErrSyncAlreadyRunning
	}
	if !e.enabled {
		e.mu.Unlock()
		return nil, syncerr.ErrSyncDisabled
	}
	return e.mu.Unlock, nil
}

// AppendLocalOp appends a locally-authored op and dispatches it to the
// reducer under the same lock a sync cycle uses, so a local append never
// races a cycle's vector-clock read. Unlike acquire, this blocks rather
// than failing fast; an append has no reasonable "try again later" caller.
func (e *Engine) AppendLocalOp(o op.Operation) (*op.LogEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, err := e.store.Append(o, op.SourceLocal)
	if err != nil {
		return nil, err
	}
	if e.reducer != nil {
		if err := e.reducer.Apply(o); err != nil {
			return entry, err
		}
	}
	return entry, nil
}

// CycleResult summarizes what one SyncAndWait call did.
type CycleResult struct {
	Rounds         int
	Downloaded     int
	Discarded      int
	Uploaded       int
	Accepted       int
	Rejected       int
	RecoveryOps    int
	ConflictChoice *ConflictChoice
}

// SyncAndWait runs one full sync cycle to resolution: download, upload,
// and a bounded settle loop.
func (e *Engine) SyncAndWait(ctx context.Context) (CycleResult, error) {
	release, err := e.acquire()
	if err != nil {
		return CycleResult{}, err
	}
	defer release()

	var result CycleResult
	for round := 0; round < maxSettleRounds; round++ {
		result.Rounds++

		if err := ctx.Err(); err != nil {
			return result, syncerr.ErrCancelled
		}

		if err := e.runDownload(ctx, &result); err != nil {
			return result, err
		}

		if err := ctx.Err(); err != nil {
			return result, syncerr.ErrCancelled
		}

		settleNeeded, err := e.runUpload(ctx, &result)
		if err != nil {
			return result, err
		}

		if !settleNeeded {
			break
		}
	}
	return result, nil
}

// ForceUploadLocalState performs the clean-slate upload as a SYNC_IMPORT op
// carrying reason; it never emits BACKUP_IMPORT. statePayload is the domain
// reducer's full exported state, opaque to this package.
func (e *Engine) ForceUploadLocalState(ctx context.Context, statePayload []byte, reason op.ImportReason) error {
	release, err := e.acquire()
	if err != nil {
		return err
	}
	defer release()

	vc, err := e.store.GetVectorClock()
	if err != nil {
		return err
	}
	vc = vclock.Increment(vc, e.selfID)

	o := op.Operation{
		Id:          ident.NewOpId(time.Now()),
		ClientId:    e.selfID,
		OpType:      op.TypeSyncImport,
		EntityType:  op.EntityAll,
		Payload:     statePayload,
		VectorClock: vc,
		TimestampMs: time.Now().UnixMilli(),
		Reason:      reason,
	}
	if _, err := e.store.Append(o, op.SourceLocal); err != nil {
		return err
	}

	verdicts, err := e.transport.UploadOps(ctx, e.userId, e.selfID, []op.Operation{o})
	if err != nil {
		return err
	}
	for _, v := range verdicts {
		if v.Accepted {
			entry, ok, err := e.findBySeqOrId(v.OpId)
			if err == nil && ok {
				_ = e.store.MarkSynced([]uint64{entry.Seq})
			}
		}
	}
	return nil
}

// ForceDownloadRemoteState discards local full-state ops and unsynced ops,
// then runs a download cycle.
func (e *Engine) ForceDownloadRemoteState(ctx context.Context) (CycleResult, error) {
	release, err := e.acquire()
	if err != nil {
		return CycleResult{}, err
	}
	defer release()

	if err := e.store.ClearFullStateOps(); err != nil {
		return CycleResult{}, err
	}
	if err := e.store.DiscardUnsynced(); err != nil {
		return CycleResult{}, err
	}

	var result CycleResult
	// Can't raise a LocalDataConflict: we just cleared the local full-state
	// op, so importfilter.Relation has no local clock left to compare
	// against.
	err = e.runDownload(ctx, &result)
	return result, err
}

// ApplyEncryptionTransition detects an encryption-setting change (enable,
// disable, or password change) and, if one occurred, performs the required
// clean-slate upload: a reason=recovery SYNC_IMPORT carrying statePayload
// encoded under the new setting, bypassing the one-initial-import-per-account
// rule the way a migration recovery does. Peer devices are expected to
// reconfigure with the new password independently; their concurrent edits
// during this window are overwritten.
func (e *Engine) ApplyEncryptionTransition(ctx context.Context, wasEnabled, isEnabled bool, oldPassword, newPassword string, statePayload []byte) (crypto.Transition, bool, error) {
	t, ok := crypto.DetectTransition(wasEnabled, isEnabled, oldPassword, newPassword)
	if !ok {
		return crypto.Transition{}, false, nil
	}
	if err := e.ForceUploadLocalState(ctx, statePayload, op.ReasonRecovery); err != nil {
		return t, true, err
	}
	return t, true, nil
}

func (e *Engine) findBySeqOrId(opId string) (*op.LogEntry, bool, error) {
	entries, err := e.store.GetOpsAfterSeq(0)
	if err != nil {
		return nil, false, err
	}
	for _, entry := range entries {
		if string(entry.Id) == opId {
			return entry, true, nil
		}
	}
	return nil, false, nil
}

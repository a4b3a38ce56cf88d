package clientsync_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/yzkee/super-productivity-sub001/internal/clientsync"
	"github.com/yzkee/super-productivity-sub001/internal/config"
	"github.com/yzkee/super-productivity-sub001/internal/crypto"
	"github.com/yzkee/super-productivity-sub001/internal/ident"
	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/oplog"
	"github.com/yzkee/super-productivity-sub001/internal/store/memstore"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
)

func validConfig() config.SyncConfig {
	return config.SyncConfig{Backend: config.BackendServer, BaseURL: "https://sync.example.test"}
}

type fakeTransport struct {
	downloadOps  []op.Operation
	maxServerSeq uint64
	uploaded     []op.Operation
	verdicts     func(ops []op.Operation) []clientsync.UploadVerdict
}

func (f *fakeTransport) GetOpsSince(_ context.Context, _ string, _ uint64, _ int) (clientsync.DownloadResult, error) {
	return clientsync.DownloadResult{Ops: f.downloadOps, MaxServerSeq: f.maxServerSeq}, nil
}

func (f *fakeTransport) UploadOps(_ context.Context, _ string, _ vclock.ClientId, ops []op.Operation) ([]clientsync.UploadVerdict, error) {
	f.uploaded = append(f.uploaded, ops...)
	if f.verdicts != nil {
		return f.verdicts(ops), nil
	}
	out := make([]clientsync.UploadVerdict, len(ops))
	for i, o := range ops {
		out[i] = clientsync.UploadVerdict{OpId: string(o.Id), Accepted: true}
	}
	return out, nil
}

type fakeReducer struct {
	applied []op.Operation
}

func (r *fakeReducer) Apply(o op.Operation) error {
	r.applied = append(r.applied, o)
	return nil
}

func newEngine(t *testing.T, transport clientsync.Transport, reducer *fakeReducer, resolve clientsync.ConflictResolver) (*clientsync.Engine, *oplog.Store, vclock.ClientId) {
	t.Helper()
	selfID := vclock.ClientId("device-a")
	st, err := oplog.New(memstore.New(), selfID, zerolog.Nop())
	require.NoError(t, err)
	e := clientsync.New(st, transport, reducer, resolve, selfID, zerolog.Nop())
	return e, st, selfID
}

func TestSyncAndWaitUploadsUnsyncedAndMarksSynced(t *testing.T) {
	transport := &fakeTransport{}
	reducer := &fakeReducer{}
	e, st, selfID := newEngine(t, transport, reducer, nil)
	require.NoError(t, e.SetupSync(validConfig(), "user1"))

	vc, _ := st.GetVectorClock()
	local := op.Operation{
		Id:          ident.NewOpId(time.Now()),
		ClientId:    selfID,
		OpType:      op.TypeUpdate,
		EntityType:  "task",
		EntityId:    "t1",
		VectorClock: vclock.Increment(vc, selfID),
		TimestampMs: time.Now().UnixMilli(),
	}
	_, err := e.AppendLocalOp(local)
	require.NoError(t, err)

	result, err := e.SyncAndWait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Uploaded)
	require.Equal(t, 1, result.Accepted)

	unsynced, err := st.GetUnsynced()
	require.NoError(t, err)
	require.Empty(t, unsynced)
}

func TestSyncAndWaitNoOpWhenNothingToDo(t *testing.T) {
	transport := &fakeTransport{}
	e, _, _ := newEngine(t, transport, &fakeReducer{}, nil)
	require.NoError(t, e.SetupSync(validConfig(), "user1"))

	result, err := e.SyncAndWait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Uploaded)
	require.Equal(t, 0, result.Downloaded)
	require.Empty(t, transport.uploaded)
}

func TestSyncAndWaitAppliesDownloadedRemoteOps(t *testing.T) {
	remote := op.Operation{
		Id:          ident.NewOpId(time.Now()),
		ClientId:    "device-b",
		OpType:      op.TypeUpdate,
		EntityType:  "task",
		EntityId:    "t1",
		VectorClock: vclock.VectorClock{"device-b": 1},
	}
	transport := &fakeTransport{downloadOps: []op.Operation{remote}, maxServerSeq: 5}
	reducer := &fakeReducer{}
	e, st, _ := newEngine(t, transport, reducer, nil)
	require.NoError(t, e.SetupSync(validConfig(), "user1"))

	result, err := e.SyncAndWait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Downloaded)
	require.Len(t, reducer.applied, 1)
	require.Equal(t, remote.Id, reducer.applied[0].Id)

	local, err := st.GetVectorClock()
	require.NoError(t, err)
	require.Equal(t, vclock.Counter(1), local["device-b"])
}

func TestSyncAndWaitRejectionSynthesizesRecoveryOp(t *testing.T) {
	transport := &fakeTransport{}
	e, st, selfID := newEngine(t, transport, &fakeReducer{}, nil)
	require.NoError(t, e.SetupSync(validConfig(), "user1"))

	vc, _ := st.GetVectorClock()
	local := op.Operation{
		Id:          ident.NewOpId(time.Now()),
		ClientId:    selfID,
		OpType:      op.TypeUpdate,
		EntityType:  "task",
		EntityId:    "t1",
		VectorClock: vclock.Increment(vc, selfID),
		TimestampMs: time.Now().UnixMilli(),
	}
	_, err := e.AppendLocalOp(local)
	require.NoError(t, err)

	existingClock := vclock.VectorClock{"device-b": 9}
	transport.verdicts = func(ops []op.Operation) []clientsync.UploadVerdict {
		out := make([]clientsync.UploadVerdict, len(ops))
		for i, o := range ops {
			out[i] = clientsync.UploadVerdict{OpId: string(o.Id), Accepted: false, ExistingClock: existingClock}
		}
		return out
	}

	// The fake rejects every upload, including each synthesized recovery op,
	// so every settle round rejects one op and enqueues one recovery op until
	// the loop's bound of 5 rounds is reached.
	result, err := e.SyncAndWait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, result.Rejected)
	require.Equal(t, 5, result.RecoveryOps)

	entries, err := st.GetOpsAfterSeq(0)
	require.NoError(t, err)
	var recovery *op.LogEntry
	for _, e := range entries {
		if e.OpType == op.TypeLWW {
			recovery = e
		}
	}
	require.NotNil(t, recovery, "expected a synthesized LWW recovery op")
	require.Equal(t, "t1", recovery.EntityId)
	require.GreaterOrEqual(t, recovery.VectorClock.Get("device-b"), existingClock.Get("device-b"))
}

type blockingTransport struct {
	fakeTransport
	proceed chan struct{}
}

func (b *blockingTransport) GetOpsSince(ctx context.Context, userId string, seq uint64, limit int) (clientsync.DownloadResult, error) {
	<-b.proceed
	return b.fakeTransport.GetOpsSince(ctx, userId, seq, limit)
}

func TestSyncAndWaitSecondConcurrentCallFailsFast(t *testing.T) {
	transport := &blockingTransport{proceed: make(chan struct{})}
	e, _, _ := newEngine(t, transport, &fakeReducer{}, nil)
	require.NoError(t, e.SetupSync(validConfig(), "user1"))

	errCh := make(chan error, 1)
	go func() {
		_, err := e.SyncAndWait(context.Background())
		errCh <- err
	}()

	// Give the first cycle time to acquire the lock and block in DOWNLOAD.
	time.Sleep(20 * time.Millisecond)

	_, err := e.SyncAndWait(context.Background())
	require.ErrorIs(t, err, syncerr.ErrSyncAlreadyRunning)

	close(transport.proceed)
	require.NoError(t, <-errCh)
}

func TestDisableSyncBlocksFurtherCycles(t *testing.T) {
	transport := &fakeTransport{}
	e, _, _ := newEngine(t, transport, &fakeReducer{}, nil)
	require.NoError(t, e.SetupSync(validConfig(), "user1"))
	e.DisableSync()

	_, err := e.SyncAndWait(context.Background())
	require.Error(t, err)
}

func TestApplyEncryptionTransitionTriggersCleanSlateUpload(t *testing.T) {
	transport := &fakeTransport{}
	e, _, _ := newEngine(t, transport, &fakeReducer{}, nil)
	require.NoError(t, e.SetupSync(validConfig(), "user1"))

	transition, changed, err := e.ApplyEncryptionTransition(context.Background(), false, true, "", "new-pw", []byte(`{"state":"snapshot"}`))
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, crypto.TransitionEnable, transition.Kind)

	require.Len(t, transport.uploaded, 1)
	require.Equal(t, op.TypeSyncImport, transport.uploaded[0].OpType)
	require.Equal(t, op.ReasonRecovery, transport.uploaded[0].Reason)
}

func TestApplyEncryptionTransitionNoOpWhenSettingUnchanged(t *testing.T) {
	transport := &fakeTransport{}
	e, _, _ := newEngine(t, transport, &fakeReducer{}, nil)
	require.NoError(t, e.SetupSync(validConfig(), "user1"))

	_, changed, err := e.ApplyEncryptionTransition(context.Background(), true, true, "same-pw", "same-pw", nil)
	require.NoError(t, err)
	require.False(t, changed)
	require.Empty(t, transport.uploaded)
}

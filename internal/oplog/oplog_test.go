package oplog_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/yzkee/super-productivity-sub001/internal/ident"
	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/oplog"
	"github.com/yzkee/super-productivity-sub001/internal/store/memstore"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
)

func newTestStore(t *testing.T) (*oplog.Store, vclock.ClientId) {
	t.Helper()
	selfID := vclock.ClientId("device-a")
	s, err := oplog.New(memstore.New(), selfID, zerolog.Nop())
	require.NoError(t, err)
	return s, selfID
}

func localOp(selfID vclock.ClientId, entityID string, priorVC vclock.VectorClock) op.Operation {
	return op.Operation{
		Id:          ident.NewOpId(time.Now()),
		ClientId:    selfID,
		OpType:      op.TypeUpdate,
		EntityType:  "task",
		EntityId:    entityID,
		Payload:     []byte(`{}`),
		VectorClock: vclock.Increment(priorVC, selfID),
		TimestampMs: time.Now().UnixMilli(),
	}
}

func TestAppendLocalUpdatesVectorClockSingleton(t *testing.T) {
	s, selfID := newTestStore(t)

	prior, err := s.GetVectorClock()
	require.NoError(t, err)
	require.Empty(t, prior)

	o := localOp(selfID, "t1", prior)
	_, err = s.Append(o, op.SourceLocal)
	require.NoError(t, err)

	after, err := s.GetVectorClock()
	require.NoError(t, err)
	require.Greater(t, after[selfID], prior[selfID])
}

func TestAppendBatchDuplicateFailsWholeBatch(t *testing.T) {
	s, selfID := newTestStore(t)
	vc, _ := s.GetVectorClock()
	o1 := localOp(selfID, "t1", vc)

	_, err := s.Append(o1, op.SourceLocal)
	require.NoError(t, err)

	// Re-append the same op id alongside a fresh one: the whole batch must
	// fail, and the fresh op must not have been durably written.
	o2 := localOp(selfID, "t2", vc)
	_, err = s.AppendBatch([]op.Operation{o1, o2}, op.SourceRemote)
	require.ErrorIs(t, err, oplog.ErrDuplicateOpID)

	ops, err := s.GetOpsAfterSeq(0)
	require.NoError(t, err)
	require.Len(t, ops, 1)
}

func TestGetUnsyncedIncremental(t *testing.T) {
	s, selfID := newTestStore(t)
	vc, _ := s.GetVectorClock()
	o1 := localOp(selfID, "t1", vc)
	_, err := s.Append(o1, op.SourceLocal)
	require.NoError(t, err)

	unsynced, err := s.GetUnsynced()
	require.NoError(t, err)
	require.Len(t, unsynced, 1)

	require.NoError(t, s.MarkSynced([]uint64{unsynced[0].Seq}))

	unsynced, err = s.GetUnsynced()
	require.NoError(t, err)
	require.Empty(t, unsynced)

	vc, _ = s.GetVectorClock()
	o2 := localOp(selfID, "t2", vc)
	_, err = s.Append(o2, op.SourceLocal)
	require.NoError(t, err)

	unsynced, err = s.GetUnsynced()
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	require.Equal(t, o2.Id, unsynced[0].Id)
}

func TestMarkRejectedTombstonesNotDeletes(t *testing.T) {
	s, selfID := newTestStore(t)
	vc, _ := s.GetVectorClock()
	o := localOp(selfID, "t1", vc)
	entry, err := s.Append(o, op.SourceLocal)
	require.NoError(t, err)

	require.NoError(t, s.MarkRejected([]ident.OpId{o.Id}))

	ops, err := s.GetOpsAfterSeq(0)
	require.NoError(t, err)
	require.Len(t, ops, 1) // still present, just tombstoned
	require.NotNil(t, ops[0].RejectedAtMs)
	require.Equal(t, entry.Seq, ops[0].Seq)

	unsynced, err := s.GetUnsynced()
	require.NoError(t, err)
	require.Empty(t, unsynced)
}

func TestMarkFailedTombstonesAfterMaxRetries(t *testing.T) {
	s, selfID := newTestStore(t)
	vc, _ := s.GetVectorClock()
	o := localOp(selfID, "t1", vc)
	_, err := s.Append(o, op.SourceLocal)
	require.NoError(t, err)

	require.NoError(t, s.MarkFailed([]ident.OpId{o.Id}, 2))
	unsynced, err := s.GetUnsynced()
	require.NoError(t, err)
	require.Len(t, unsynced, 1, "still eligible for retry")

	require.NoError(t, s.MarkFailed([]ident.OpId{o.Id}, 2))
	require.NoError(t, s.MarkFailed([]ident.OpId{o.Id}, 2))

	unsynced, err = s.GetUnsynced()
	require.NoError(t, err)
	require.Empty(t, unsynced, "tombstoned as rejected past maxRetries")
}

func TestGetLatestFullStateOpPicksGreatestId(t *testing.T) {
	s, selfID := newTestStore(t)
	vc, _ := s.GetVectorClock()

	older := localOp(selfID, "", vc)
	older.OpType = op.TypeSyncImport
	older.EntityType = op.EntityAll
	older.Id = ident.OpId("01A")
	_, err := s.Append(older, op.SourceLocal)
	require.NoError(t, err)

	newer := localOp(selfID, "", vc)
	newer.OpType = op.TypeBackupImport
	newer.EntityType = op.EntityRecovery
	newer.Id = ident.OpId("01Z")
	_, err = s.Append(newer, op.SourceLocal)
	require.NoError(t, err)

	got, ok, err := s.GetLatestFullStateOp()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, newer.Id, got.Id)
}

func TestClearFullStateOpsRemovesThemOnly(t *testing.T) {
	s, selfID := newTestStore(t)
	vc, _ := s.GetVectorClock()

	imp := localOp(selfID, "", vc)
	imp.OpType = op.TypeSyncImport
	imp.EntityType = op.EntityAll
	_, err := s.Append(imp, op.SourceLocal)
	require.NoError(t, err)

	vc, _ = s.GetVectorClock()
	regular := localOp(selfID, "t1", vc)
	_, err = s.Append(regular, op.SourceLocal)
	require.NoError(t, err)

	require.NoError(t, s.ClearFullStateOps())

	_, ok, err := s.GetLatestFullStateOp()
	require.NoError(t, err)
	require.False(t, ok)

	ops, err := s.GetOpsAfterSeq(0)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, regular.Id, ops[0].Id)
}

func TestMergeRemoteOpClocksDominatesAfterApply(t *testing.T) {
	s, selfID := newTestStore(t)
	_ = selfID

	remote1 := op.Operation{VectorClock: vclock.VectorClock{"device-b": 3}}
	remote2 := op.Operation{VectorClock: vclock.VectorClock{"device-c": 5, "device-b": 2}}

	require.NoError(t, s.MergeRemoteOpClocks([]op.Operation{remote1, remote2}))

	local, err := s.GetVectorClock()
	require.NoError(t, err)
	for _, r := range []op.Operation{remote1, remote2} {
		for k, v := range r.VectorClock {
			require.GreaterOrEqual(t, local[k], v)
		}
	}
}

func TestStartupRecoverySurfacesPendingAndFailed(t *testing.T) {
	kv := memstore.New()
	selfID := vclock.ClientId("device-a")
	s, err := oplog.New(kv, selfID, zerolog.Nop())
	require.NoError(t, err)

	remote := op.Operation{
		Id:         ident.NewOpId(time.Now()),
		ClientId:   "device-b",
		OpType:     op.TypeUpdate,
		EntityType: "task",
		EntityId:   "t1",
	}
	entries, err := s.AppendBatch([]op.Operation{remote}, op.SourceRemote)
	require.NoError(t, err)
	require.Equal(t, op.StatusPending, entries[0].ApplicationStatus)

	report, err := s.StartupRecovery()
	require.NoError(t, err)
	require.Len(t, report.PendingRemoteOps, 1)
	require.Empty(t, report.FailedRemoteOps)
	require.False(t, report.RestoredFromBackup)
}

func TestNoChangesProducesNoNewWrites(t *testing.T) {
	s, _ := newTestStore(t)
	before, err := s.GetOpsAfterSeq(0)
	require.NoError(t, err)
	require.Empty(t, before)

	unsynced, err := s.GetUnsynced()
	require.NoError(t, err)
	require.Empty(t, unsynced)

	after, err := s.GetOpsAfterSeq(0)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

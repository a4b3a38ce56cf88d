package server_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/yzkee/super-productivity-sub001/internal/ident"
	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/server"
	"github.com/yzkee/super-productivity-sub001/internal/store/memstore"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
)

const (
	userA   = "user-a"
	clientA = vclock.ClientId("client-a")
	clientB = vclock.ClientId("client-b")
)

func newService(t *testing.T) *server.Service {
	t.Helper()
	return server.New(memstore.New(), zerolog.Nop())
}

func taskOp(clientId vclock.ClientId, entityId string, vc vclock.VectorClock) op.Operation {
	return op.Operation{
		Id:            ident.NewOpId(time.Now()),
		ClientId:      clientId,
		OpType:        op.TypeUpdate,
		EntityType:    "task",
		EntityId:      entityId,
		Payload:       []byte(`{"title":"x"}`),
		VectorClock:   vc,
		TimestampMs:   time.Now().UnixMilli(),
		SchemaVersion: 1,
	}
}

func TestUploadAcceptsFirstOpForNewEntity(t *testing.T) {
	s := newService(t)
	o := taskOp(clientA, "task-1", vclock.VectorClock{clientA: 1})

	results, err := s.UploadOps(userA, clientA, []op.Operation{o})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Accepted)
	require.Equal(t, uint64(1), results[0].ServerSeq)
}

func TestUploadGreaterClockAccepted(t *testing.T) {
	s := newService(t)
	first := taskOp(clientA, "task-1", vclock.VectorClock{clientA: 1})
	_, err := s.UploadOps(userA, clientA, []op.Operation{first})
	require.NoError(t, err)

	second := taskOp(clientA, "task-1", vclock.VectorClock{clientA: 2})
	results, err := s.UploadOps(userA, clientA, []op.Operation{second})
	require.NoError(t, err)
	require.True(t, results[0].Accepted)
	require.Equal(t, uint64(2), results[0].ServerSeq)
}

func TestUploadEqualSameClientIsIdempotentRetry(t *testing.T) {
	s := newService(t)
	o := taskOp(clientA, "task-1", vclock.VectorClock{clientA: 1})

	first, err := s.UploadOps(userA, clientA, []op.Operation{o})
	require.NoError(t, err)
	require.True(t, first[0].Accepted)

	second, err := s.UploadOps(userA, clientA, []op.Operation{o})
	require.NoError(t, err)
	require.True(t, second[0].Accepted)
	require.Equal(t, first[0].ServerSeq, second[0].ServerSeq)
}

func TestUploadEqualDifferentClientRejected(t *testing.T) {
	s := newService(t)
	first := taskOp(clientA, "task-1", vclock.VectorClock{clientA: 1})
	_, err := s.UploadOps(userA, clientA, []op.Operation{first})
	require.NoError(t, err)

	collision := taskOp(clientB, "task-1", vclock.VectorClock{clientA: 1})
	results, err := s.UploadOps(userA, clientB, []op.Operation{collision})
	require.NoError(t, err)
	require.False(t, results[0].Accepted)
	require.Equal(t, syncerr.CodeEqualDifferentClient, results[0].ErrorCode)
}

func TestUploadLessIsSuperseded(t *testing.T) {
	s := newService(t)
	first := taskOp(clientA, "task-1", vclock.VectorClock{clientA: 2})
	_, err := s.UploadOps(userA, clientA, []op.Operation{first})
	require.NoError(t, err)

	stale := taskOp(clientA, "task-1", vclock.VectorClock{clientA: 1})
	results, err := s.UploadOps(userA, clientA, []op.Operation{stale})
	require.NoError(t, err)
	require.False(t, results[0].Accepted)
	require.Equal(t, syncerr.CodeConflictSuperseded, results[0].ErrorCode)
	require.Equal(t, vclock.VectorClock{clientA: 2}, results[0].ExistingClock)
}

func TestUploadConcurrentIsRejected(t *testing.T) {
	s := newService(t)
	first := taskOp(clientA, "task-1", vclock.VectorClock{clientA: 1, clientB: 1})
	_, err := s.UploadOps(userA, clientA, []op.Operation{first})
	require.NoError(t, err)

	concurrent := taskOp(clientB, "task-1", vclock.VectorClock{clientB: 2, "client-c": 1})
	results, err := s.UploadOps(userA, clientB, []op.Operation{concurrent})
	require.NoError(t, err)
	require.False(t, results[0].Accepted)
	require.Equal(t, syncerr.CodeConflictConcurrent, results[0].ErrorCode)
}

func TestUploadBatchPartialSuccess(t *testing.T) {
	s := newService(t)
	first := taskOp(clientA, "task-1", vclock.VectorClock{clientA: 2})
	_, err := s.UploadOps(userA, clientA, []op.Operation{first})
	require.NoError(t, err)

	stale := taskOp(clientA, "task-1", vclock.VectorClock{clientA: 1})
	fresh := taskOp(clientA, "task-2", vclock.VectorClock{clientA: 1})
	results, err := s.UploadOps(userA, clientA, []op.Operation{stale, fresh})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.False(t, results[0].Accepted)
	require.True(t, results[1].Accepted)
}

func TestUploadSecondInitialSyncImportRejected(t *testing.T) {
	s := newService(t)
	firstImport := op.Operation{
		Id:         ident.NewOpId(time.Now()),
		ClientId:   clientA,
		OpType:     op.TypeSyncImport,
		Reason:     op.ReasonInitial,
		EntityType: op.EntityAll,
		Payload:    []byte(`{}`),
	}
	results, err := s.UploadOps(userA, clientA, []op.Operation{firstImport})
	require.NoError(t, err)
	require.True(t, results[0].Accepted)

	secondImport := op.Operation{
		Id:         ident.NewOpId(time.Now()),
		ClientId:   clientB,
		OpType:     op.TypeSyncImport,
		Reason:     op.ReasonInitial,
		EntityType: op.EntityAll,
		Payload:    []byte(`{}`),
	}
	results, err = s.UploadOps(userA, clientB, []op.Operation{secondImport})
	require.NoError(t, err)
	require.False(t, results[0].Accepted)
	require.Equal(t, syncerr.CodeSyncImportExists, results[0].ErrorCode)
}

func TestUploadRecoveryImportAlwaysAccepted(t *testing.T) {
	s := newService(t)
	mk := func() op.Operation {
		return op.Operation{
			Id:         ident.NewOpId(time.Now()),
			ClientId:   clientA,
			OpType:     op.TypeSyncImport,
			Reason:     op.ReasonRecovery,
			EntityType: op.EntityAll,
			Payload:    []byte(`{}`),
		}
	}
	_, err := s.UploadOps(userA, clientA, []op.Operation{mk()})
	require.NoError(t, err)
	results, err := s.UploadOps(userA, clientA, []op.Operation{mk()})
	require.NoError(t, err)
	require.True(t, results[0].Accepted)
}

func TestGetOpsSinceReturnsAscendingAndRespectsLimit(t *testing.T) {
	s := newService(t)
	for i := 0; i < 5; i++ {
		o := taskOp(clientA, "task-1", vclock.VectorClock{clientA: vclock.Counter(i + 1)})
		_, err := s.UploadOps(userA, clientA, []op.Operation{o})
		require.NoError(t, err)
	}

	ops, maxSeq, err := s.GetOpsSince(userA, 0, 3)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	require.Equal(t, uint64(1), ops[0].ServerSeq)
	require.Equal(t, uint64(3), ops[2].ServerSeq)
	require.Equal(t, uint64(3), maxSeq)

	rest, maxSeq2, err := s.GetOpsSince(userA, maxSeq, 10)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.Equal(t, uint64(5), maxSeq2)
}

func TestGetUserSyncStateTracksWatermarkAndInitialImport(t *testing.T) {
	s := newService(t)
	state, err := s.GetUserSyncState(userA)
	require.NoError(t, err)
	require.Equal(t, uint64(0), state.MaxServerSeq)
	require.False(t, state.HasInitialImport)

	o := taskOp(clientA, "task-1", vclock.VectorClock{clientA: 1})
	_, err = s.UploadOps(userA, clientA, []op.Operation{o})
	require.NoError(t, err)

	imp := op.Operation{
		Id:         ident.NewOpId(time.Now()),
		ClientId:   clientA,
		OpType:     op.TypeSyncImport,
		Reason:     op.ReasonInitial,
		EntityType: op.EntityAll,
		Payload:    []byte(`{}`),
	}
	_, err = s.UploadOps(userA, clientA, []op.Operation{imp})
	require.NoError(t, err)

	state, err = s.GetUserSyncState(userA)
	require.NoError(t, err)
	require.Equal(t, uint64(2), state.MaxServerSeq)
	require.True(t, state.HasInitialImport)
}

func TestUploadAcceptedClockIsPrunedToMaxVCSize(t *testing.T) {
	s := newService(t)
	vc := make(vclock.VectorClock, server.MaxVCSize+5)
	for i := 0; i < server.MaxVCSize+5; i++ {
		vc[vclock.ClientId(ident.NewOpId(time.Now()))] = vclock.Counter(i + 1)
	}
	vc[clientA] = 1
	o := taskOp(clientA, "task-1", vc)

	results, err := s.UploadOps(userA, clientA, []op.Operation{o})
	require.NoError(t, err)
	require.True(t, results[0].Accepted)

	ops, _, err := s.GetOpsSince(userA, 0, 10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.LessOrEqual(t, len(ops[0].VectorClock), server.MaxVCSize)
	_, keptSelf := ops[0].VectorClock[clientA]
	require.True(t, keptSelf, "pruning must preserve the uploading client's own entry")
}

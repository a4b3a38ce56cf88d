package fileadapter_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yzkee/super-productivity-sub001/internal/ident"
	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
	"github.com/yzkee/super-productivity-sub001/internal/wire/fileadapter"
)

func sampleOp(clientId vclock.ClientId, counter vclock.Counter) op.Operation {
	return op.Operation{
		Id:            ident.NewOpId(time.Now()),
		ClientId:      clientId,
		OpType:        op.TypeUpdate,
		EntityType:    "task",
		EntityId:      "task-1",
		Payload:       []byte(`{"title":"x"}`),
		VectorClock:   vclock.VectorClock{clientId: counter},
		TimestampMs:   time.Now().UnixMilli(),
		SchemaVersion: 1,
	}
}

func TestUploadThenDownloadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.json")
	a := fileadapter.New(path)
	ctx := context.Background()

	o := sampleOp("device-a", 1)
	verdicts, err := a.UploadOps(ctx, "", "device-a", []op.Operation{o})
	require.NoError(t, err)
	require.Len(t, verdicts, 1)
	require.True(t, verdicts[0].Accepted)

	result, err := a.GetOpsSince(ctx, "", 0, 10)
	require.NoError(t, err)
	require.Len(t, result.Ops, 1)
	require.Equal(t, o.Id, result.Ops[0].Id)
	require.Equal(t, uint64(1), result.MaxServerSeq)
}

func TestGetOpsSinceOnlyReturnsNewer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.json")
	a := fileadapter.New(path)
	ctx := context.Background()

	_, err := a.UploadOps(ctx, "", "device-a", []op.Operation{sampleOp("device-a", 1)})
	require.NoError(t, err)
	_, err = a.UploadOps(ctx, "", "device-a", []op.Operation{sampleOp("device-a", 2)})
	require.NoError(t, err)

	result, err := a.GetOpsSince(ctx, "", 1, 10)
	require.NoError(t, err)
	require.Len(t, result.Ops, 1)
	require.Equal(t, uint64(2), result.MaxServerSeq)
}

func TestUploadTrimsToMaxRetainedOps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.json")
	a := fileadapter.New(path)
	ctx := context.Background()

	for i := 0; i < 210; i++ {
		_, err := a.UploadOps(ctx, "", "device-a", []op.Operation{sampleOp("device-a", vclock.Counter(i+1))})
		require.NoError(t, err)
	}

	result, err := a.GetOpsSince(ctx, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, result.Ops, 200)
	require.Equal(t, uint64(210), result.MaxServerSeq)
}

func TestPersistsAcrossAdapterInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.json")
	ctx := context.Background()

	a1 := fileadapter.New(path)
	_, err := a1.UploadOps(ctx, "", "device-a", []op.Operation{sampleOp("device-a", 1)})
	require.NoError(t, err)

	a2 := fileadapter.New(path)
	result, err := a2.GetOpsSince(ctx, "", 0, 10)
	require.NoError(t, err)
	require.Len(t, result.Ops, 1)
}

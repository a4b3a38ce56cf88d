package wire_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/yzkee/super-productivity-sub001/internal/config"
	"github.com/yzkee/super-productivity-sub001/internal/ident"
	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/server"
	"github.com/yzkee/super-productivity-sub001/internal/store/memstore"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
	"github.com/yzkee/super-productivity-sub001/internal/wire"
)

func testOp(clientId vclock.ClientId, counter vclock.Counter) op.Operation {
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

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	svc := server.New(memstore.New(), zerolog.Nop())
	auth := func(r *http.Request) (string, bool) {
		if r.Header.Get("Authorization") == "Bearer test-key" {
			return "user-a", true
		}
		return "", false
	}
	handler := wire.NewHandler(svc, auth, zerolog.Nop())
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts, "user-a"
}

func TestRESTClientUploadAndDownloadRoundTrip(t *testing.T) {
	ts, userId := newTestServer(t)
	client := wire.NewRESTClient(config.SyncConfig{Backend: config.BackendServer, BaseURL: ts.URL, APIKey: "test-key"}, zerolog.Nop())
	ctx := context.Background()

	o := testOp("device-a", 1)
	verdicts, err := client.UploadOps(ctx, userId, "device-a", []op.Operation{o})
	require.NoError(t, err)
	require.Len(t, verdicts, 1)
	require.True(t, verdicts[0].Accepted)

	result, err := client.GetOpsSince(ctx, userId, 0, 10)
	require.NoError(t, err)
	require.Len(t, result.Ops, 1)
	require.Equal(t, o.Id, result.Ops[0].Id)
	require.Equal(t, uint64(1), result.MaxServerSeq)
}

func TestRESTClientSurfacesConflictRejection(t *testing.T) {
	ts, userId := newTestServer(t)
	client := wire.NewRESTClient(config.SyncConfig{Backend: config.BackendServer, BaseURL: ts.URL, APIKey: "test-key"}, zerolog.Nop())
	ctx := context.Background()

	first := testOp("device-a", 2)
	_, err := client.UploadOps(ctx, userId, "device-a", []op.Operation{first})
	require.NoError(t, err)

	stale := testOp("device-a", 1)
	verdicts, err := client.UploadOps(ctx, userId, "device-a", []op.Operation{stale})
	require.NoError(t, err)
	require.False(t, verdicts[0].Accepted)
	require.Equal(t, vclock.VectorClock{"device-a": 2}, verdicts[0].ExistingClock)
}

func TestRESTClientRejectsInvalidCredential(t *testing.T) {
	ts, userId := newTestServer(t)
	client := wire.NewRESTClient(config.SyncConfig{Backend: config.BackendServer, BaseURL: ts.URL, APIKey: "wrong-key"}, zerolog.Nop())
	ctx := context.Background()

	_, err := client.UploadOps(ctx, userId, "device-a", []op.Operation{testOp("device-a", 1)})
	require.Error(t, err)
}

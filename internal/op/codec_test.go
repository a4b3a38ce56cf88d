package op

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/yzkee/super-productivity-sub001/internal/ident"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
)

func sampleOp() Operation {
	return Operation{
		Id:         ident.OpId("01HZY000000000000000000000"),
		ClientId:   vclock.ClientId("device-a"),
		OpType:     TypeUpdate,
		EntityType: "task",
		EntityId:   "task-123",
		Payload:    []byte(`{"title":"buy milk"}`),
		VectorClock: vclock.VectorClock{
			"device-a": 4,
			"device-b": 1,
		},
		TimestampMs:   1700000000000,
		SchemaVersion: 3,
	}
}

func TestCompactRoundTrip(t *testing.T) {
	want := sampleOp()
	b, err := MarshalCompact(want)
	require.NoError(t, err)
	got, err := UnmarshalCompact(b)
	require.NoError(t, err)
	require.True(t, cmp.Equal(want, got), cmp.Diff(want, got))
}

func TestWireRoundTrip(t *testing.T) {
	want := sampleOp()
	b, err := MarshalWireJSON(want)
	require.NoError(t, err)
	got, err := UnmarshalWireJSON(b)
	require.NoError(t, err)
	require.True(t, cmp.Equal(want, got), cmp.Diff(want, got))
}

func TestRoundTripPreservesFullStateReasonAndEncryptedFlag(t *testing.T) {
	want := sampleOp()
	want.OpType = TypeSyncImport
	want.Reason = ReasonRecovery
	want.Encrypted = true
	want.EntityType = EntityAll
	want.EntityId = ""

	b, err := MarshalCompact(want)
	require.NoError(t, err)
	got, err := UnmarshalCompact(b)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestRoundTripPreservesEmptyVectorClock(t *testing.T) {
	want := sampleOp()
	want.VectorClock = vclock.VectorClock{}

	b, err := MarshalWireJSON(want)
	require.NoError(t, err)
	got, err := UnmarshalWireJSON(b)
	require.NoError(t, err)
	require.Empty(t, got.VectorClock)
}

package importfilter_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yzkee/super-productivity-sub001/internal/ident"
	"github.com/yzkee/super-productivity-sub001/internal/importfilter"
	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
)

func TestKeepNoFullStateOp(t *testing.T) {
	incoming := op.Operation{Id: ident.OpId("01A")}
	require.True(t, importfilter.Keep(incoming, nil))
}

func TestKeepByIdOrdering(t *testing.T) {
	fullState := &op.Operation{Id: ident.OpId("01M"), ClientId: "a", VectorClock: vclock.VectorClock{"a": 10}}

	after := op.Operation{Id: ident.OpId("01Z"), ClientId: "b", VectorClock: vclock.VectorClock{"b": 1}}
	require.True(t, importfilter.Keep(after, fullState), "authored after the import id must survive")

	before := op.Operation{Id: ident.OpId("01A"), ClientId: "b", VectorClock: vclock.VectorClock{"b": 1}}
	require.False(t, importfilter.Keep(before, fullState), "authored before with no other evidence is discarded")
}

func TestKeepBySameClientDominance(t *testing.T) {
	fullState := &op.Operation{
		Id:          ident.OpId("01M"),
		ClientId:    "a",
		VectorClock: vclock.VectorClock{"a": 10, "b": 3},
	}

	// Pruned down to a single entry, but it's the same client with a
	// greater counter, so rule 3 must still keep it even though rule 4
	// (full dominance) cannot be evaluated from this evidence alone.
	postImport := op.Operation{
		Id:          ident.OpId("01A"), // sorts before fullState.Id
		ClientId:    "a",
		VectorClock: vclock.VectorClock{"a": 11},
	}
	require.True(t, importfilter.Keep(postImport, fullState))

	// Same client, counter not greater: rule 3 fails, and the clock
	// doesn't dominate either.
	stale := op.Operation{
		Id:          ident.OpId("01A"),
		ClientId:    "a",
		VectorClock: vclock.VectorClock{"a": 9},
	}
	require.False(t, importfilter.Keep(stale, fullState))
}

func TestKeepByVectorClockDominance(t *testing.T) {
	fullState := &op.Operation{
		Id:          ident.OpId("01M"),
		ClientId:    "a",
		VectorClock: vclock.VectorClock{"a": 5, "b": 2},
	}

	dominant := op.Operation{
		Id:          ident.OpId("01A"), // before fullState.Id
		ClientId:    "c",               // different client
		VectorClock: vclock.VectorClock{"a": 5, "b": 2, "c": 1},
	}
	require.True(t, importfilter.Keep(dominant, fullState))

	concurrent := op.Operation{
		Id:          ident.OpId("01A"),
		ClientId:    "c",
		VectorClock: vclock.VectorClock{"a": 6, "b": 0},
	}
	require.False(t, importfilter.Keep(concurrent, fullState))
}

func TestFilterPartitionsBatch(t *testing.T) {
	fullState := &op.Operation{
		Id:          ident.OpId("01M"),
		ClientId:    "a",
		VectorClock: vclock.VectorClock{"a": 5},
	}
	batch := []op.Operation{
		{Id: ident.OpId("01Z"), ClientId: "b"},                                              // kept: id after import
		{Id: ident.OpId("00A"), ClientId: "b", VectorClock: vclock.VectorClock{"b": 1}},      // discarded
	}
	res := importfilter.Filter(batch, fullState)
	require.Len(t, res.Kept, 1)
	require.Len(t, res.Discarded, 1)
	require.Equal(t, batch[0].Id, res.Kept[0].Id)
	require.Equal(t, batch[1].Id, res.Discarded[0].Id)
}

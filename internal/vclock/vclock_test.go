package vclock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareBasic(t *testing.T) {
	a := VectorClock{"d1": 2, "d2": 3}
	b := VectorClock{"d1": 2, "d2": 3}
	require.Equal(t, Equal, Compare(a, b))

	c := VectorClock{"d1": 2, "d2": 4}
	require.Equal(t, Less, Compare(a, c))
	require.Equal(t, Greater, Compare(c, a))

	d := VectorClock{"d1": 3, "d2": 2}
	require.Equal(t, Concurrent, Compare(a, d))
}

func TestCompareMissingKeysReadAsZero(t *testing.T) {
	a := VectorClock{"d1": 1}
	b := VectorClock{"d1": 1, "d2": 1}
	require.Equal(t, Less, Compare(a, b))
}

func TestIncrementMonotone(t *testing.T) {
	vc := VectorClock{"d1": 5, "d2": 9}
	next := Increment(vc, "d1")
	require.Greater(t, next["d1"], vc["d1"])
	for k, v := range vc {
		require.GreaterOrEqual(t, next[k], v)
	}
	// original untouched
	require.Equal(t, Counter(5), vc["d1"])
}

func TestMergeIsPointwiseMax(t *testing.T) {
	a := VectorClock{"d1": 5, "d2": 1}
	b := VectorClock{"d1": 2, "d3": 7}
	m := Merge(a, b)
	require.Equal(t, VectorClock{"d1": 5, "d2": 1, "d3": 7}, m)
}

func TestPruneNoopUnderBound(t *testing.T) {
	vc := make(VectorClock)
	for i := 0; i < 20; i++ {
		vc[ClientId(rune('a'+i))] = Counter(i)
	}
	require.Len(t, vc, 20)
	pruned := Prune(vc, 20, "")
	require.Equal(t, vc, pruned)
}

func TestPruneAtBoundaryPlusOne(t *testing.T) {
	vc := make(VectorClock)
	for i := 0; i < 21; i++ {
		vc[ClientId(rune('a'+i))] = Counter(i)
	}
	pruned := Prune(vc, 20, "")
	require.Len(t, pruned, 20)
	// the smallest counter entry ("a" -> 0) must have been dropped
	_, ok := pruned[ClientId('a')]
	require.False(t, ok)
}

func TestPrunePreservesUploader(t *testing.T) {
	vc := make(VectorClock)
	for i := 0; i < 25; i++ {
		vc[ClientId(rune('a'+i))] = Counter(i)
	}
	// "a" has the smallest counter and would normally be evicted first.
	pruned := Prune(vc, 20, ClientId('a'))
	require.Len(t, pruned, 20)
	v, ok := pruned[ClientId('a')]
	require.True(t, ok)
	require.Equal(t, Counter(0), v)
}

func TestPruneIsIdempotent(t *testing.T) {
	vc := make(VectorClock)
	for i := 0; i < 30; i++ {
		vc[ClientId(rune('a'+i))] = Counter(i)
	}
	once := Prune(vc, 20, ClientId('z'))
	twice := Prune(once, 20, ClientId('z'))
	require.Equal(t, once, twice)
}

func TestCompareBeforePruneChangesOutcome(t *testing.T) {
	// Demonstrates the documented failure mode: pruning before comparing can
	// turn a true GREATER into a spurious CONCURRENT.
	full := VectorClock{"a": 5, "b": 3}
	stored := VectorClock{"a": 4, "b": 3}

	require.Equal(t, Greater, Compare(full, stored))

	// Pruning "full" down to its single largest entry before comparing drops
	// the "b" evidence and manufactures concurrency out of true dominance.
	prunedFull := Prune(full, 1, "")
	require.Equal(t, Concurrent, Compare(prunedFull, stored))
}

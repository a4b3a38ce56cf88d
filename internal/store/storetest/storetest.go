// Package storetest exercises any store.Store implementation against a
// common contract: Put/Get/Scan/Snapshot/Transaction behavior.
package storetest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yzkee/super-productivity-sub001/internal/store"
)

// RunBasic runs a basic suite of Put/Get/Scan/Snapshot/Transaction checks
// against st. Callers own st's lifecycle (Close).
func RunBasic(t *testing.T, st store.Store) {
	t.Helper()

	for i := 0; i < 10; i++ {
		key := []byte(fmt.Sprintf("k%02d", i))
		require.NoError(t, st.Put(key, []byte(fmt.Sprintf("v%02d", i))))
	}

	v, err := st.Get([]byte("k05"))
	require.NoError(t, err)
	require.Equal(t, []byte("v05"), v)

	_, err = st.Get([]byte("missing"))
	require.ErrorIs(t, err, store.ErrUnknownKey)

	// Scan over [k03, k07) should yield k03..k06.
	s := st.Scan([]byte("k03"), []byte("k07"))
	var got []string
	for s.Advance() {
		got = append(got, string(s.Key()))
	}
	require.NoError(t, s.Err())
	require.Equal(t, []string{"k03", "k04", "k05", "k06"}, got)

	// Snapshot is a frozen view: writes after the snapshot don't appear in it.
	snap := st.NewSnapshot()
	require.NoError(t, st.Put([]byte("k05"), []byte("mutated")))
	v, err = snap.Get([]byte("k05"))
	require.NoError(t, err)
	require.Equal(t, []byte("v05"), v)
	require.NoError(t, snap.Close())

	// Transaction: writes are invisible until Commit.
	tx := st.NewTransaction()
	require.NoError(t, tx.Put([]byte("k99"), []byte("new")))
	_, err = st.Get([]byte("k99"))
	require.ErrorIs(t, err, store.ErrUnknownKey)
	require.NoError(t, tx.Commit())
	v, err = st.Get([]byte("k99"))
	require.NoError(t, err)
	require.Equal(t, []byte("new"), v)

	// Abort discards all writes.
	tx2 := st.NewTransaction()
	require.NoError(t, tx2.Delete([]byte("k99")))
	require.NoError(t, tx2.Abort())
	v, err = st.Get([]byte("k99"))
	require.NoError(t, err)
	require.Equal(t, []byte("new"), v)
}

// RunPrefixRange checks store.PrefixRange against a populated store.
func RunPrefixRange(t *testing.T, st store.Store) {
	t.Helper()
	require.NoError(t, st.Put([]byte("ops:0001"), []byte("a")))
	require.NoError(t, st.Put([]byte("ops:0002"), []byte("b")))
	require.NoError(t, st.Put([]byte("other:0001"), []byte("c")))

	start, limit := store.PrefixRange([]byte("ops:"))
	s := st.Scan(start, limit)
	var got []string
	for s.Advance() {
		got = append(got, string(s.Key()))
	}
	require.Equal(t, []string{"ops:0001", "ops:0002"}, got)
}

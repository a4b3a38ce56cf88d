package boltstore_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yzkee/super-productivity-sub001/internal/store/boltstore"
	"github.com/yzkee/super-productivity-sub001/internal/store/storetest"
)

func openTemp(t *testing.T) *boltstore.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sup_ops.db")
	db, err := boltstore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBoltstoreBasic(t *testing.T) {
	storetest.RunBasic(t, openTemp(t))
}

func TestBoltstorePrefixRange(t *testing.T) {
	storetest.RunPrefixRange(t, openTemp(t))
}

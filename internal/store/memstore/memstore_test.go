package memstore_test

import (
	"testing"

	"github.com/yzkee/super-productivity-sub001/internal/store/memstore"
	"github.com/yzkee/super-productivity-sub001/internal/store/storetest"
)

func TestMemstoreBasic(t *testing.T) {
	st := memstore.New()
	defer st.Close()
	storetest.RunBasic(t, st)
}

func TestMemstorePrefixRange(t *testing.T) {
	st := memstore.New()
	defer st.Close()
	storetest.RunPrefixRange(t, st)
}

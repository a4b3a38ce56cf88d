package server

import (
	"encoding/binary"

	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/store"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
)

func encodeSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func decodeSeq(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// readMaxSeqLocked reads the user's current max serverSeq, or 0 if the user
// has never had an op accepted.
func readMaxSeqLocked(r store.StoreReader, userId string) (uint64, error) {
	b, err := r.Get(maxSeqKey(userId))
	if err == store.ErrUnknownKey {
		return 0, nil
	}
	if err != nil {
		return 0, syncerr.Server.Wrap(err)
	}
	return decodeSeq(b), nil
}

// lookupOpIDSeq reports the serverSeq an already-accepted op id was assigned,
// for idempotent-retry detection.
func lookupOpIDSeq(r store.StoreReader, userId, opId string) (uint64, bool, error) {
	b, err := r.Get(opIDKey(userId, opId))
	if err == store.ErrUnknownKey {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, syncerr.Server.Wrap(err)
	}
	return decodeSeq(b), true, nil
}

// hasInitialImport reports whether a reason=initial SYNC_IMPORT has already
// landed for userId; exactly one is allowed per account.
func hasInitialImport(r store.StoreReader, userId string) (bool, error) {
	_, err := r.Get(initialImportKey(userId))
	if err == store.ErrUnknownKey {
		return false, nil
	}
	if err != nil {
		return false, syncerr.Server.Wrap(err)
	}
	return true, nil
}

// lookupEntity returns the latest stored op for (userId, entityType, entityId),
// if one exists.
func lookupEntity(r store.StoreReader, userId, entityType, entityId string) (*op.StoredOperation, bool, error) {
	b, err := r.Get(entityKey(userId, entityType, entityId))
	if err == store.ErrUnknownKey {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, syncerr.Server.Wrap(err)
	}
	seq := decodeSeq(b)
	recBytes, err := r.Get(opKey(userId, seq))
	if err != nil {
		return nil, false, syncerr.Server.Wrap(err)
	}
	rec, err := decodeStored(recBytes)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

package server

import (
	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/store"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
)

// GetOpsSince returns every op accepted for userId with serverSeq >
// sinceSeq, in ascending seq order, capped at limit entries, together with
// the serverSeq of the last op returned (0 when none is returned). The
// client passes that seq as sinceSeq to fetch the next page.
func (s *Service) GetOpsSince(userId string, sinceSeq uint64, limit int) ([]op.StoredOperation, uint64, error) {
	start := opKey(userId, sinceSeq+1)
	_, end := store.PrefixRange([]byte(opPrefix(userId)))

	strm := s.kv.Scan(start, end)
	defer strm.Cancel()

	var out []op.StoredOperation
	var maxSeq uint64
	for strm.Advance() {
		if limit > 0 && len(out) >= limit {
			break
		}
		rec, err := decodeStored(strm.Value())
		if err != nil {
			strm.Cancel()
			return nil, 0, err
		}
		out = append(out, *rec)
		maxSeq = rec.ServerSeq
	}
	if err := strm.Err(); err != nil {
		return nil, 0, syncerr.Server.Wrap(err)
	}
	return out, maxSeq, nil
}

// UserSyncState is the server's view of one account's op stream, returned
// by GetUserSyncState so a client can decide whether it needs a full
// re-sync.
type UserSyncState struct {
	MaxServerSeq     uint64
	HasInitialImport bool
}

// GetUserSyncState reports the current watermark for userId.
func (s *Service) GetUserSyncState(userId string) (UserSyncState, error) {
	maxSeq, err := readMaxSeqLocked(s.kv, userId)
	if err != nil {
		return UserSyncState{}, err
	}
	has, err := hasInitialImport(s.kv, userId)
	if err != nil {
		return UserSyncState{}, err
	}
	return UserSyncState{MaxServerSeq: maxSeq, HasInitialImport: has}, nil
}

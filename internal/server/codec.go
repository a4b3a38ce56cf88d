package server

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type storedRecord struct {
	Op           []byte `json:"op"` // op.MarshalCompact output
	ServerSeq    uint64 `json:"ss"`
	ReceivedAtMs int64  `json:"rs"`
	UserId       string `json:"u"`
}

func encodeStored(s op.StoredOperation) ([]byte, error) {
	opBytes, err := op.MarshalCompact(s.Operation)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(storedRecord{
		Op:           opBytes,
		ServerSeq:    s.ServerSeq,
		ReceivedAtMs: s.ReceivedAtMs,
		UserId:       s.UserId,
	})
	if err != nil {
		return nil, syncerr.Server.Wrap(err)
	}
	return b, nil
}

func decodeStored(b []byte) (*op.StoredOperation, error) {
	var rec storedRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, syncerr.Server.Wrap(err)
	}
	o, err := op.UnmarshalCompact(rec.Op)
	if err != nil {
		return nil, err
	}
	return &op.StoredOperation{
		Operation:    o,
		ServerSeq:    rec.ServerSeq,
		ReceivedAtMs: rec.ReceivedAtMs,
		UserId:       rec.UserId,
	}, nil
}

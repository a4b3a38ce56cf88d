// Codec round-trips an Operation between its full representation (used
// in-memory and on the wire) and a compact representation with short field
// names (used in durable storage).
//
// The round-trip invariant: decode(encode(op)) == op. The codec is a
// renaming + shape-change only; it must not lose or coerce any causality
// field or payload byte.
package op

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/yzkee/super-productivity-sub001/internal/ident"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WireOperation is the full, self-describing representation used in-memory
// and on the wire.
type WireOperation struct {
	Id            string            `json:"id"`
	ClientId      string            `json:"clientId"`
	OpType        string            `json:"opType"`
	EntityType    string            `json:"entityType"`
	EntityId      string            `json:"entityId,omitempty"`
	Payload       []byte            `json:"payload"`
	VectorClock   map[string]uint64 `json:"vectorClock"`
	TimestampMs   int64             `json:"timestamp"`
	SchemaVersion int               `json:"schemaVersion"`
	Reason        string            `json:"reason,omitempty"`
	Encrypted     bool              `json:"encrypted,omitempty"`
}

// compactOperation is the short-field-name representation used on durable
// storage, where every byte saved compounds across an unbounded op log.
type compactOperation struct {
	I  string            `json:"i"`
	C  string            `json:"c"`
	T  string            `json:"t"`
	ET string            `json:"et"`
	EI string            `json:"ei,omitempty"`
	P  []byte            `json:"p"`
	VC map[string]uint64 `json:"vc"`
	TS int64             `json:"ts"`
	SV int               `json:"sv"`
	RS string            `json:"rs,omitempty"`
	EN bool              `json:"en,omitempty"`
}

// EncodeWire converts an Operation to its full wire representation.
func EncodeWire(o Operation) WireOperation {
	return WireOperation{
		Id:            string(o.Id),
		ClientId:      string(o.ClientId),
		OpType:        string(o.OpType),
		EntityType:    string(o.EntityType),
		EntityId:      o.EntityId,
		Payload:       o.Payload,
		VectorClock:   vcToMap(o.VectorClock),
		TimestampMs:   o.TimestampMs,
		SchemaVersion: o.SchemaVersion,
		Reason:        string(o.Reason),
		Encrypted:     o.Encrypted,
	}
}

// DecodeWire converts a full wire representation back to an Operation.
func DecodeWire(w WireOperation) Operation {
	return Operation{
		Id:            ident.OpId(w.Id),
		ClientId:      vclock.ClientId(w.ClientId),
		OpType:        Type(w.OpType),
		EntityType:    EntityType(w.EntityType),
		EntityId:      w.EntityId,
		Payload:       w.Payload,
		VectorClock:   mapToVC(w.VectorClock),
		TimestampMs:   w.TimestampMs,
		SchemaVersion: w.SchemaVersion,
		Reason:        ImportReason(w.Reason),
		Encrypted:     w.Encrypted,
	}
}

// MarshalWireJSON encodes op as a full wire-representation JSON document.
func MarshalWireJSON(o Operation) ([]byte, error) {
	b, err := json.Marshal(EncodeWire(o))
	if err != nil {
		return nil, syncerr.Codec.Wrap(err)
	}
	return b, nil
}

// UnmarshalWireJSON decodes a full wire-representation JSON document.
func UnmarshalWireJSON(b []byte) (Operation, error) {
	var w WireOperation
	if err := json.Unmarshal(b, &w); err != nil {
		return Operation{}, syncerr.Codec.Wrap(err)
	}
	return DecodeWire(w), nil
}

// MarshalCompact encodes op into the compact, durable-storage representation.
func MarshalCompact(o Operation) ([]byte, error) {
	c := compactOperation{
		I:  string(o.Id),
		C:  string(o.ClientId),
		T:  string(o.OpType),
		ET: string(o.EntityType),
		EI: o.EntityId,
		P:  o.Payload,
		VC: vcToMap(o.VectorClock),
		TS: o.TimestampMs,
		SV: o.SchemaVersion,
		RS: string(o.Reason),
		EN: o.Encrypted,
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, syncerr.Codec.Wrap(err)
	}
	return b, nil
}

// UnmarshalCompact decodes the compact, durable-storage representation back
// into an Operation. decode(encode(op)) == op for every op.
func UnmarshalCompact(b []byte) (Operation, error) {
	var c compactOperation
	if err := json.Unmarshal(b, &c); err != nil {
		return Operation{}, syncerr.Codec.Wrap(err)
	}
	return Operation{
		Id:            ident.OpId(c.I),
		ClientId:      vclock.ClientId(c.C),
		OpType:        Type(c.T),
		EntityType:    EntityType(c.ET),
		EntityId:      c.EI,
		Payload:       c.P,
		VectorClock:   mapToVC(c.VC),
		TimestampMs:   c.TS,
		SchemaVersion: c.SV,
		Reason:        ImportReason(c.RS),
		Encrypted:     c.EN,
	}, nil
}

func vcToMap(vc vclock.VectorClock) map[string]uint64 {
	if len(vc) == 0 {
		return map[string]uint64{}
	}
	out := make(map[string]uint64, len(vc))
	for k, v := range vc {
		out[string(k)] = uint64(v)
	}
	return out
}

func mapToVC(m map[string]uint64) vclock.VectorClock {
	out := make(vclock.VectorClock, len(m))
	for k, v := range m {
		out[vclock.ClientId(k)] = vclock.Counter(v)
	}
	return out
}

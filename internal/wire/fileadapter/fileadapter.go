// Package fileadapter implements an alternate, WebDAV-style file-based
// back end: a single JSON document holding current state, the most recent
// N=200 operations, and the current vector clock, with a monotone
// syncVersion acting as an optimistic-concurrency CAS token.
//
// It is reached through the same clientsync.Transport interface as the
// primary REST back end, backed by plain files instead of a database.
package fileadapter

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/yzkee/super-productivity-sub001/internal/clientsync"
	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxRetainedOps bounds the document's recentOps list to the most recent
// N=200 operations.
const maxRetainedOps = 200

// maxCASAttempts bounds the optimistic-concurrency retry loop before giving
// up and surfacing UNAVAILABLE; a cooperating writer retries far less than
// this in practice, so repeated failure means a genuinely stuck peer, not a
// transient race.
const maxCASAttempts = 5

type opRecord struct {
	Op  op.WireOperation `json:"op"`
	Seq uint64           `json:"seq"`
}

// document is the exact shape of the single JSON file this adapter persists.
type document struct {
	State       json.RawMessage   `json:"state"`
	RecentOps   []opRecord        `json:"recentOps"`
	VectorClock map[string]uint64 `json:"vectorClock"`
	SyncVersion uint64            `json:"syncVersion"`
}

// Adapter implements clientsync.Transport by reading and rewriting one
// JSON file at Path. userId is accepted for interface parity with the
// server back end but ignored; the file adapter is single-account by
// construction (one file, one owner).
type Adapter struct {
	Path string

	mu sync.Mutex
}

var _ clientsync.Transport = (*Adapter)(nil)

// New returns an Adapter backed by the JSON document at path. The document
// is created empty on first write if it does not yet exist.
func New(path string) *Adapter {
	return &Adapter{Path: path}
}

func (a *Adapter) UploadOps(_ context.Context, _ string, _ vclock.ClientId, ops []op.Operation) ([]clientsync.UploadVerdict, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(ops) == 0 {
		return nil, nil
	}

	var verdicts []clientsync.UploadVerdict
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		doc, version, err := a.readLocked()
		if err != nil {
			return nil, err
		}

		merged := vcFromWire(doc.VectorClock)
		seq := doc.SyncVersion
		verdicts = verdicts[:0]
		for _, o := range ops {
			seq++
			doc.RecentOps = append(doc.RecentOps, opRecord{Op: op.EncodeWire(o), Seq: seq})
			merged = vclock.Merge(merged, o.VectorClock)
			verdicts = append(verdicts, clientsync.UploadVerdict{OpId: string(o.Id), Accepted: true})
		}
		if len(doc.RecentOps) > maxRetainedOps {
			doc.RecentOps = doc.RecentOps[len(doc.RecentOps)-maxRetainedOps:]
		}
		doc.VectorClock = vcToWire(merged)
		doc.SyncVersion = seq

		if err := a.writeLocked(doc, version); err == errCASConflict {
			continue // another writer advanced syncVersion first; retry with the fresh document
		} else if err != nil {
			return nil, err
		}
		return append([]clientsync.UploadVerdict(nil), verdicts...), nil
	}
	return nil, syncerr.NewWireError(syncerr.CodeUnavailable, "file adapter: too many concurrent writers")
}

func (a *Adapter) GetOpsSince(_ context.Context, _ string, sinceSeq uint64, limit int) (clientsync.DownloadResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	doc, _, err := a.readLocked()
	if err != nil {
		return clientsync.DownloadResult{}, err
	}

	var out []op.Operation
	for _, rec := range doc.RecentOps {
		if rec.Seq <= sinceSeq {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, op.DecodeWire(rec.Op))
	}
	return clientsync.DownloadResult{Ops: out, MaxServerSeq: doc.SyncVersion}, nil
}

// readLocked loads the document from disk, returning an empty document and
// version 0 if the file does not yet exist.
func (a *Adapter) readLocked() (document, uint64, error) {
	b, err := os.ReadFile(a.Path)
	if os.IsNotExist(err) {
		return document{VectorClock: map[string]uint64{}}, 0, nil
	}
	if err != nil {
		return document{}, 0, syncerr.Wire.Wrap(err)
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return document{}, 0, syncerr.Wire.Wrap(err)
	}
	return doc, doc.SyncVersion, nil
}

var errCASConflict = syncerr.Wire.New("file adapter: syncVersion changed since read")

// writeLocked persists doc atomically (write-temp, then rename), first
// re-checking that no concurrent writer has advanced syncVersion past
// expectedVersion since readLocked observed it.
func (a *Adapter) writeLocked(doc document, expectedVersion uint64) error {
	_, curVersion, err := a.readLocked()
	if err != nil {
		return err
	}
	if curVersion != expectedVersion {
		return errCASConflict
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return syncerr.Wire.Wrap(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(a.Path), ".fileadapter-*.tmp")
	if err != nil {
		return syncerr.Wire.Wrap(err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return syncerr.Wire.Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return syncerr.Wire.Wrap(err)
	}
	if err := os.Rename(tmpPath, a.Path); err != nil {
		os.Remove(tmpPath)
		return syncerr.Wire.Wrap(err)
	}
	return nil
}

func vcToWire(vc vclock.VectorClock) map[string]uint64 {
	out := make(map[string]uint64, len(vc))
	for k, v := range vc {
		out[string(k)] = uint64(v)
	}
	return out
}

func vcFromWire(m map[string]uint64) vclock.VectorClock {
	out := make(vclock.VectorClock, len(m))
	for k, v := range m {
		out[vclock.ClientId(k)] = vclock.Counter(v)
	}
	return out
}

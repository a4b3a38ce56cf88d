package oplog

import "fmt"

// Key layout inside the single store.Store bucket: logical object stores
// packed into one underlying KV keyspace via string-prefixed keys (ops,
// state_cache, import_backup, vector_clock, archive_young, archive_old).
const (
	prefixOp           = "op:"   // op:<seq zero-padded> -> compact LogEntry
	prefixOpID         = "opid:" // opid:<opId> -> seq, for uniqueness + applied-id lookups
	keySeqCounter      = "meta:seq"
	keyVectorClock     = "vector_clock:singleton"
	keyStateCache      = "state_cache:current"
	keyStateBackup     = "state_cache:backup"
	keyImportBackup    = "import_backup:singleton"
	keyCompactCounter  = "meta:compaction_counter"
	prefixArchiveYoung = "archive_young:"
	prefixArchiveOld   = "archive_old:"
)

// seqKey formats a log entry key such that lexicographic byte order matches
// numeric seq order (fixed-width, zero-padded).
func seqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOp, seq))
}

func opIDKey(id string) []byte {
	return []byte(prefixOpID + id)
}

func archiveKey(prefix string, key string) []byte {
	return []byte(prefix + key)
}

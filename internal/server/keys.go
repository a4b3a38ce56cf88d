package server

import "fmt"

// Key layout, namespaced per user so one store.Store instance can back
// every account's authority:
//
//	u/{userId}/op/{serverSeq:020d}        -> encoded StoredOperation
//	u/{userId}/opid/{opId}                -> serverSeq (idempotent-retry index)
//	u/{userId}/entity/{entityType}/{id}   -> serverSeq of latest stored op for that entity
//	u/{userId}/maxseq                     -> current max serverSeq
//	u/{userId}/hasInitialImport           -> byte 0x01 once a reason=initial SYNC_IMPORT lands
const (
	prefixOp     = "u/%s/op/"
	prefixOpID   = "u/%s/opid/"
	prefixEntity = "u/%s/entity/"
	keyMaxSeq    = "u/%s/maxseq"
	keyInitial   = "u/%s/hasInitialImport"
)

func opKey(userId string, seq uint64) []byte {
	return []byte(fmt.Sprintf(prefixOp+"%020d", userId, seq))
}

func opPrefix(userId string) string {
	return fmt.Sprintf(prefixOp, userId)
}

func opIDKey(userId, opId string) []byte {
	return []byte(fmt.Sprintf(prefixOpID+"%s", userId, opId))
}

func entityKey(userId string, entityType, entityId string) []byte {
	return []byte(fmt.Sprintf(prefixEntity+"%s/%s", userId, entityType, entityId))
}

func maxSeqKey(userId string) []byte {
	return []byte(fmt.Sprintf(keyMaxSeq, userId))
}

func initialImportKey(userId string) []byte {
	return []byte(fmt.Sprintf(keyInitial, userId))
}

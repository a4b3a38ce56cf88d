package store

// PrefixRange returns the [start, limit) byte range that scans every key
// with the given prefix.
func PrefixRange(prefix []byte) (start, limit []byte) {
	start = append([]byte(nil), prefix...)
	limit = append([]byte(nil), prefix...)
	// Increment the last byte that isn't already 0xff to get an exclusive
	// upper bound; if the whole prefix is 0xff bytes, there is no finite
	// upper bound short of scanning to the end of the keyspace.
	for i := len(limit) - 1; i >= 0; i-- {
		if limit[i] != 0xff {
			limit[i]++
			return start, limit[:i+1]
		}
	}
	return start, nil
}

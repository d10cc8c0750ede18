package utils

import "hash/fnv"

// Pick maps key onto [0, n) stably, so the same key always lands on the
// same index. n must be positive.
func Pick(key string, salt string, n int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(salt))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key))
	return int(h.Sum64() % uint64(n))
}

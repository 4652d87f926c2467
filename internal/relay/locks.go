package relay

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// sessionLocks serializes read-modify-write cycles per session key.
// Striping bounds the lock table regardless of how many session keys
// the service has ever seen; two sessions sharing a stripe contend but
// stay correct.
type sessionLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *sessionLocks) lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &l.stripes[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

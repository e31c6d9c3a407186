package ingest

import (
	"hash/fnv"
	"sync"
)

// keyLocks a fixed set of mutex stripes; a key always maps to the same stripe
type keyLocks struct {
	stripes []sync.Mutex
}

func newKeyLocks(n int) *keyLocks {
	if n < 1 {
		n = 1
	}
	return &keyLocks{stripes: make([]sync.Mutex, n)}
}

func (l *keyLocks) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.stripes[h.Sum32()%uint32(len(l.stripes))]
}

// lock acquires the stripe of key and returns its unlock func
func (l *keyLocks) lock(key string) func() {
	m := l.stripe(key)
	m.Lock()
	return m.Unlock
}

package aggregate

import (
	"hash/fnv"
	"sync"
)

// keyLock serializes read-modify-write cycles per entity key. Striping keeps
// the lock table bounded; distinct keys sharing a stripe only contend, they
// never corrupt each other.
type keyLock struct {
	stripes []sync.Mutex
}

func newKeyLock(n int) *keyLock {
	if n <= 0 {
		n = 64
	}
	return &keyLock{stripes: make([]sync.Mutex, n)}
}

func (kl *keyLock) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &kl.stripes[int(h.Sum32())%len(kl.stripes)]
	mu.Lock()
	return mu
}

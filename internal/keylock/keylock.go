package keylock

import (
	"hash/fnv"
	"sync"
)

// KeyLock provides mutual exclusion per string key via a fixed set of
// mutex stripes, so unrelated keys proceed concurrently without a lock
// per key ever having to be reclaimed.
//
// A holder must not lock a second key from the same KeyLock: two keys can
// share a stripe.
type KeyLock struct {
	stripes []sync.Mutex
}

// New builds a KeyLock with n stripes (minimum 1).
func New(n int) *KeyLock {
	if n < 1 {
		n = 1
	}
	return &KeyLock{stripes: make([]sync.Mutex, n)}
}

func (k *KeyLock) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &k.stripes[h.Sum32()%uint32(len(k.stripes))]
}

// Lock acquires the stripe for key.
func (k *KeyLock) Lock(key string) {
	k.stripe(key).Lock()
}

// Unlock releases the stripe for key.
func (k *KeyLock) Unlock(key string) {
	k.stripe(key).Unlock()
}

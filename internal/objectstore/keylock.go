package objectstore

import (
	"hash/fnv"
	"sync"
)

// KeyLock stripes per-(bucket,key) serialization across a fixed number of
// shards rather than a single global mutex.
type KeyLock struct {
	shards []sync.Mutex
}

// NewKeyLock creates a KeyLock with n shards (rounded up to a power of two
// internally is unnecessary; any positive n works).
func NewKeyLock(n int) *KeyLock {
	if n <= 0 {
		n = 64
	}
	return &KeyLock{shards: make([]sync.Mutex, n)}
}

func (k *KeyLock) shard(bucket, key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(bucket))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key))
	return &k.shards[h.Sum32()%uint32(len(k.shards))]
}

// Lock acquires the shard guarding (bucket, key).
func (k *KeyLock) Lock(bucket, key string) { k.shard(bucket, key).Lock() }

// Unlock releases the shard guarding (bucket, key).
func (k *KeyLock) Unlock(bucket, key string) { k.shard(bucket, key).Unlock() }

package sync

import (
	"sync"
)

// DefaultShards is the shard count used by NewShardedMutex.
const DefaultShards = 64

// ShardedMutex provides per-key mutual exclusion without a global lock.
// Keys are hashed onto a fixed set of mutexes: two callers touching the same
// key always serialize, callers on different keys only contend when their
// keys share a shard.
type ShardedMutex struct {
	shards []sync.Mutex
}

// NewShardedMutex creates a ShardedMutex with DefaultShards shards.
func NewShardedMutex() *ShardedMutex {
	return NewShardedMutexN(DefaultShards)
}

// NewShardedMutexN creates a ShardedMutex with n shards (minimum 1).
func NewShardedMutexN(n int) *ShardedMutex {
	if n < 1 {
		n = 1
	}
	return &ShardedMutex{shards: make([]sync.Mutex, n)}
}

// Lock acquires the lock for the given key's shard.
func (m *ShardedMutex) Lock(key string) {
	m.shards[m.shardFor(key)].Lock()
}

// Unlock releases the lock for the given key's shard.
func (m *ShardedMutex) Unlock(key string) {
	m.shards[m.shardFor(key)].Unlock()
}

// WithLock runs fn while holding key's shard lock.
func (m *ShardedMutex) WithLock(key string, fn func() error) error {
	m.Lock(key)
	defer m.Unlock(key)
	return fn()
}

// shardFor returns the shard index for the given key.
// Empty keys map to shard 0.
func (m *ShardedMutex) shardFor(key string) int {
	if key == "" {
		return 0
	}
	return int(hashString(key) % uint32(len(m.shards)))
}

// hashString is a 32-bit FNV-1a hash, good enough for shard spreading.
func hashString(s string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

package repository

import (
	"context"
	"sync"
	"time"
)

// memStateCache 内存实现，过期按读取时的本机时间判断
type memStateCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

type memEntry struct {
	payload []byte
	expires time.Time
}

func newMemStateCache() *memStateCache {
	return &memStateCache{entries: make(map[string]memEntry)}
}

func (m *memStateCache) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || (!e.expires.IsZero() && time.Now().After(e.expires)) {
		delete(m.entries, key)
		return nil, errNotCached
	}
	return e.payload, nil
}

func (m *memStateCache) Store(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memEntry{payload: append([]byte(nil), payload...)}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *memStateCache) Drop(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

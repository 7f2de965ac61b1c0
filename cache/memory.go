package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is an in-memory cache implementation with TTL support.
// Payloads are kept JSON-encoded so behavior matches the Redis backend.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[string]entry
	stopCh chan struct{}
}

type entry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemory creates a new in-memory cache store
func NewMemory() *MemoryStore {
	s := &MemoryStore{
		items:  make(map[string]entry),
		stopCh: make(chan struct{}),
	}
	go s.cleanup()
	return s
}

func (s *MemoryStore) Get(ctx context.Context, key string, dest interface{}) bool {
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()

	if !ok {
		return false
	}
	if time.Now().After(e.expiresAt) {
		return false
	}
	if err := json.Unmarshal(e.data, dest); err != nil {
		return false
	}
	return true
}

func (s *MemoryStore) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = entry{
		data:      data,
		expiresAt: time.Now().Add(ttl),
	}
}

func (s *MemoryStore) Delete(ctx context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

func (s *MemoryStore) Stop() {
	close(s.stopCh)
}

func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stopCh:
			return
		}
	}
}

func (s *MemoryStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, e := range s.items {
		if now.After(e.expiresAt) {
			delete(s.items, key)
		}
	}
}

// Ensure MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)

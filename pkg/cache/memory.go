package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries bounds the in-memory store when no size is configured
const DefaultMaxEntries = 128

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryStore implements Store with an in-process LRU. Expired entries are
// removed when read and are never returned.
type MemoryStore struct {
	cache   *lru.Cache[string, memoryEntry]
	now     func() time.Time
	metrics metrics

	mu     sync.RWMutex
	closed bool
}

// NewMemoryStore creates an LRU-backed store holding at most maxEntries
func NewMemoryStore(maxEntries int) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	cache, err := lru.New[string, memoryEntry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}

	return &MemoryStore{
		cache: cache,
		now:   time.Now,
	}, nil
}

// Get retrieves a cached value
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if s.isClosed() {
		return nil, ErrClosed
	}

	entry, ok := s.cache.Get(key)
	if !ok {
		s.metrics.recordMiss()
		return nil, ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		s.cache.Remove(key)
		s.metrics.recordMiss()
		return nil, ErrCacheMiss
	}

	s.metrics.recordHit()
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set stores a value, replacing any existing entry
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if s.isClosed() {
		return ErrClosed
	}

	entry := memoryEntry{value: make([]byte, len(value))}
	copy(entry.value, value)
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}

	s.cache.Add(key, entry)
	return nil
}

// Delete removes a cached value
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	s.cache.Remove(key)
	return nil
}

// Stats returns cache statistics
func (s *MemoryStore) Stats() Stats {
	stats := s.metrics.stats()
	stats.ItemCount = int64(s.cache.Len())
	return stats
}

// Close releases resources
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cache.Purge()
	return nil
}

func (s *MemoryStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

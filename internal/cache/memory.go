package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/objectfs/gateway/pkg/types"
)

// MemoryConfig represents in-process store configuration
type MemoryConfig struct {
	MaxSize         int64         `yaml:"max_size"`
	MaxEntries      int           `yaml:"max_entries"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// MemoryStore is a size-bounded LRU store with per-entry expiry. It is used
// when no Redis server is configured and in tests.
type MemoryStore struct {
	mu          sync.Mutex
	capacity    int64
	maxEntries  int
	currentSize int64
	items       map[string]*memoryItem
	evictList   *list.List
	counters    map[string]*memoryCounter
	now         func() time.Time

	stats types.CacheStats

	stop     chan struct{}
	stopOnce sync.Once
}

type memoryItem struct {
	key       string
	value     []byte
	expiresAt time.Time
	element   *list.Element
}

// Counters live outside the LRU so eviction never resets them.
type memoryCounter struct {
	value     int64
	expiresAt time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a memory store and starts its expiry sweeper.
func NewMemoryStore(config MemoryConfig) *MemoryStore {
	if config.MaxSize <= 0 {
		config.MaxSize = 256 * 1024 * 1024
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}

	s := &MemoryStore{
		capacity:   config.MaxSize,
		maxEntries: config.MaxEntries,
		items:      make(map[string]*memoryItem),
		evictList:  list.New(),
		counters:   make(map[string]*memoryCounter),
		now:        time.Now,
		stats:      types.CacheStats{Capacity: config.MaxSize},
		stop:       make(chan struct{}),
	}

	go s.sweep(config.CleanupInterval)

	return s
}

// Get returns a copy of the value stored under key
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok {
		s.stats.Misses++
		return nil, ErrMiss
	}
	if s.expired(item) {
		s.removeItem(item)
		s.stats.Misses++
		return nil, ErrMiss
	}

	s.evictList.MoveToFront(item.element)
	s.stats.Hits++

	result := make([]byte, len(item.value))
	copy(result, item.value)
	return result, nil
}

// Set stores a copy of value. Values larger than the whole store are dropped.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setLocked(key, value, ttl)
	return nil
}

// SetIfUnchanged stores value if no counter in guard has moved
func (s *MemoryStore) SetIfUnchanged(_ context.Context, guard Guard, key string, value []byte, ttl time.Duration) (bool, error) {
	if len(guard.Keys) != len(guard.Values) {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, k := range guard.Keys {
		if s.counterLocked(k) != guard.Values[i] {
			return false, nil
		}
	}
	s.setLocked(key, value, ttl)
	return true, nil
}

// Counters returns the current counter values
func (s *MemoryStore) Counters(_ context.Context, keys ...string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make([]int64, len(keys))
	for i, k := range keys {
		values[i] = s.counterLocked(k)
	}
	return values, nil
}

// Incr increments a counter, restarting it from zero if it expired
func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &memoryCounter{value: s.counterLocked(key) + 1}
	if ttl > 0 {
		c.expiresAt = s.now().Add(ttl)
	}
	s.counters[key] = c
	return nil
}

// Delete removes keys from the store
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		if item, ok := s.items[key]; ok {
			s.removeItem(item)
		}
	}
	return nil
}

// DeletePrefix removes every entry whose key starts with prefix
func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, item := range s.items {
		if strings.HasPrefix(key, prefix) {
			s.removeItem(item)
		}
	}
	return nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close stops the expiry sweeper
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// Size returns the number of bytes held
func (s *MemoryStore) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSize
}

// Stats returns cache statistics
func (s *MemoryStore) Stats() types.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.Size = s.currentSize
	stats.Entries = len(s.items)
	stats.Utilization = float64(s.currentSize) / float64(s.capacity)
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Helper methods

func (s *MemoryStore) setLocked(key string, value []byte, ttl time.Duration) {
	size := int64(len(value))

	if old, ok := s.items[key]; ok {
		s.removeItem(old)
	}
	if size > s.capacity {
		return
	}

	item := &memoryItem{
		key:   key,
		value: append([]byte(nil), value...),
	}
	if ttl > 0 {
		item.expiresAt = s.now().Add(ttl)
	}
	item.element = s.evictList.PushFront(item)
	s.items[key] = item
	s.currentSize += size

	s.evictIfNeeded()
}

func (s *MemoryStore) counterLocked(key string) int64 {
	c, ok := s.counters[key]
	if !ok {
		return 0
	}
	if !c.expiresAt.IsZero() && !s.now().Before(c.expiresAt) {
		delete(s.counters, key)
		return 0
	}
	return c.value
}

func (s *MemoryStore) expired(item *memoryItem) bool {
	return !item.expiresAt.IsZero() && !s.now().Before(item.expiresAt)
}

func (s *MemoryStore) removeItem(item *memoryItem) {
	s.evictList.Remove(item.element)
	delete(s.items, item.key)
	s.currentSize -= int64(len(item.value))
}

func (s *MemoryStore) evictIfNeeded() {
	for s.currentSize > s.capacity || (s.maxEntries > 0 && len(s.items) > s.maxEntries) {
		back := s.evictList.Back()
		if back == nil {
			return
		}
		s.removeItem(back.Value.(*memoryItem))
		s.stats.Evictions++
	}
}

func (s *MemoryStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if s.expired(item) {
			s.removeItem(item)
		}
	}
	for key := range s.counters {
		s.counterLocked(key)
	}
}

func (s *MemoryStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

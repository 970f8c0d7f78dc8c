package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestMemoryStore(t *testing.T, config MemoryConfig) (*MemoryStore, *time.Time) {
	t.Helper()
	s := NewMemoryStore(config)
	t.Cleanup(func() { s.Close() })

	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestNewMemoryStore_Defaults(t *testing.T) {
	s, _ := newTestMemoryStore(t, MemoryConfig{})

	if s.capacity != 256*1024*1024 {
		t.Errorf("expected default capacity 256MiB, got %d", s.capacity)
	}
	if s.items == nil || s.evictList == nil {
		t.Fatal("store not initialized")
	}
}

func TestMemoryStore_SetGet(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t, MemoryConfig{MaxSize: 1024})

	if _, err := s.Get(ctx, "missing"); err != ErrMiss {
		t.Fatalf("expected ErrMiss, got %v", err)
	}

	data := []byte("hello")
	if err := s.Set(ctx, "k", data, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	data[0] = 'j' // the store keeps its own copy

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}

	got[0] = 'y' // and hands out copies
	again, _ := s.Get(ctx, "k")
	if string(again) != "hello" {
		t.Errorf("stored value was mutated through Get: %q", again)
	}

	if err := s.Set(ctx, "k", []byte("hi"), 0); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if s.Size() != 2 {
		t.Errorf("expected size 2 after overwrite, got %d", s.Size())
	}
}

func TestMemoryStore_EmptyValue(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t, MemoryConfig{MaxSize: 1024})

	if err := s.Set(ctx, "empty", nil, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := s.Get(ctx, "empty")
	if err != nil {
		t.Fatalf("empty value should be a hit, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty value, got %q", got)
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	s, now := newTestMemoryStore(t, MemoryConfig{MaxSize: 1024})

	_ = s.Set(ctx, "short", []byte("a"), time.Second)
	_ = s.Set(ctx, "forever", []byte("b"), 0)

	*now = now.Add(999 * time.Millisecond)
	if _, err := s.Get(ctx, "short"); err != nil {
		t.Errorf("entry expired early: %v", err)
	}

	*now = now.Add(time.Millisecond)
	if _, err := s.Get(ctx, "short"); err != ErrMiss {
		t.Errorf("expected expired entry to miss, got %v", err)
	}
	if _, err := s.Get(ctx, "forever"); err != nil {
		t.Errorf("entry without ttl expired: %v", err)
	}
	if s.Size() != 1 {
		t.Errorf("expired entry still counted, size %d", s.Size())
	}
}

func TestMemoryStore_RemoveExpired(t *testing.T) {
	ctx := context.Background()
	s, now := newTestMemoryStore(t, MemoryConfig{MaxSize: 1024})

	for i := 0; i < 5; i++ {
		_ = s.Set(ctx, fmt.Sprintf("k%d", i), []byte("x"), time.Duration(i+1)*time.Second)
	}
	*now = now.Add(3 * time.Second)
	s.removeExpired()

	if stats := s.Stats(); stats.Entries != 2 {
		t.Errorf("expected 2 entries after sweep, got %d", stats.Entries)
	}
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t, MemoryConfig{MaxSize: 30})

	_ = s.Set(ctx, "a", make([]byte, 10), 0)
	_ = s.Set(ctx, "b", make([]byte, 10), 0)
	_ = s.Set(ctx, "c", make([]byte, 10), 0)

	// touch a so b becomes the eviction candidate
	if _, err := s.Get(ctx, "a"); err != nil {
		t.Fatalf("Get a: %v", err)
	}
	_ = s.Set(ctx, "d", make([]byte, 10), 0)

	if _, err := s.Get(ctx, "b"); err != ErrMiss {
		t.Errorf("expected b to be evicted, got %v", err)
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, err := s.Get(ctx, k); err != nil {
			t.Errorf("expected %s to survive: %v", k, err)
		}
	}
	if s.Size() > 30 {
		t.Errorf("size %d exceeds capacity", s.Size())
	}
	if s.Stats().Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", s.Stats().Evictions)
	}
}

func TestMemoryStore_MaxEntries(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t, MemoryConfig{MaxSize: 1024, MaxEntries: 2})

	_ = s.Set(ctx, "a", []byte("1"), 0)
	_ = s.Set(ctx, "b", []byte("2"), 0)
	_ = s.Set(ctx, "c", []byte("3"), 0)

	if _, err := s.Get(ctx, "a"); err != ErrMiss {
		t.Errorf("expected oldest entry to be evicted, got %v", err)
	}
	if s.Stats().Entries != 2 {
		t.Errorf("expected 2 entries, got %d", s.Stats().Entries)
	}
}

func TestMemoryStore_OversizedValueIsDropped(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t, MemoryConfig{MaxSize: 8})

	_ = s.Set(ctx, "big", []byte("old"), 0)
	_ = s.Set(ctx, "big", make([]byte, 9), 0)

	if _, err := s.Get(ctx, "big"); err != ErrMiss {
		t.Errorf("oversized value must replace and drop the old one, got %v", err)
	}
	if s.Size() != 0 {
		t.Errorf("expected empty store, got size %d", s.Size())
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t, MemoryConfig{MaxSize: 1024})

	_ = s.Set(ctx, "a", []byte("1"), 0)
	_ = s.Set(ctx, "b", []byte("2"), 0)

	if err := s.Delete(ctx, "a", "b", "never-set"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if s.Size() != 0 || s.Stats().Entries != 0 {
		t.Errorf("expected empty store, got %+v", s.Stats())
	}
}

func TestMemoryStore_DeletePrefix(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t, MemoryConfig{MaxSize: 1024})

	for _, key := range []string{"p:stat:a", "p:stat:a/b", "p:stat:a/c/d", "p:stat:ab", "p:data:a/b"} {
		_ = s.Set(ctx, key, []byte("x"), 0)
	}

	if err := s.DeletePrefix(ctx, "p:stat:a/"); err != nil {
		t.Fatalf("DeletePrefix failed: %v", err)
	}
	for _, key := range []string{"p:stat:a/b", "p:stat:a/c/d"} {
		if _, err := s.Get(ctx, key); err != ErrMiss {
			t.Errorf("expected %s to be removed, got %v", key, err)
		}
	}
	for _, key := range []string{"p:stat:a", "p:stat:ab", "p:data:a/b"} {
		if _, err := s.Get(ctx, key); err != nil {
			t.Errorf("expected %s to survive, got %v", key, err)
		}
	}
	if s.Size() != 3 {
		t.Errorf("expected 3 bytes left, got %d", s.Size())
	}
}

func TestMemoryStore_Counters(t *testing.T) {
	ctx := context.Background()
	s, now := newTestMemoryStore(t, MemoryConfig{MaxSize: 1024})

	values, _ := s.Counters(ctx, "g:a", "g:b")
	if values[0] != 0 || values[1] != 0 {
		t.Errorf("expected absent counters to read zero, got %v", values)
	}

	_ = s.Incr(ctx, "g:a", time.Minute)
	_ = s.Incr(ctx, "g:a", time.Minute)
	values, _ = s.Counters(ctx, "g:a", "g:b")
	if values[0] != 2 || values[1] != 0 {
		t.Errorf("expected [2 0], got %v", values)
	}

	*now = now.Add(time.Minute)
	values, _ = s.Counters(ctx, "g:a")
	if values[0] != 0 {
		t.Errorf("expected expired counter to read zero, got %d", values[0])
	}
}

func TestMemoryStore_CountersSurviveEviction(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t, MemoryConfig{MaxSize: 4})

	_ = s.Incr(ctx, "g:a", 0)
	_ = s.Set(ctx, "big", []byte("1234"), 0)
	_ = s.Set(ctx, "big2", []byte("5678"), 0)

	values, _ := s.Counters(ctx, "g:a")
	if values[0] != 1 {
		t.Errorf("expected counter to survive eviction, got %d", values[0])
	}
}

func TestMemoryStore_SetIfUnchanged(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t, MemoryConfig{MaxSize: 1024})

	keys := []string{"g:root", "g:a"}
	values, _ := s.Counters(ctx, keys...)
	guard := Guard{Keys: keys, Values: values}

	ok, err := s.SetIfUnchanged(ctx, guard, "k", []byte("v1"), 0)
	if err != nil || !ok {
		t.Fatalf("expected guarded set to succeed, got %v %v", ok, err)
	}

	_ = s.Incr(ctx, "g:root", 0)
	ok, err = s.SetIfUnchanged(ctx, guard, "k", []byte("v2"), 0)
	if err != nil || ok {
		t.Fatalf("expected guarded set to be refused, got %v %v", ok, err)
	}
	got, _ := s.Get(ctx, "k")
	if string(got) != "v1" {
		t.Errorf("expected v1 to remain, got %q", got)
	}

	ok, _ = s.SetIfUnchanged(ctx, Guard{Keys: keys}, "k", []byte("v3"), 0)
	if ok {
		t.Error("expected a malformed guard to be refused")
	}
}

func TestMemoryStore_Stats(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t, MemoryConfig{MaxSize: 100})

	_ = s.Set(ctx, "k", make([]byte, 50), 0)
	_, _ = s.Get(ctx, "k")
	_, _ = s.Get(ctx, "k")
	_, _ = s.Get(ctx, "other")

	stats := s.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("expected 2 hits and 1 miss, got %d and %d", stats.Hits, stats.Misses)
	}
	if stats.Utilization != 0.5 {
		t.Errorf("expected utilization 0.5, got %v", stats.Utilization)
	}
	if stats.Capacity != 100 {
		t.Errorf("expected capacity 100, got %d", stats.Capacity)
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(MemoryConfig{MaxSize: 4096})
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (i*100+j)%64)
				_ = s.Set(ctx, key, make([]byte, 32), time.Minute)
				_, _ = s.Get(ctx, key)
				if j%10 == 0 {
					_ = s.Delete(ctx, key)
				}
			}
		}(i)
	}
	wg.Wait()

	if s.Size() > 4096 {
		t.Errorf("size %d exceeds capacity", s.Size())
	}
}

func TestMemoryStore_CloseIsIdempotent(t *testing.T) {
	s := NewMemoryStore(MemoryConfig{})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

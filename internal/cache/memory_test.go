package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryCache_BasicOperations(t *testing.T) {
	cache := NewMemoryCache(1024)

	key := "test-key"
	value := []byte("test-value")
	if err := cache.Put(key, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := cache.Get(key)
	if !ok {
		t.Fatal("Get failed: key not found")
	}
	if string(got) != string(value) {
		t.Errorf("got %s, want %s", got, value)
	}
	if cache.Size() != int64(len(value)) {
		t.Errorf("size = %d, want %d", cache.Size(), len(value))
	}

	if err := cache.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := cache.Get(key); ok {
		t.Error("key still present after delete")
	}
	if cache.Size() != 0 {
		t.Errorf("size not zero after delete: %d", cache.Size())
	}
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	cache := NewMemoryCache(30)

	_ = cache.Put("a", make([]byte, 10))
	_ = cache.Put("b", make([]byte, 10))
	_ = cache.Put("c", make([]byte, 10))

	// touch a so b becomes the oldest
	cache.Get("a")
	_ = cache.Put("d", make([]byte, 10))

	if _, ok := cache.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := cache.Get(k); !ok {
			t.Errorf("%s should still be cached", k)
		}
	}
	if s := cache.Stats(); s.Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", s.Evictions)
	}
}

func TestMemoryCache_ItemTooLarge(t *testing.T) {
	cache := NewMemoryCache(10)
	if err := cache.Put("big", make([]byte, 11)); !errors.Is(err, ErrItemTooLarge) {
		t.Errorf("expected ErrItemTooLarge, got %v", err)
	}
}

func TestMemoryCache_UpdateExisting(t *testing.T) {
	cache := NewMemoryCache(100)
	_ = cache.Put("k", make([]byte, 10))
	_ = cache.Put("k", make([]byte, 20))
	if cache.Size() != 20 {
		t.Errorf("size = %d, want 20", cache.Size())
	}
	if s := cache.Stats(); s.Items != 1 {
		t.Errorf("items = %d, want 1", s.Items)
	}
}

func TestMemoryCache_StatsAndPrune(t *testing.T) {
	cache := NewMemoryCache(100)
	_ = cache.Put("k", []byte("v"))
	cache.Get("k")
	cache.Get("missing")

	s := cache.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.HitRate != 0.5 {
		t.Errorf("unexpected stats %+v", s)
	}

	time.Sleep(5 * time.Millisecond)
	if n := cache.Prune(time.Millisecond); n != 1 {
		t.Errorf("expected 1 pruned, got %d", n)
	}
	if cache.Size() != 0 {
		t.Error("cache should be empty after prune")
	}
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	cache := NewMemoryCache(1024)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k-%d-%d", i, j%5)
				_ = cache.Put(key, []byte("value"))
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()
	if cache.Size() > 1024 {
		t.Errorf("size %d exceeds capacity", cache.Size())
	}
}

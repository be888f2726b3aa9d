package cache

import (
	"container/list"
	"sync"
	"time"
)

// MemoryCache is a size bounded LRU.
type MemoryCache struct {
	capacity int64
	size     int64

	items map[string]*list.Element
	lru   *list.List // front is most recently used

	mu    sync.Mutex
	stats Stats
}

type memoryEntry struct {
	key     string
	value   []byte
	created time.Time
}

// NewMemoryCache creates a memory cache holding at most capacity bytes.
func NewMemoryCache(capacity int64) *MemoryCache {
	return &MemoryCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
		stats:    Stats{Capacity: capacity},
	}
}

// Get returns the value for key and marks it recently used.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.lru.MoveToFront(elem)
	c.stats.Hits++
	c.stats.LastAccess = time.Now()
	return elem.Value.(*memoryEntry).value, true
}

// Put stores value, evicting least recently used entries to make room.
func (c *MemoryCache) Put(key string, value []byte) error {
	n := int64(len(value))
	if n > c.capacity {
		return ErrItemTooLarge
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	for c.size+n > c.capacity && c.lru.Len() > 0 {
		c.removeElement(c.lru.Back())
		c.stats.Evictions++
		c.stats.LastEvict = time.Now()
	}

	c.items[key] = c.lru.PushFront(&memoryEntry{key: key, value: value, created: time.Now()})
	c.size += n
	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	return nil
}

// Clear removes all entries.
func (c *MemoryCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lru.Init()
	c.size = 0
	return nil
}

// Prune removes entries created more than maxAge ago.
func (c *MemoryCache) Prune(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	pruned := 0
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*memoryEntry).created.Before(cutoff) {
			c.removeElement(elem)
			pruned++
		}
		elem = prev
	}
	return pruned
}

// Size returns the bytes currently held.
func (c *MemoryCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.size
	s.Items = int64(len(c.items))
	s.computeHitRate()
	return s
}

// removeElement must be called with mu held.
func (c *MemoryCache) removeElement(elem *list.Element) {
	entry := c.lru.Remove(elem).(*memoryEntry)
	delete(c.items, entry.key)
	c.size -= int64(len(entry.value))
}

package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/text/unicode/norm"
)

// ClipCache maps spoken text to the audio payloads the server returned for
// it. Lookups check memory first and promote disk hits into memory.
type ClipCache struct {
	memory *MemoryCache
	disk   *DiskCache
	cfg    Config
	logger *log.Logger

	stop chan struct{}
	wg   sync.WaitGroup

	mu    sync.Mutex
	stats ClipStats
}

// ClipStats aggregates both tiers.
type ClipStats struct {
	Hits        int64
	Misses      int64
	MemoryHits  int64
	DiskHits    int64
	CleanupRuns int64
	LastCleanup time.Time
	Memory      Stats
	Disk        Stats
}

// New creates a clip cache. The disk tier is skipped when no path or
// capacity is configured.
func New(cfg Config) (*ClipCache, error) {
	c := &ClipCache{
		memory: NewMemoryCache(cfg.MemoryCapacity),
		cfg:    cfg,
		logger: log.WithPrefix("cache"),
		stop:   make(chan struct{}),
	}
	if cfg.DiskPath != "" && cfg.DiskCapacity > 0 {
		disk, err := NewDiskCache(cfg.DiskPath, cfg.DiskCapacity, cfg.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		c.disk = disk
	}
	if cfg.CleanupInterval > 0 && cfg.TTL > 0 {
		c.wg.Add(1)
		go c.cleanupLoop()
	}
	return c, nil
}

// Key derives the cache key for text. Unicode normalization and trimming
// make visually identical replies share an entry.
func Key(text string) string {
	sum := sha256.Sum256([]byte(norm.NFC.String(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])
}

// Get returns the payloads cached for text.
func (c *ClipCache) Get(text string) ([]string, bool) {
	key := Key(text)

	if data, ok := c.memory.Get(key); ok {
		if payloads, err := decodePayloads(data); err == nil {
			c.count(LevelMemory)
			return payloads, true
		}
		_ = c.memory.Delete(key)
	}

	if c.disk != nil {
		if data, ok := c.disk.Get(key); ok {
			payloads, err := decodePayloads(data)
			if err == nil {
				_ = c.memory.Put(key, data)
				c.count(LevelDisk)
				return payloads, true
			}
			c.logger.Warn("dropping corrupted clip", "key", key[:12], "err", err)
			_ = c.disk.Delete(key)
		}
	}

	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
	return nil, false
}

// Put stores payloads for text in both tiers.
func (c *ClipCache) Put(text string, payloads []string) error {
	if len(payloads) == 0 {
		return nil
	}
	key := Key(text)
	data, err := encodePayloads(payloads)
	if err != nil {
		return err
	}

	var errs []error
	if err := c.memory.Put(key, data); err != nil && !errors.Is(err, ErrItemTooLarge) {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	}
	if c.disk != nil {
		if err := c.disk.Put(key, data); err != nil && !errors.Is(err, ErrItemTooLarge) {
			errs = append(errs, fmt.Errorf("disk: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Delete removes text from both tiers.
func (c *ClipCache) Delete(text string) error {
	key := Key(text)
	err := c.memory.Delete(key)
	if c.disk != nil {
		err = errors.Join(err, c.disk.Delete(key))
	}
	return err
}

// Clear empties both tiers.
func (c *ClipCache) Clear() error {
	err := c.memory.Clear()
	if c.disk != nil {
		err = errors.Join(err, c.disk.Clear())
	}
	return err
}

// Stats returns a snapshot of cache statistics.
func (c *ClipCache) Stats() ClipStats {
	c.mu.Lock()
	s := c.stats
	c.mu.Unlock()
	s.Memory = c.memory.Stats()
	if c.disk != nil {
		s.Disk = c.disk.Stats()
	}
	return s
}

// Close stops background cleanup and persists the disk index.
func (c *ClipCache) Close() error {
	close(c.stop)
	c.wg.Wait()
	if c.disk != nil {
		return c.disk.Close()
	}
	return nil
}

func (c *ClipCache) count(level Level) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Hits++
	if level == LevelDisk {
		c.stats.DiskHits++
	} else {
		c.stats.MemoryHits++
	}
}

func (c *ClipCache) cleanupLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.prune()
		case <-c.stop:
			return
		}
	}
}

func (c *ClipCache) prune() {
	removed := c.memory.Prune(c.cfg.TTL)
	if c.disk != nil {
		removed += c.disk.Prune(c.cfg.TTL)
	}
	c.mu.Lock()
	c.stats.CleanupRuns++
	c.stats.LastCleanup = time.Now()
	c.mu.Unlock()
	if removed > 0 {
		c.logger.Debug("pruned expired clips", "count", removed)
	}
}

func encodePayloads(payloads []string) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payloads); err != nil {
		return nil, fmt.Errorf("encode clip: %w", err)
	}
	return buf.Bytes(), nil
}

func decodePayloads(data []byte) ([]string, error) {
	var payloads []string
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payloads); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	return payloads, nil
}

package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const indexName = "clips.index"

// DiskCache stores entries as files under a directory, zstd compressed when
// that makes them smaller. An index file survives restarts.
type DiskCache struct {
	dir      string
	capacity int64
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskEntry

	mu    sync.Mutex
	stats Stats
}

type diskEntry struct {
	Key        string
	File       string
	Size       int64 // bytes on disk
	RawSize    int64
	Compressed bool
	Created    time.Time
	LastAccess time.Time
}

// NewDiskCache opens or creates a disk cache in dir.
func NewDiskCache(dir string, capacity int64, level int) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dc := &DiskCache{
		dir:      dir,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
		stats:    Stats{Capacity: capacity},
	}

	if level > 0 {
		var err error
		dc.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}
	// the decoder is always needed to read entries written with compression on
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	dc.decoder = dec

	if err := dc.loadIndex(); err != nil {
		dc.index = make(map[string]*diskEntry)
	}
	for _, e := range dc.index {
		dc.size += e.Size
	}
	return dc, nil
}

// Get reads and decompresses key.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	e, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(e.File)
	if err == nil && e.Compressed {
		data, err = dc.decoder.DecodeAll(data, nil)
	}
	if err != nil {
		dc.removeLocked(key)
		dc.stats.Misses++
		return nil, false
	}

	e.LastAccess = time.Now()
	dc.stats.Hits++
	dc.stats.LastAccess = e.LastAccess
	return data, true
}

// Put writes value, compressing entries over 1 KiB when that helps.
func (dc *DiskCache) Put(key string, value []byte) error {
	data, compressed := value, false
	if dc.encoder != nil && len(value) > 1024 {
		if c := dc.encoder.EncodeAll(value, nil); len(c) < len(value) {
			data, compressed = c, true
		}
	}
	n := int64(len(data))
	if n > dc.capacity {
		return ErrItemTooLarge
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()

	dc.removeLocked(key)
	for dc.size+n > dc.capacity && len(dc.index) > 0 {
		dc.evictOldestLocked()
	}

	file := dc.fileFor(key)
	if err := writeFileAtomic(file, data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	now := time.Now()
	dc.index[key] = &diskEntry{
		Key:        key,
		File:       file,
		Size:       n,
		RawSize:    int64(len(value)),
		Compressed: compressed,
		Created:    now,
		LastAccess: now,
	}
	dc.size += n
	return dc.saveIndex()
}

// Delete removes key.
func (dc *DiskCache) Delete(key string) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.removeLocked(key)
	return dc.saveIndex()
}

// Clear removes every entry.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	for key := range dc.index {
		dc.removeLocked(key)
	}
	return dc.saveIndex()
}

// Prune removes entries created more than maxAge ago.
func (dc *DiskCache) Prune(maxAge time.Duration) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for key, e := range dc.index {
		if e.Created.Before(cutoff) {
			dc.removeLocked(key)
			removed++
		}
	}
	if removed > 0 {
		_ = dc.saveIndex()
	}
	return removed
}

// Stats returns cache statistics.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	s := dc.stats
	s.Size = dc.size
	s.Items = int64(len(dc.index))
	s.computeHitRate()
	return s
}

// Close persists the index.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if dc.encoder != nil {
		_ = dc.encoder.Close()
	}
	dc.decoder.Close()
	return dc.saveIndex()
}

func (dc *DiskCache) removeLocked(key string) {
	e, ok := dc.index[key]
	if !ok {
		return
	}
	_ = os.Remove(e.File)
	delete(dc.index, key)
	dc.size -= e.Size
}

func (dc *DiskCache) evictOldestLocked() {
	entries := make([]*diskEntry, 0, len(dc.index))
	for _, e := range dc.index {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})
	if len(entries) == 0 {
		return
	}
	dc.removeLocked(entries[0].Key)
	dc.stats.Evictions++
	dc.stats.LastEvict = time.Now()
}

func (dc *DiskCache) fileFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(dc.dir, hex.EncodeToString(sum[:16])+".clip")
}

func (dc *DiskCache) loadIndex() error {
	f, err := os.Open(filepath.Join(dc.dir, indexName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck
	if err := gob.NewDecoder(f).Decode(&dc.index); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	return nil
}

func (dc *DiskCache) saveIndex() error {
	path := filepath.Join(dc.dir, indexName)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(f).Encode(dc.index)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// writeFileAtomic writes to a temporary file and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

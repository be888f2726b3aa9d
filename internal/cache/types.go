package cache

import (
	"errors"
	"time"
)

var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when cached data cannot be decoded
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Level identifies a cache tier.
type Level int

const (
	LevelMemory Level = iota
	LevelDisk
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds cache metrics.
type Stats struct {
	Capacity  int64
	Size      int64
	Items     int64
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64

	LastAccess time.Time
	LastEvict  time.Time
}

func (s *Stats) computeHitRate() {
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
}

// Config configures a ClipCache.
type Config struct {
	MemoryCapacity   int64         // bytes
	DiskCapacity     int64         // bytes, 0 disables the disk tier
	DiskPath         string        // directory for cache files
	CompressionLevel int           // zstd level, 0 stores uncompressed
	TTL              time.Duration // entries older than this are pruned
	CleanupInterval  time.Duration // 0 disables background pruning
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   32 * 1024 * 1024,
		DiskCapacity:     256 * 1024 * 1024,
		CompressionLevel: 3,
		TTL:              7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Store is a byte-oriented cache tier.
type Store interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string) error
	Clear() error
	Prune(maxAge time.Duration) int
	Stats() Stats
}

package voice

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/idoll/idoll/internal/audio"
	"github.com/idoll/idoll/internal/cache"
	"github.com/idoll/idoll/internal/capture"
	"github.com/idoll/idoll/internal/speech"
)

// Config contains the voice settings. Values come from the config file
// first and IDOLL_VOICE_* environment variables override them.
type Config struct {
	// Output settings
	Volume     float64       `yaml:"volume" env:"IDOLL_VOICE_VOLUME"`
	Mute       bool          `yaml:"mute" env:"IDOLL_VOICE_MUTE"`
	SampleRate int           `yaml:"sample_rate" env:"IDOLL_VOICE_SAMPLE_RATE"`
	BufferSize time.Duration `yaml:"buffer_size" env:"IDOLL_VOICE_BUFFER_SIZE"`

	// SkipCodeBlocks leaves fenced code out of spoken text.
	SkipCodeBlocks bool `yaml:"skip_code_blocks" env:"IDOLL_VOICE_SKIP_CODE_BLOCKS"`

	Synth  SynthConfig  `yaml:"synth"`
	Cache  CacheConfig  `yaml:"cache"`
	Record RecordConfig `yaml:"record"`
	Call   CallConfig   `yaml:"call"`
}

// SynthConfig configures the local fallback synthesizer used while the
// server is unreachable.
type SynthConfig struct {
	Enabled bool          `yaml:"enabled" env:"IDOLL_VOICE_SYNTH_ENABLED"`
	Command string        `yaml:"command" env:"IDOLL_VOICE_SYNTH_COMMAND"`
	Args    []string      `yaml:"args" env:"IDOLL_VOICE_SYNTH_ARGS"`
	Timeout time.Duration `yaml:"timeout" env:"IDOLL_VOICE_SYNTH_TIMEOUT"`
}

// CacheConfig configures the clip cache.
type CacheConfig struct {
	Enabled     bool          `yaml:"enabled" env:"IDOLL_VOICE_CACHE_ENABLED"`
	Dir         string        `yaml:"dir" env:"IDOLL_VOICE_CACHE_DIR"`
	MemoryMB    int           `yaml:"memory_mb" env:"IDOLL_VOICE_CACHE_MEMORY_MB"`
	DiskMB      int           `yaml:"disk_mb" env:"IDOLL_VOICE_CACHE_DISK_MB"`
	Compression int           `yaml:"compression" env:"IDOLL_VOICE_CACHE_COMPRESSION"`
	TTL         time.Duration `yaml:"ttl" env:"IDOLL_VOICE_CACHE_TTL"`
}

// RecordConfig configures push-to-talk recording.
type RecordConfig struct {
	MaxDuration time.Duration `yaml:"max_duration" env:"IDOLL_VOICE_RECORD_MAX_DURATION"`
	FrameSize   int           `yaml:"frame_size" env:"IDOLL_VOICE_RECORD_FRAME_SIZE"`
}

// CallConfig configures call mode streaming.
type CallConfig struct {
	SampleRate int `yaml:"sample_rate" env:"IDOLL_VOICE_CALL_SAMPLE_RATE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Volume:     1.0,
		SampleRate: audio.DefaultFormat().SampleRate,
		BufferSize: 100 * time.Millisecond,

		SkipCodeBlocks: true,

		Synth:  DefaultSynthConfig(),
		Cache:  DefaultCacheConfig(),
		Record: RecordConfig{MaxDuration: capture.DefaultMaxDuration, FrameSize: capture.FrameSize},
		Call:   CallConfig{SampleRate: capture.SampleRate},
	}
}

// DefaultSynthConfig returns the espeak-ng fallback.
func DefaultSynthConfig() SynthConfig {
	def := speech.DefaultCommandConfig()
	return SynthConfig{
		Enabled: true,
		Command: def.Command,
		Args:    def.Args,
		Timeout: def.Timeout,
	}
}

// DefaultCacheConfig returns default clip cache settings.
func DefaultCacheConfig() CacheConfig {
	def := cache.DefaultConfig()
	return CacheConfig{
		Enabled:     true,
		MemoryMB:    int(def.MemoryCapacity >> 20),
		DiskMB:      int(def.DiskCapacity >> 20),
		Compression: def.CompressionLevel,
		TTL:         def.TTL,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("%w: volume must be between 0 and 1, got %v", ErrInvalidConfig, c.Volume)
	}
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("%w: sample rate %d out of range", ErrInvalidConfig, c.SampleRate)
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("%w: buffer size must not be negative", ErrInvalidConfig)
	}
	if err := c.Synth.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if c.Record.MaxDuration <= 0 {
		return fmt.Errorf("%w: record.max_duration must be positive", ErrInvalidConfig)
	}
	if c.Record.FrameSize <= 0 {
		return fmt.Errorf("%w: record.frame_size must be positive", ErrInvalidConfig)
	}
	if c.Call.SampleRate < 8000 {
		return fmt.Errorf("%w: call.sample_rate %d out of range", ErrInvalidConfig, c.Call.SampleRate)
	}
	return nil
}

// Validate checks the synthesizer settings.
func (c SynthConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Command == "" {
		return fmt.Errorf("%w: synth.command is required when the synthesizer is enabled", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: synth.timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the cache settings.
func (c CacheConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MemoryMB <= 0 {
		return fmt.Errorf("%w: cache.memory_mb must be positive", ErrInvalidConfig)
	}
	if c.DiskMB < 0 {
		return fmt.Errorf("%w: cache.disk_mb must not be negative", ErrInvalidConfig)
	}
	if c.Compression < 0 || c.Compression > 22 {
		return fmt.Errorf("%w: cache.compression must be between 0 and 22", ErrInvalidConfig)
	}
	return nil
}

// ToPlayerConfig converts to the audio player configuration.
func (c Config) ToPlayerConfig() audio.PlayerConfig {
	pc := audio.DefaultPlayerConfig()
	pc.Format.SampleRate = c.SampleRate
	pc.BufferSize = c.BufferSize
	pc.Volume = c.Volume
	return pc
}

// ToCommandConfig converts to the synthesizer command configuration.
func (c SynthConfig) ToCommandConfig() speech.CommandConfig {
	return speech.CommandConfig{
		Command: c.Command,
		Args:    c.Args,
		Timeout: c.Timeout,
	}
}

// ToCacheConfig converts to the clip cache configuration. An empty Dir
// falls back to a "clips" directory under cacheHome.
func (c CacheConfig) ToCacheConfig(cacheHome string) cache.Config {
	cc := cache.DefaultConfig()
	cc.MemoryCapacity = int64(c.MemoryMB) << 20
	cc.DiskCapacity = int64(c.DiskMB) << 20
	cc.CompressionLevel = c.Compression
	cc.TTL = c.TTL
	cc.DiskPath = c.Dir
	if cc.DiskPath == "" && cacheHome != "" {
		cc.DiskPath = filepath.Join(cacheHome, "clips")
	}
	if cc.DiskPath == "" {
		cc.DiskCapacity = 0
	}
	return cc
}

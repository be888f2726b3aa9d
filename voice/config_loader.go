package voice

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// LoadConfigFromViper reads the voice section from Viper and applies
// IDOLL_VOICE_* environment overrides on top.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	if viper.IsSet("voice.volume") {
		cfg.Volume = viper.GetFloat64("voice.volume")
	}
	if viper.IsSet("voice.mute") {
		cfg.Mute = viper.GetBool("voice.mute")
	}
	if viper.IsSet("voice.sample_rate") {
		cfg.SampleRate = viper.GetInt("voice.sample_rate")
	}
	if viper.IsSet("voice.buffer_size") {
		cfg.BufferSize = viper.GetDuration("voice.buffer_size")
	}
	if viper.IsSet("voice.skip_code_blocks") {
		cfg.SkipCodeBlocks = viper.GetBool("voice.skip_code_blocks")
	}

	cfg.Synth = loadSynthConfig()
	cfg.Cache = loadCacheConfig()

	if viper.IsSet("voice.record.max_duration") {
		cfg.Record.MaxDuration = viper.GetDuration("voice.record.max_duration")
	}
	if viper.IsSet("voice.record.frame_size") {
		cfg.Record.FrameSize = viper.GetInt("voice.record.frame_size")
	}
	if viper.IsSet("voice.call.sample_rate") {
		cfg.Call.SampleRate = viper.GetInt("voice.call.sample_rate")
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("invalid voice environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid voice configuration: %w", err)
	}
	return cfg, nil
}

func loadSynthConfig() SynthConfig {
	cfg := DefaultSynthConfig()

	if viper.IsSet("voice.synth.enabled") {
		cfg.Enabled = viper.GetBool("voice.synth.enabled")
	}
	if viper.IsSet("voice.synth.command") {
		cfg.Command = viper.GetString("voice.synth.command")
	}
	if viper.IsSet("voice.synth.args") {
		cfg.Args = viper.GetStringSlice("voice.synth.args")
	}
	if viper.IsSet("voice.synth.timeout") {
		cfg.Timeout = viper.GetDuration("voice.synth.timeout")
	}
	return cfg
}

func loadCacheConfig() CacheConfig {
	cfg := DefaultCacheConfig()

	if viper.IsSet("voice.cache.enabled") {
		cfg.Enabled = viper.GetBool("voice.cache.enabled")
	}
	if viper.IsSet("voice.cache.dir") {
		cfg.Dir = viper.GetString("voice.cache.dir")
	}
	if viper.IsSet("voice.cache.memory_mb") {
		cfg.MemoryMB = viper.GetInt("voice.cache.memory_mb")
	}
	if viper.IsSet("voice.cache.disk_mb") {
		cfg.DiskMB = viper.GetInt("voice.cache.disk_mb")
	}
	if viper.IsSet("voice.cache.compression") {
		cfg.Compression = viper.GetInt("voice.cache.compression")
	}
	if viper.IsSet("voice.cache.ttl") {
		cfg.TTL = viper.GetDuration("voice.cache.ttl")
	}
	return cfg
}

// SetDefaults registers the voice defaults with Viper so they show up in a
// freshly written config file.
func SetDefaults() {
	d := DefaultConfig()

	viper.SetDefault("voice.volume", d.Volume)
	viper.SetDefault("voice.mute", d.Mute)
	viper.SetDefault("voice.sample_rate", d.SampleRate)
	viper.SetDefault("voice.buffer_size", d.BufferSize.String())
	viper.SetDefault("voice.skip_code_blocks", d.SkipCodeBlocks)

	viper.SetDefault("voice.synth.enabled", d.Synth.Enabled)
	viper.SetDefault("voice.synth.command", d.Synth.Command)
	viper.SetDefault("voice.synth.args", d.Synth.Args)
	viper.SetDefault("voice.synth.timeout", d.Synth.Timeout.String())

	viper.SetDefault("voice.cache.enabled", d.Cache.Enabled)
	viper.SetDefault("voice.cache.memory_mb", d.Cache.MemoryMB)
	viper.SetDefault("voice.cache.disk_mb", d.Cache.DiskMB)
	viper.SetDefault("voice.cache.compression", d.Cache.Compression)
	viper.SetDefault("voice.cache.ttl", d.Cache.TTL.String())

	viper.SetDefault("voice.record.max_duration", d.Record.MaxDuration.String())
	viper.SetDefault("voice.record.frame_size", d.Record.FrameSize)
	viper.SetDefault("voice.call.sample_rate", d.Call.SampleRate)
}

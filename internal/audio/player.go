package audio

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

// pollInterval is how often a blocking Play checks whether oto has drained
// the clip.
const pollInterval = 10 * time.Millisecond

// PlayerState is the state of a Player.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StateClosed
)

// String returns the string representation of the state.
func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Player plays clips on the process-wide oto context. One clip plays at a
// time; starting a new clip or calling Stop halts the previous one.
type Player struct {
	context *oto.Context
	format  Format

	mu     sync.Mutex
	player *oto.Player
	// data keeps the clip bytes reachable while oto reads from them.
	data []byte
	seq  uint64

	state  atomic.Int32
	volume atomic.Uint64 // math.Float64bits
}

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	Format     Format
	BufferSize time.Duration // oto buffer, 0 selects the driver default
	Volume     float64
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		Format:     DefaultFormat(),
		BufferSize: 100 * time.Millisecond,
		Volume:     1.0,
	}
}

var (
	otoOnce    sync.Once
	otoContext *oto.Context
	otoFormat  Format
	otoErr     error
)

// sharedContext opens the oto context once. oto refuses a second context in
// the same process, so later players must agree on the format.
func sharedContext(cfg PlayerConfig) (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   cfg.Format.SampleRate,
			ChannelCount: cfg.Format.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   cfg.BufferSize,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoContext = ctx
		otoFormat = cfg.Format
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoFormat != cfg.Format {
		return nil, fmt.Errorf("audio context already open at %d Hz/%d ch", otoFormat.SampleRate, otoFormat.Channels)
	}
	return otoContext, nil
}

// NewPlayer creates a player on the shared audio context.
func NewPlayer(cfg PlayerConfig) (*Player, error) {
	if err := cfg.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	ctx, err := sharedContext(cfg)
	if err != nil {
		return nil, err
	}

	p := &Player{
		context: ctx,
		format:  cfg.Format,
	}
	p.state.Store(int32(StateStopped))
	if err := p.SetVolume(cfg.Volume); err != nil {
		return nil, err
	}
	return p, nil
}

// Format returns the output format.
func (p *Player) Format() Format {
	return p.format
}

// Play plays pcm and blocks until it has finished, ctx is cancelled or
// another call to Play or Stop interrupts it.
func (p *Player) Play(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return ErrEmptyAudio
	}

	p.mu.Lock()
	if PlayerState(p.state.Load()) == StateClosed {
		p.mu.Unlock()
		return ErrPlayerClosed
	}
	// a cancelled caller must not cut off whoever started after it
	if err := ctx.Err(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.stopLocked()

	data := make([]byte, len(pcm))
	copy(data, pcm)
	pl := p.context.NewPlayer(bytes.NewReader(data))
	pl.SetVolume(p.Volume())

	p.seq++
	seq := p.seq
	p.player = pl
	p.data = data
	pl.Play()
	p.state.Store(int32(StatePlaying))
	p.mu.Unlock()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.stopIf(seq)
			return ctx.Err()
		case <-ticker.C:
			p.mu.Lock()
			if p.seq != seq || p.player == nil {
				p.mu.Unlock()
				return ErrInterrupted
			}
			if !p.player.IsPlaying() {
				p.releaseLocked()
				p.mu.Unlock()
				return nil
			}
			p.mu.Unlock()
		}
	}
}

// Stop halts the clip that is currently playing, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopIf(seq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seq == seq {
		p.stopLocked()
	}
}

// stopLocked must be called with mu held.
func (p *Player) stopLocked() {
	if p.player == nil {
		return
	}
	p.player.Pause()
	p.seq++
	p.releaseLocked()
}

func (p *Player) releaseLocked() {
	p.player = nil
	p.data = nil
	if PlayerState(p.state.Load()) != StateClosed {
		p.state.Store(int32(StateStopped))
	}
}

// IsPlaying returns whether a clip is currently playing.
func (p *Player) IsPlaying() bool {
	return PlayerState(p.state.Load()) == StatePlaying
}

// State returns the current player state.
func (p *Player) State() PlayerState {
	return PlayerState(p.state.Load())
}

// SetVolume sets the playback volume (0.0 to 1.0). It applies to the clip
// that is playing as well as later ones.
func (p *Player) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}
	p.volume.Store(math.Float64bits(volume))

	p.mu.Lock()
	if p.player != nil {
		p.player.SetVolume(volume)
	}
	p.mu.Unlock()
	return nil
}

// Volume returns the current volume.
func (p *Player) Volume() float64 {
	return math.Float64frombits(p.volume.Load())
}

// Close stops playback. The oto context stays open for the process.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.state.Store(int32(StateClosed))
	return nil
}

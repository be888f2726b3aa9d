package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockPlayer simulates playback without producing sound. Play blocks for
// the clip's real duration scaled by the delay factor, which keeps the
// queue's timing behaviour intact in tests and with --mute.
type MockPlayer struct {
	format Format

	mu          sync.Mutex
	stopCh      chan struct{}
	delayFactor float64
	volume      float64
	failNext    error
	played      [][]byte

	state     atomic.Int32
	callbacks MockCallbacks

	playCount atomic.Int64
	stopCount atomic.Int64
	doneCount atomic.Int64
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnPlay func(pcm []byte)
	OnStop func()
	OnDone func(pcm []byte)
}

// MockPlayerMetrics contains playback metrics for testing.
type MockPlayerMetrics struct {
	PlayCount int64
	StopCount int64
	DoneCount int64
}

// DefaultMockPlayer creates a mock player in the default format.
func DefaultMockPlayer() *MockPlayer {
	return NewMockPlayer(DefaultFormat(), MockCallbacks{})
}

// NewMockPlayer creates a mock player with custom callbacks.
func NewMockPlayer(format Format, callbacks MockCallbacks) *MockPlayer {
	mp := &MockPlayer{
		format:      format,
		delayFactor: 1.0,
		volume:      1.0,
		callbacks:   callbacks,
	}
	mp.state.Store(int32(StateStopped))
	return mp
}

// Format returns the output format.
func (mp *MockPlayer) Format() Format {
	return mp.format
}

// Play blocks for the simulated duration of pcm.
func (mp *MockPlayer) Play(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return ErrEmptyAudio
	}

	mp.mu.Lock()
	if PlayerState(mp.state.Load()) == StateClosed {
		mp.mu.Unlock()
		return ErrPlayerClosed
	}
	if err := ctx.Err(); err != nil {
		mp.mu.Unlock()
		return err
	}
	if err := mp.failNext; err != nil {
		mp.failNext = nil
		mp.mu.Unlock()
		return err
	}
	mp.stopLocked()

	stop := make(chan struct{})
	mp.stopCh = stop
	mp.played = append(mp.played, append([]byte(nil), pcm...))
	d := time.Duration(float64(mp.format.Duration(len(pcm))) * mp.delayFactor)
	mp.state.Store(int32(StatePlaying))
	mp.playCount.Add(1)
	mp.mu.Unlock()

	if mp.callbacks.OnPlay != nil {
		mp.callbacks.OnPlay(pcm)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		mp.mu.Lock()
		if mp.stopCh == stop {
			mp.stopCh = nil
			mp.state.Store(int32(StateStopped))
		}
		mp.mu.Unlock()
		mp.doneCount.Add(1)
		if mp.callbacks.OnDone != nil {
			mp.callbacks.OnDone(pcm)
		}
		return nil
	case <-stop:
		return ErrInterrupted
	case <-ctx.Done():
		mp.mu.Lock()
		if mp.stopCh == stop {
			mp.stopLocked()
		}
		mp.mu.Unlock()
		return ctx.Err()
	}
}

// Stop interrupts the clip that is playing.
func (mp *MockPlayer) Stop() {
	mp.mu.Lock()
	stopped := mp.stopLocked()
	mp.mu.Unlock()
	if stopped && mp.callbacks.OnStop != nil {
		mp.callbacks.OnStop()
	}
}

func (mp *MockPlayer) stopLocked() bool {
	if mp.stopCh == nil {
		return false
	}
	close(mp.stopCh)
	mp.stopCh = nil
	mp.stopCount.Add(1)
	if PlayerState(mp.state.Load()) != StateClosed {
		mp.state.Store(int32(StateStopped))
	}
	return true
}

// IsPlaying returns whether a clip is playing.
func (mp *MockPlayer) IsPlaying() bool {
	return PlayerState(mp.state.Load()) == StatePlaying
}

// State returns the current player state.
func (mp *MockPlayer) State() PlayerState {
	return PlayerState(mp.state.Load())
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (mp *MockPlayer) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.volume = volume
	return nil
}

// Volume returns the current volume.
func (mp *MockPlayer) Volume() float64 {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.volume
}

// Close stops playback and rejects further clips.
func (mp *MockPlayer) Close() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.stopLocked()
	mp.state.Store(int32(StateClosed))
	return nil
}

// Test helper methods

// SetDelayFactor scales simulated durations. 0 makes every clip finish
// immediately.
func (mp *MockPlayer) SetDelayFactor(factor float64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.delayFactor = factor
}

// FailNext makes the next Play return err without playing.
func (mp *MockPlayer) FailNext(err error) {
	if err == nil {
		err = errors.New("simulated playback error")
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.failNext = err
}

// Played returns copies of every clip passed to Play, in order.
func (mp *MockPlayer) Played() [][]byte {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	out := make([][]byte, len(mp.played))
	copy(out, mp.played)
	return out
}

// GetMetrics returns playback metrics for testing.
func (mp *MockPlayer) GetMetrics() MockPlayerMetrics {
	return MockPlayerMetrics{
		PlayCount: mp.playCount.Load(),
		StopCount: mp.stopCount.Load(),
		DoneCount: mp.doneCount.Load(),
	}
}

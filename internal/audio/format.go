package audio

import (
	"errors"
	"fmt"
	"time"
)

// Format describes interleaved signed 16-bit little endian PCM.
type Format struct {
	SampleRate int // Hz
	Channels   int // 1 = mono, 2 = stereo
	BitDepth   int // always 16
}

// DefaultFormat is the format the server streams TTS audio in.
func DefaultFormat() Format {
	return Format{
		SampleRate: 24000,
		Channels:   1,
		BitDepth:   16,
	}
}

// supportedRates lists the rates oto is known to open reliably on every
// backend we ship for.
var supportedRates = map[int]bool{
	16000: true,
	22050: true,
	24000: true,
	44100: true,
	48000: true,
}

// Validate reports whether the format can be opened by the player.
func (f Format) Validate() error {
	if !supportedRates[f.SampleRate] {
		return fmt.Errorf("unsupported sample rate %d Hz", f.SampleRate)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", f.Channels)
	}
	if f.BitDepth != 16 {
		return fmt.Errorf("bit depth must be 16, got %d", f.BitDepth)
	}
	return nil
}

// FrameSize is the number of bytes per sample frame.
func (f Format) FrameSize() int {
	return f.Channels * f.BitDepth / 8
}

// Duration returns how long n bytes of PCM in this format play for.
func (f Format) Duration(n int) time.Duration {
	fs := f.FrameSize()
	if fs == 0 || f.SampleRate == 0 {
		return 0
	}
	frames := n / fs
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Errors returned by decoders and players.
var (
	ErrEmptyAudio    = errors.New("audio data is empty")
	ErrUndecodable   = errors.New("audio payload could not be decoded")
	ErrPlayerClosed  = errors.New("player is closed")
	ErrInterrupted   = errors.New("playback interrupted")
	ErrOddPCMLength  = errors.New("pcm16 payload has odd length")
	ErrInvalidBase64 = errors.New("audio payload is not valid base64")
)

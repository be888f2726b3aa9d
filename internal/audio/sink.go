package audio

import (
	"context"
	"fmt"
)

// Output plays PCM in a fixed format. Player and MockPlayer implement it.
type Output interface {
	Play(ctx context.Context, pcm []byte) error
	Stop()
	Format() Format
	SetVolume(volume float64) error
	Close() error
}

// DecodingSink decodes base64 payloads and plays them on an Output.
type DecodingSink struct {
	out     Output
	decoder *Decoder
}

// NewDecodingSink creates a sink whose decoder targets out's format.
func NewDecodingSink(out Output) *DecodingSink {
	return &DecodingSink{
		out:     out,
		decoder: NewDecoder(out.Format()),
	}
}

// Play decodes payload and blocks until it has played.
func (s *DecodingSink) Play(ctx context.Context, payload string) error {
	clip, err := s.decoder.DecodePayload(payload)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.out.Play(ctx, clip.PCM)
}

// Stop halts in-flight playback.
func (s *DecodingSink) Stop() {
	s.out.Stop()
}

// SetVolume forwards to the output.
func (s *DecodingSink) SetVolume(v float64) error {
	return s.out.SetVolume(v)
}

// Close closes the output.
func (s *DecodingSink) Close() error {
	return s.out.Close()
}

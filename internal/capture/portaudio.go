//go:build cgo

package capture

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSource reads the default input device.
type PortAudioSource struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []float32
	rate   int
}

// NewPortAudioSource opens the default input device, mono, at rate with
// frames of frameSize samples.
func NewPortAudioSource(rate, frameSize int) (*PortAudioSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	buf := make([]float32, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(rate), len(buf), buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	return &PortAudioSource{stream: stream, buf: buf, rate: rate}, nil
}

// Start begins capturing.
func (s *PortAudioSource) Start() error {
	return s.stream.Start()
}

// Read blocks for one frame.
func (s *PortAudioSource) Read() ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stream.Read(); err != nil {
		return nil, err
	}
	frame := make([]float32, len(s.buf))
	copy(frame, s.buf)
	return frame, nil
}

// Stop stops capturing. The stream can be started again.
func (s *PortAudioSource) Stop() error {
	return s.stream.Stop()
}

// Close releases the device.
func (s *PortAudioSource) Close() error {
	err := s.stream.Close()
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}

// SampleRate returns the capture rate.
func (s *PortAudioSource) SampleRate() int {
	return s.rate
}

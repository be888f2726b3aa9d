package capture

import "errors"

// STT and call audio is captured at 16 kHz mono.
const (
	SampleRate = 16000
	FrameSize  = 4096
)

var (
	// ErrNotRecording is returned by Stop when no recording is running.
	ErrNotRecording = errors.New("not recording")

	// ErrAlreadyRecording is returned by Start while a recording runs.
	ErrAlreadyRecording = errors.New("already recording")

	// ErrNoAudio is returned when a recording captured nothing.
	ErrNoAudio = errors.New("no audio recorded")
)

// Source delivers mono float32 frames from an input device.
type Source interface {
	Start() error
	// Read blocks until the next frame is available. The returned slice is
	// owned by the caller.
	Read() ([]float32, error)
	Stop() error
	Close() error
	SampleRate() int
}

//go:build !cgo

package capture

import "errors"

// PortAudioSource is unavailable without cgo.
type PortAudioSource struct{ Source }

// NewPortAudioSource fails without cgo.
func NewPortAudioSource(rate, frameSize int) (*PortAudioSource, error) {
	return nil, errors.New("microphone capture requires cgo")
}

package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// DecodeBase64 decodes a base64 payload. Both padded and unpadded standard
// encodings are accepted, as well as embedded whitespace.
func DecodeBase64(payload string) ([]byte, error) {
	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return nil, ErrEmptyAudio
	}

	if b, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}
	return b, nil
}

// EncodeBase64 is the inverse of DecodeBase64.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// PCM16ToFloat32 converts little endian signed 16-bit samples to [-1, 1).
func PCM16ToFloat32(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, ErrOddPCMLength
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out, nil
}

// Float32ToPCM16 converts samples to little endian signed 16-bit PCM using
// scale (32767 or 32768) and clamping to the int16 range.
func Float32ToPCM16(samples []float32, scale float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(ToInt16(s, scale)))
	}
	return out
}

// ToInt16 scales one sample and clamps it to [-32768, 32767].
func ToInt16(s float32, scale float64) int16 {
	v := math.Floor(float64(s) * scale)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Downmix averages interleaved channels into mono.
func Downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// Upmix duplicates a mono signal into n interleaved channels.
func Upmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	out := make([]float32, len(in)*channels)
	for i, s := range in {
		for c := 0; c < channels; c++ {
			out[i*channels+c] = s
		}
	}
	return out
}

// ResampleNearest picks src[floor(i*ratio)] for every output sample. It is
// what the microphone path uses before upload.
func ResampleNearest(in []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(in) == 0 || fromRate <= 0 || toRate <= 0 {
		return in
	}
	ratio := float64(fromRate) / float64(toRate)
	n := int(math.Floor(float64(len(in)) / ratio))
	out := make([]float32, n)
	for i := range out {
		j := int(math.Floor(float64(i) * ratio))
		if j >= len(in) {
			j = len(in) - 1
		}
		out[i] = in[j]
	}
	return out
}

// ResampleLinear interpolates between neighbouring samples.
func ResampleLinear(in []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(in) == 0 || fromRate <= 0 || toRate <= 0 {
		return in
	}
	ratio := float64(toRate) / float64(fromRate)
	n := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, n)
	for i := range out {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		if i0 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		if i1 >= len(in) {
			out[i] = in[i0]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i1]*a
	}
	return out
}

func intSliceToFloat32(data []int, bitDepth int) []float32 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1, 1))
	}
	return out
}

func int16SliceToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / 32768
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

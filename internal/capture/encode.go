package capture

import (
	"math"

	"github.com/idoll/idoll/internal/audio"
	"github.com/idoll/idoll/internal/protocol"
)

// EncodeSTT resamples samples to 16 kHz and returns them as base64 PCM16.
func EncodeSTT(samples []float32, fromRate int) string {
	resampled := audio.ResampleNearest(samples, fromRate, SampleRate)
	return audio.EncodeBase64(audio.Float32ToPCM16(resampled, 32768))
}

// STTRequest builds the transcription request for a recording.
func STTRequest(samples []float32, fromRate int) protocol.STTRequest {
	return protocol.NewSTTRequest(EncodeSTT(samples, fromRate), SampleRate)
}

// BlobRequest wraps a recording the client could not decode.
func BlobRequest(raw []byte) protocol.STTRequest {
	return protocol.NewSTTBlobRequest(audio.EncodeBase64(raw))
}

// FileRequest decodes a recorded file and builds a PCM16 request, falling
// back to sending the file as-is when it is not a known container.
func FileRequest(raw []byte) (protocol.STTRequest, error) {
	if len(raw) == 0 {
		return protocol.STTRequest{}, ErrNoAudio
	}
	dec := audio.NewDecoder(audio.Format{SampleRate: SampleRate, Channels: 1, BitDepth: 16})
	samples, rate, err := dec.DecodeContainer(raw)
	if err != nil {
		return BlobRequest(raw), nil
	}
	return STTRequest(samples, rate), nil
}

// EncodeFrame converts one call frame to base64 PCM16. Samples are scaled
// by 32767 and truncated toward zero.
func EncodeFrame(frame []float32) string {
	pcm := make([]byte, len(frame)*2)
	for i, s := range frame {
		v := math.Trunc(float64(s) * 32767)
		v = math.Max(math.MinInt16, math.Min(math.MaxInt16, v))
		u := uint16(int16(v))
		pcm[i*2] = byte(u)
		pcm[i*2+1] = byte(u >> 8)
	}
	return audio.EncodeBase64(pcm)
}

package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeTestWAV(t *testing.T, rate, channels int, data []int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestDecodeRawPCMPassthrough(t *testing.T) {
	d := NewDecoder(DefaultFormat())
	raw := []byte{0x00, 0x10, 0x00, 0x20}
	clip, err := d.DecodePayload(EncodeBase64(raw))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if clip.Source != "pcm16" {
		t.Errorf("expected pcm16 source, got %s", clip.Source)
	}
	if string(clip.PCM) != string(raw) {
		t.Errorf("expected passthrough, got %v", clip.PCM)
	}
}

func TestDecodeRawPCMResamplesToOutput(t *testing.T) {
	d := NewDecoder(Format{SampleRate: 48000, Channels: 2, BitDepth: 16})
	raw := make([]byte, 2400*2) // 0.1s at 24 kHz mono
	clip, err := d.Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	// 0.1s at 48 kHz stereo
	if want := 4800 * 2 * 2; len(clip.PCM) != want {
		t.Errorf("expected %d bytes, got %d", want, len(clip.PCM))
	}
}

func TestDecodeWAVFallback(t *testing.T) {
	data := make([]int, 1600) // 0.1s at 16 kHz
	for i := range data {
		data[i] = (i % 100) * 100
	}
	b := writeTestWAV(t, 16000, 1, data)

	d := NewDecoder(DefaultFormat())
	clip, err := d.Decode(b)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if clip.Source != "wav" {
		t.Errorf("expected wav decoder, got %s", clip.Source)
	}
	if got := clip.Duration().Milliseconds(); got < 95 || got > 105 {
		t.Errorf("expected ~100ms clip, got %dms", got)
	}
}

func TestDecodeFailures(t *testing.T) {
	d := NewDecoder(DefaultFormat())
	tests := []struct {
		name string
		raw  []byte
	}{
		{"odd raw pcm", []byte{1, 2, 3}},
		{"broken wav", append([]byte("RIFF\x00\x00\x00\x00WAVE"), 1, 2, 3)},
		{"broken ogg", []byte("OggS garbage that is not a stream")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.Decode(tt.raw); !errors.Is(err, ErrUndecodable) {
				t.Errorf("expected ErrUndecodable, got %v", err)
			}
		})
	}

	if _, err := d.Decode(nil); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestSniffers(t *testing.T) {
	if ok, strong := isMP3([]byte("ID3\x04")); !ok || !strong {
		t.Error("expected strong mp3 detection for ID3")
	}
	if ok, strong := isMP3([]byte{0xFF, 0xFB, 0x90}); !ok || strong {
		t.Error("expected weak mp3 detection for frame sync")
	}
	if ok, _ := isMP3([]byte{0xFF, 0xFF, 0xFF}); ok {
		t.Error("pcm silence must not look like mp3")
	}
	if ok, _ := isOgg([]byte("OggS\x00")); !ok {
		t.Error("expected ogg detection")
	}
	if ok, _ := isWAV([]byte("RIFF\x00\x00\x00\x00AVI ")); ok {
		t.Error("RIFF/AVI must not be treated as wav")
	}
}

func TestDecodeNegativePCMIsNotMP3(t *testing.T) {
	d := NewDecoder(DefaultFormat())
	raw := []byte{0xFF, 0xFB, 0x90, 0x00, 0x00, 0x00}
	clip, err := d.Decode(raw)
	if err != nil {
		t.Fatalf("expected pcm fallback, got %v", err)
	}
	if clip.Source != "pcm16" {
		t.Errorf("expected pcm16, got %s", clip.Source)
	}
}

func TestDecodeContainer(t *testing.T) {
	d := NewDecoder(DefaultFormat())
	wavBytes := writeTestWAV(t, 16000, 2, []int{1000, 3000, -2000, -4000})
	samples, rate, err := d.DecodeContainer(wavBytes)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 16000 || len(samples) != 2 {
		t.Fatalf("rate=%d samples=%d", rate, len(samples))
	}
	if samples[0] <= 0 || samples[1] >= 0 {
		t.Errorf("downmix lost sign: %v", samples)
	}

	if _, _, err := d.DecodeContainer([]byte{0, 1, 2, 3}); !errors.Is(err, ErrUndecodable) {
		t.Errorf("raw bytes should be rejected, got %v", err)
	}
}

package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

// Clip is decoded audio in the player's output format.
type Clip struct {
	PCM    []byte
	Format Format
	Source string // decoder that produced the clip
}

// Duration is the playback length of the clip.
func (c Clip) Duration() time.Duration {
	return c.Format.Duration(len(c.PCM))
}

// container is one step of the decoder chain. A strong match means the
// payload cannot be raw PCM, so a failed decode is not retried as PCM16.
type container struct {
	name   string
	match  func([]byte) (ok, strong bool)
	decode func([]byte) (samples []float32, rate, channels int, err error)
}

// Decoder converts audio payloads into clips. Container formats are
// recognised by their magic bytes and tried in order; anything that does not
// look like a container is treated as raw PCM16 in the stream format.
type Decoder struct {
	out    Format
	stream Format
	chain  []container
	logger *log.Logger
}

// NewDecoder creates a decoder producing clips in out. Raw payloads are
// assumed to be in DefaultFormat.
func NewDecoder(out Format) *Decoder {
	return &Decoder{
		out:    out,
		stream: DefaultFormat(),
		chain: []container{
			{name: "wav", match: isWAV, decode: decodeWAV},
			{name: "mp3", match: isMP3, decode: decodeMP3},
			{name: "vorbis", match: isOgg, decode: decodeVorbis},
			{name: "opus", match: isOgg, decode: decodeOpus},
		},
		logger: log.WithPrefix("decode"),
	}
}

// Output returns the format clips are produced in.
func (d *Decoder) Output() Format {
	return d.out
}

// DecodePayload decodes a base64 payload.
func (d *Decoder) DecodePayload(payload string) (Clip, error) {
	raw, err := DecodeBase64(payload)
	if err != nil {
		return Clip{}, err
	}
	return d.Decode(raw)
}

// Decode decodes raw payload bytes.
func (d *Decoder) Decode(raw []byte) (Clip, error) {
	if len(raw) == 0 {
		return Clip{}, ErrEmptyAudio
	}

	var (
		errs    []error
		matched bool
	)
	for _, c := range d.chain {
		ok, strong := c.match(raw)
		if !ok {
			continue
		}
		matched = matched || strong
		samples, rate, channels, err := c.decode(raw)
		if err == nil && len(samples) == 0 {
			err = ErrEmptyAudio
		}
		if err != nil {
			d.logger.Debug("decoder failed", "format", c.name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		return Clip{PCM: d.convert(samples, rate, channels), Format: d.out, Source: c.name}, nil
	}
	if matched {
		return Clip{}, fmt.Errorf("%w: %w", ErrUndecodable, errors.Join(errs...))
	}

	if len(raw)%2 != 0 {
		return Clip{}, fmt.Errorf("%w: %w", ErrUndecodable, ErrOddPCMLength)
	}
	if d.stream == d.out {
		pcm := make([]byte, len(raw))
		copy(pcm, raw)
		return Clip{PCM: pcm, Format: d.out, Source: "pcm16"}, nil
	}
	samples, err := PCM16ToFloat32(raw)
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	return Clip{
		PCM:    d.convert(samples, d.stream.SampleRate, d.stream.Channels),
		Format: d.out,
		Source: "pcm16",
	}, nil
}

// DecodeContainer decodes a recognised container into mono samples at the
// container's own rate. Raw PCM is rejected with ErrUndecodable.
func (d *Decoder) DecodeContainer(raw []byte) ([]float32, int, error) {
	if len(raw) == 0 {
		return nil, 0, ErrEmptyAudio
	}
	var errs []error
	for _, c := range d.chain {
		if ok, _ := c.match(raw); !ok {
			continue
		}
		samples, rate, channels, err := c.decode(raw)
		if err == nil && len(samples) == 0 {
			err = ErrEmptyAudio
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		return Downmix(samples, channels), rate, nil
	}
	if len(errs) == 0 {
		return nil, 0, fmt.Errorf("%w: unknown container", ErrUndecodable)
	}
	return nil, 0, fmt.Errorf("%w: %w", ErrUndecodable, errors.Join(errs...))
}

// convert brings interleaved samples to the output rate and channel count.
func (d *Decoder) convert(samples []float32, rate, channels int) []byte {
	mono := Downmix(samples, channels)
	mono = ResampleLinear(mono, rate, d.out.SampleRate)
	return Float32ToPCM16(Upmix(mono, d.out.Channels), 32767)
}

func isWAV(b []byte) (bool, bool) {
	ok := len(b) >= 12 && string(b[:4]) == "RIFF" && string(b[8:12]) == "WAVE"
	return ok, ok
}

// isMP3 accepts an ID3 tag or an MPEG layer III frame header. A bare frame
// sync is a weak match since PCM16 samples near -1 start with 0xFFFF too.
func isMP3(b []byte) (bool, bool) {
	if len(b) >= 3 && string(b[:3]) == "ID3" {
		return true, true
	}
	if len(b) < 3 || b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return false, false
	}
	version := (b[1] >> 3) & 0x03
	layer := (b[1] >> 1) & 0x03
	bitrate := b[2] >> 4
	rate := (b[2] >> 2) & 0x03
	ok := version != 1 && layer == 1 && bitrate != 0 && bitrate != 0x0F && rate != 0x03
	return ok, false
}

func isOgg(b []byte) (bool, bool) {
	ok := len(b) >= 4 && string(b[:4]) == "OggS"
	return ok, ok
}

func decodeWAV(b []byte) ([]float32, int, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(b))
	if !dec.IsValidFile() {
		return nil, 0, 0, errors.New("invalid wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, err
	}
	if buf == nil || buf.Data == nil {
		return nil, 0, 0, errors.New("empty wav")
	}

	channels, rate := 1, 44100
	if buf.Format != nil {
		if buf.Format.NumChannels > 0 {
			channels = buf.Format.NumChannels
		}
		if buf.Format.SampleRate > 0 {
			rate = buf.Format.SampleRate
		}
	}
	return intSliceToFloat32(buf.Data, int(dec.BitDepth)), rate, channels, nil
}

func decodeMP3(b []byte) ([]float32, int, int, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(b))
	if err != nil {
		return nil, 0, 0, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, 0, err
	}
	ints := make([]int16, len(raw)/2)
	for i := range ints {
		ints[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}

	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}
	// go-mp3 always emits stereo
	return int16SliceToFloat32(ints), rate, 2, nil
}

func decodeVorbis(b []byte) ([]float32, int, int, error) {
	pcm, format, err := oggvorbis.ReadAll(bytes.NewReader(b))
	if err != nil {
		return nil, 0, 0, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, 0, 0, errors.New("invalid ogg/vorbis stream")
	}
	return pcm, format.SampleRate, format.Channels, nil
}

func decodeOpus(b []byte) ([]float32, int, int, error) {
	dec, err := popus.NewDecoder(bytes.NewReader(b))
	if err != nil {
		return nil, 0, 0, err
	}
	defer dec.Destroy()

	channels := dec.ChannelCount()
	if channels <= 0 {
		channels = 1
	}

	var (
		out []float32
		buf = make([]int16, 48000*channels/2)
	)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			out = append(out, int16SliceToFloat32(buf[:n*channels])...)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, 0, err
		}
	}
	// libopusfile always decodes at 48 kHz
	return out, 48000, channels, nil
}

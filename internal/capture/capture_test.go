package capture

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/idoll/idoll/internal/protocol"
	"github.com/idoll/idoll/internal/ws"
)

// fakeSource yields frames of a constant value, pacing reads by delay.
type fakeSource struct {
	mu      sync.Mutex
	value   float32
	size    int
	rate    int
	delay   time.Duration
	started int
	stopped int
	failAt  int
	reads   int
}

func (f *fakeSource) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return nil
}

func (f *fakeSource) Read() ([]float32, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failAt > 0 && f.reads >= f.failAt {
		return nil, io.ErrUnexpectedEOF
	}
	frame := make([]float32, f.size)
	for i := range frame {
		frame[i] = f.value
	}
	return frame, nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeSource) Close() error    { return nil }
func (f *fakeSource) SampleRate() int { return f.rate }

func decodePCM(t *testing.T, b64 string) []int16 {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return out
}

func TestEncodeSTT(t *testing.T) {
	samples := []float32{0.5, 0.5, -1, -1, 1, 1, -0.00001, 0}
	pcm := decodePCM(t, EncodeSTT(samples, 32000))
	want := []int16{16384, -32768, 32767, -1}
	if len(pcm) != len(want) {
		t.Fatalf("got %d samples, want %d", len(pcm), len(want))
	}
	for i := range want {
		if pcm[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, pcm[i], want[i])
		}
	}

	req := STTRequest(samples, SampleRate)
	if req.SampleRate != 16000 || req.Format != protocol.FormatPCM16 {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestEncodeFrameTruncates(t *testing.T) {
	pcm := decodePCM(t, EncodeFrame([]float32{0.5, -0.5, 2, -2}))
	want := []int16{16383, -16383, 32767, -32768}
	for i := range want {
		if pcm[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, pcm[i], want[i])
		}
	}
}

func TestFileRequestFallsBackToBlob(t *testing.T) {
	req, err := FileRequest([]byte("not an audio container"))
	if err != nil {
		t.Fatal(err)
	}
	if req.Format != protocol.FormatBlob || req.SampleRate != 0 {
		t.Errorf("expected blob request, got %+v", req)
	}
	if _, err := FileRequest(nil); !errors.Is(err, ErrNoAudio) {
		t.Errorf("expected ErrNoAudio, got %v", err)
	}
}

func TestMeter(t *testing.T) {
	m := NewMeter()
	if len(m.Levels()) != 50 {
		t.Fatalf("expected 50 bars")
	}
	loud := make([]float32, 100)
	for i := range loud {
		loud[i] = -0.1
	}
	for i := 0; i < 4; i++ {
		m.Push(loud)
	}
	if m.Levels()[49] != 0 {
		t.Error("meter should only sample every fifth frame")
	}
	m.Push(loud)
	levels := m.Levels()
	if got := levels[49]; got < 0.59 || got > 0.61 {
		t.Errorf("level = %v, want 0.6", got)
	}

	for i := range loud {
		loud[i] = 0.9
	}
	for i := 0; i < 5; i++ {
		m.Push(loud)
	}
	if got := m.Levels()[49]; got != 1 {
		t.Errorf("level should clamp to 1, got %v", got)
	}

	bars := m.Render(10)
	if n := len([]rune(bars)); n != 10 {
		t.Errorf("render width = %d", n)
	}
	if !strings.HasSuffix(bars, "█") {
		t.Errorf("loudest bar should be full: %q", bars)
	}
}

func TestRecorderStopReturnsSamples(t *testing.T) {
	src := &fakeSource{value: 0.25, size: 160, rate: SampleRate, delay: time.Millisecond}
	r := NewRecorder(src, time.Minute, NewMeter(), log.New(io.Discard))

	if _, err := r.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("expected ErrNotRecording, got %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("expected ErrAlreadyRecording, got %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	samples, err := r.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) == 0 || len(samples)%160 != 0 || samples[0] != 0.25 {
		t.Errorf("unexpected samples len=%d", len(samples))
	}
	if r.Recording() || src.stopped != 1 {
		t.Error("recorder should be stopped")
	}
}

func TestRecorderMaxDuration(t *testing.T) {
	src := &fakeSource{value: 0.1, size: 300, rate: 1000}
	r := NewRecorder(src, time.Second, nil, log.New(io.Discard))
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not stop at the limit")
	}
	samples, err := r.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 1000 {
		t.Errorf("got %d samples, want exactly 1000", len(samples))
	}
}

func TestRecorderSourceError(t *testing.T) {
	src := &fakeSource{size: 10, rate: SampleRate, failAt: 3}
	r := NewRecorder(src, 0, nil, log.New(io.Discard))
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	<-r.Done()
	if _, err := r.Stop(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected read error, got %v", err)
	}
}

type frameSink struct {
	mu     sync.Mutex
	frames []protocol.VADAudio
	reject bool
}

func (s *frameSink) Send(m protocol.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject {
		s.reject = false
		return ws.ErrThrottled
	}
	s.frames = append(s.frames, m.(protocol.VADAudio))
	return nil
}

func (s *frameSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func TestStreamerSendsFrames(t *testing.T) {
	src := &fakeSource{value: 0.5, size: FrameSize, rate: SampleRate, delay: time.Millisecond}
	sink := &frameSink{reject: true}
	s := NewStreamer(src, sink, nil, log.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if sink.count() < 3 {
		t.Fatalf("only %d frames sent", sink.count())
	}
	frame := decodePCM(t, sink.frames[0].AudioData)
	if len(frame) != FrameSize || frame[0] != 16383 {
		t.Errorf("unexpected frame len=%d first=%d", len(frame), frame[0])
	}
	if s.Sent() != sink.count() {
		t.Errorf("Sent() = %d, sink has %d", s.Sent(), sink.count())
	}
	if src.started != 1 || src.stopped != 1 {
		t.Errorf("source started=%d stopped=%d", src.started, src.stopped)
	}
}

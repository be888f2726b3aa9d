package voice

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/idoll/idoll/internal/audio"
	"github.com/idoll/idoll/internal/protocol"
	"github.com/idoll/idoll/internal/ws"
)

type fakeSink struct {
	mu      sync.Mutex
	played  []string
	stops   int
	release chan struct{}
	started chan string
}

func newFakeSink() *fakeSink {
	return &fakeSink{release: make(chan struct{}), started: make(chan string, 32)}
}

func (s *fakeSink) Play(ctx context.Context, payload string) error {
	s.mu.Lock()
	s.played = append(s.played, payload)
	s.mu.Unlock()
	s.started <- payload
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeSink) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
}

type fakeSender struct {
	mu        sync.Mutex
	connected bool
	sent      []protocol.Outbound
	err       error
}

func (f *fakeSender) Send(m protocol.Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeSender) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSender) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		out = append(out, m.MessageType())
	}
	return out
}

func (f *fakeSender) count(typ string) int {
	n := 0
	for _, t := range f.types() {
		if t == typ {
			n++
		}
	}
	return n
}

type fakeClips struct {
	mu   sync.Mutex
	data map[string][]string
	puts int
}

func newFakeClips() *fakeClips {
	return &fakeClips{data: map[string][]string{}}
}

func (f *fakeClips) Get(text string) ([]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.data[text]
	return p, ok
}

func (f *fakeClips) Put(text string, payloads []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[text] = payloads
	f.puts++
	return nil
}

type fakeSynth struct {
	out []byte
	err error
}

func (f fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return f.out, f.err
}

func discard() *log.Logger {
	return log.New(io.Discard)
}

func newTestController(t *testing.T, opts Options) *Controller {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = discard()
	}
	c, err := NewController(DefaultConfig(), opts)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitStarted(t *testing.T, s *fakeSink) string {
	t.Helper()
	select {
	case p := <-s.started:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("sink never started playing")
		return ""
	}
}

func waitIdle(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
}

func TestSpeakSendsRequestWhenConnected(t *testing.T) {
	sender := &fakeSender{connected: true}
	c := newTestController(t, Options{Sink: newFakeSink(), Sender: sender})

	if err := c.Speak("m1", "Hello **world**"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := c.Speaking(); got != "m1" {
		t.Errorf("Speaking() = %q, want m1", got)
	}
	if got := c.State(); got != StateRequesting {
		t.Errorf("State() = %v, want requesting", got)
	}

	sender.mu.Lock()
	req, ok := sender.sent[0].(protocol.TTSRequest)
	sender.mu.Unlock()
	if !ok {
		t.Fatalf("first message = %T, want TTSRequest", sender.sent[0])
	}
	if req.Text != "Hello world." {
		t.Errorf("request text = %q", req.Text)
	}
}

func TestAudioDrainResetsAndCaches(t *testing.T) {
	sink := newFakeSink()
	sender := &fakeSender{connected: true}
	clips := newFakeClips()
	c := newTestController(t, Options{Sink: sink, Sender: sender, Clips: clips})

	if err := c.Speak("m1", "Hi there"); err != nil {
		t.Fatal(err)
	}
	for _, chunk := range []protocol.AudioChunk{
		{AudioData: "AAAA", Text: "Hi "},
		{AudioData: "BBBB", Text: "there."},
	} {
		if err := c.HandleAudio(chunk); err != nil {
			t.Fatal(err)
		}
	}
	waitStarted(t, sink)
	if got := c.State(); got != StatePlaying {
		t.Errorf("State() = %v, want playing", got)
	}
	close(sink.release)
	waitIdle(t, c)

	if got := c.Speaking(); got != "" {
		t.Errorf("Speaking() = %q after drain", got)
	}
	if got := c.State(); got != StateIdle {
		t.Errorf("State() = %v, want idle", got)
	}
	cached, ok := clips.Get("Hi there.")
	if !ok || len(cached) != 2 || cached[0] != "AAAA" || cached[1] != "BBBB" {
		t.Errorf("cached = %v, %v", cached, ok)
	}
}

func TestPartialReplyIsNotCached(t *testing.T) {
	sink := newFakeSink()
	sender := &fakeSender{connected: true}
	clips := newFakeClips()
	c := newTestController(t, Options{Sink: sink, Sender: sender, Clips: clips})

	if err := c.Speak("m1", "hello there"); err != nil {
		t.Fatal(err)
	}
	_ = c.HandleAudio(protocol.AudioChunk{AudioData: "AAAA", Text: "hello "})
	waitStarted(t, sink)
	sink.release <- struct{}{}
	// the network stalls long enough for the queue to drain
	waitIdle(t, c)

	_ = c.HandleAudio(protocol.AudioChunk{AudioData: "BBBB", Text: "there."})
	waitStarted(t, sink)
	c.Stop()

	if clips.puts != 0 {
		t.Errorf("partial reply cached: %v", clips.data)
	}
	if err := c.Speak("m2", "hello there"); err != nil {
		t.Fatal(err)
	}
	if got := sender.count(protocol.TypeTTSRequest); got != 2 {
		t.Errorf("tts_request sent %d times, want 2", got)
	}
}

func TestReplyCachedAfterPlaybackGap(t *testing.T) {
	sink := newFakeSink()
	sender := &fakeSender{connected: true}
	clips := newFakeClips()
	c := newTestController(t, Options{Sink: sink, Sender: sender, Clips: clips})

	if err := c.Speak("m1", "hello there"); err != nil {
		t.Fatal(err)
	}
	_ = c.HandleAudio(protocol.AudioChunk{AudioData: "AAAA", Text: "Hello "})
	waitStarted(t, sink)
	sink.release <- struct{}{}
	waitIdle(t, c)
	if clips.puts != 0 {
		t.Fatalf("cached before the reply was complete: %v", clips.data)
	}

	_ = c.HandleAudio(protocol.AudioChunk{AudioData: "BBBB", Text: "there."})
	waitStarted(t, sink)
	sink.release <- struct{}{}
	waitIdle(t, c)

	cached, ok := clips.Get("hello there.")
	if !ok || len(cached) != 2 || cached[0] != "AAAA" || cached[1] != "BBBB" {
		t.Errorf("cached = %v, %v", cached, ok)
	}
}

func TestStaleChunksNotCachedForNextReply(t *testing.T) {
	sink := newFakeSink()
	sender := &fakeSender{connected: true}
	clips := newFakeClips()
	c := newTestController(t, Options{Sink: sink, Sender: sender, Clips: clips})

	if err := c.Speak("m1", "first reply"); err != nil {
		t.Fatal(err)
	}
	_ = c.HandleAudio(protocol.AudioChunk{AudioData: "A1A1", Text: "first "})
	waitStarted(t, sink)

	if err := c.Speak("m2", "second reply"); err != nil {
		t.Fatal(err)
	}
	// the server was still streaming the first reply
	_ = c.HandleAudio(protocol.AudioChunk{AudioData: "A2A2", Text: "reply."})
	_ = c.HandleAudio(protocol.AudioChunk{AudioData: "B1B1", Text: "second reply."})
	close(sink.release)
	waitIdle(t, c)

	cached, ok := clips.Get("second reply.")
	if !ok || len(cached) != 1 || cached[0] != "B1B1" {
		t.Errorf("cached = %v, %v, want [B1B1]", cached, ok)
	}
	if _, ok := clips.Get("first reply."); ok {
		t.Error("stopped reply was cached")
	}
}

func TestChunkWithoutTextSkipsCache(t *testing.T) {
	sink := newFakeSink()
	clips := newFakeClips()
	c := newTestController(t, Options{Sink: sink, Sender: &fakeSender{connected: true}, Clips: clips})

	if err := c.Speak("m1", "Hi there"); err != nil {
		t.Fatal(err)
	}
	_ = c.HandleAudio(protocol.AudioChunk{AudioData: "AAAA", Text: "Hi "})
	_ = c.HandleAudio(protocol.AudioChunk{AudioData: "BBBB"})
	_ = c.HandleAudio(protocol.AudioChunk{AudioData: "CCCC", Text: "there."})
	close(sink.release)
	waitIdle(t, c)

	if clips.puts != 0 {
		t.Errorf("unverifiable reply cached: %v", clips.data)
	}
}

func TestSpeakingUpdateSurvivesSlowReader(t *testing.T) {
	sink := newFakeSink()
	c := newTestController(t, Options{Sink: sink, Sender: &fakeSender{connected: true}})

	for i := 0; i < 2*maxBacklog; i++ {
		c.publish(StateChangedMsg{State: StateIdle, PrevState: StateIdle})
	}
	if err := c.Speak("m1", "Hello"); err != nil {
		t.Fatal(err)
	}
	c.Stop()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-c.Updates():
			if sm, ok := msg.(SpeakingMsg); ok && sm.MessageID == "m1" && !sm.Active {
				return
			}
		case <-deadline:
			t.Fatal("speaking stop update was dropped")
		}
	}
}

func TestSpeakSameMessageStops(t *testing.T) {
	sink := newFakeSink()
	sender := &fakeSender{connected: true}
	c := newTestController(t, Options{Sink: sink, Sender: sender})

	if err := c.Speak("m1", "Hello"); err != nil {
		t.Fatal(err)
	}
	_ = c.HandleAudio(protocol.AudioChunk{AudioData: "AAAA"})
	_ = c.HandleAudio(protocol.AudioChunk{AudioData: "BBBB"})
	waitStarted(t, sink)

	if err := c.Speak("m1", "Hello"); err != nil {
		t.Fatal(err)
	}
	if got := c.Speaking(); got != "" {
		t.Errorf("Speaking() = %q, want none", got)
	}
	if got := c.Queue().Len(); got != 0 {
		t.Errorf("queue length = %d, want 0", got)
	}
	if got := sender.count(protocol.TypeStopAudio); got != 1 {
		t.Errorf("stop_audio sent %d times, want 1", got)
	}
	if got := sender.count(protocol.TypeTTSRequest); got != 1 {
		t.Errorf("tts_request sent %d times, want 1", got)
	}
}

func TestSpeakOtherMessageReplacesCurrent(t *testing.T) {
	sink := newFakeSink()
	sender := &fakeSender{connected: true}
	c := newTestController(t, Options{Sink: sink, Sender: sender})

	_ = c.Speak("m1", "First")
	_ = c.HandleAudio(protocol.AudioChunk{AudioData: "AAAA"})
	waitStarted(t, sink)

	if err := c.Speak("m2", "Second"); err != nil {
		t.Fatal(err)
	}
	if got := c.Speaking(); got != "m2" {
		t.Errorf("Speaking() = %q, want m2", got)
	}
	want := []string{protocol.TypeTTSRequest, protocol.TypeStopAudio, protocol.TypeTTSRequest}
	got := sender.types()
	if len(got) != len(want) {
		t.Fatalf("sent %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sent[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSpeakCacheHitSkipsServer(t *testing.T) {
	sink := newFakeSink()
	sender := &fakeSender{connected: true}
	clips := newFakeClips()
	clips.data["Cached line."] = []string{"CCCC"}
	c := newTestController(t, Options{Sink: sink, Sender: sender, Clips: clips})

	if err := c.Speak("m1", "Cached line"); err != nil {
		t.Fatal(err)
	}
	if got := waitStarted(t, sink); got != "CCCC" {
		t.Errorf("played %q, want CCCC", got)
	}
	if got := sender.count(protocol.TypeTTSRequest); got != 0 {
		t.Errorf("tts_request sent %d times on cache hit", got)
	}
	close(sink.release)
	waitIdle(t, c)
	if clips.puts != 0 {
		t.Errorf("cache hit was stored again")
	}
}

func TestSpeakFallsBackToSynthesizer(t *testing.T) {
	sink := newFakeSink()
	c := newTestController(t, Options{
		Sink:        sink,
		Sender:      &fakeSender{},
		Synthesizer: fakeSynth{out: []byte("RIFF")},
	})

	if err := c.Speak("m1", "Offline"); err != nil {
		t.Fatal(err)
	}
	if got := waitStarted(t, sink); got != audio.EncodeBase64([]byte("RIFF")) {
		t.Errorf("played %q", got)
	}
	close(sink.release)
	waitIdle(t, c)
	if got := c.Speaking(); got != "" {
		t.Errorf("Speaking() = %q after drain", got)
	}
}

func TestSpeakWithoutFallback(t *testing.T) {
	c := newTestController(t, Options{Sink: newFakeSink(), Sender: &fakeSender{}})

	err := c.Speak("m1", "Offline")
	if !errors.Is(err, ErrNoFallback) {
		t.Fatalf("err = %v, want ErrNoFallback", err)
	}
	if got := c.Speaking(); got != "" {
		t.Errorf("Speaking() = %q, want none", got)
	}
}

func TestSpeakEmptyText(t *testing.T) {
	c := newTestController(t, Options{Sink: newFakeSink(), Sender: &fakeSender{connected: true}})
	if err := c.Speak("m1", "   "); !errors.Is(err, ErrNothingToSpeak) {
		t.Fatalf("err = %v, want ErrNothingToSpeak", err)
	}
}

func TestSynthesizerFailureResets(t *testing.T) {
	c := newTestController(t, Options{
		Sink:        newFakeSink(),
		Sender:      &fakeSender{},
		Synthesizer: fakeSynth{err: errors.New("boom")},
	})

	if err := c.Speak("m1", "Offline"); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-c.Updates():
			if em, ok := msg.(ErrorMsg); ok {
				if em.Component != "synth" {
					t.Errorf("component = %q, want synth", em.Component)
				}
				if got := c.Speaking(); got != "" {
					t.Errorf("Speaking() = %q after failure", got)
				}
				return
			}
		case <-deadline:
			t.Fatal("no error published")
		}
	}
}

func TestStopDropsQueuedAudio(t *testing.T) {
	sink := newFakeSink()
	sender := &fakeSender{connected: true}
	c := newTestController(t, Options{Sink: sink, Sender: sender})

	for _, p := range []string{"AAAA", "BBBB", "CCCC"} {
		_ = c.HandleAudio(protocol.AudioChunk{AudioData: p})
	}
	waitStarted(t, sink)

	if got := c.Stop(); got != 3 {
		t.Errorf("Stop() dropped %d, want 3", got)
	}
	if c.Queue().Active() {
		t.Error("queue still active after Stop")
	}
	if got := sender.count(protocol.TypeStopAudio); got != 1 {
		t.Errorf("stop_audio sent %d times", got)
	}
}

func TestStopWhileDisconnectedSendsNothing(t *testing.T) {
	sender := &fakeSender{}
	c := newTestController(t, Options{Sink: newFakeSink(), Sender: sender})
	c.Stop()
	if got := len(sender.types()); got != 0 {
		t.Errorf("sent %d messages while disconnected", got)
	}
}

func TestUnsolicitedAudioPlays(t *testing.T) {
	sink := newFakeSink()
	c := newTestController(t, Options{Sink: sink, Sender: &fakeSender{connected: true}})

	if err := c.HandleAudio(protocol.AudioChunk{AudioData: "AAAA"}); err != nil {
		t.Fatal(err)
	}
	waitStarted(t, sink)
	if got := c.State(); got != StatePlaying {
		t.Errorf("State() = %v, want playing", got)
	}
	close(sink.release)
	waitIdle(t, c)
}

func TestClosedController(t *testing.T) {
	c := newTestController(t, Options{Sink: newFakeSink(), Sender: &fakeSender{connected: true}})
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Speak("m1", "hi"); !errors.Is(err, ErrControllerClosed) {
		t.Errorf("Speak after Close = %v", err)
	}
	if err := c.ToggleRecording(); !errors.Is(err, ErrControllerClosed) {
		t.Errorf("ToggleRecording after Close = %v", err)
	}
}

func TestRecordingNeedsMicrophone(t *testing.T) {
	c := newTestController(t, Options{Sink: newFakeSink(), Sender: &fakeSender{connected: true}})
	err := c.ToggleRecording()
	if !errors.Is(err, ErrNoMicrophone) {
		t.Fatalf("err = %v, want ErrNoMicrophone", err)
	}
	if IsRecoverableError(err) {
		t.Error("missing microphone reported as recoverable")
	}
}

func TestRecordingNotConnected(t *testing.T) {
	src := newTickSource(16000, 160)
	c := newTestController(t, Options{
		Sink:       newFakeSink(),
		Sender:     &fakeSender{},
		Microphone: src.open,
	})

	if err := c.ToggleRecording(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	err := c.ToggleRecording()
	if !errors.Is(err, ws.ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	if c.Recording() {
		t.Error("still recording")
	}
}

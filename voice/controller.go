// Package voice ties the audio queue, the microphone and the server
// together behind the play, record and call controls.
package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"golang.org/x/text/unicode/norm"

	"github.com/idoll/idoll/internal/audio"
	"github.com/idoll/idoll/internal/capture"
	"github.com/idoll/idoll/internal/protocol"
	"github.com/idoll/idoll/internal/queue"
	"github.com/idoll/idoll/internal/speech"
	"github.com/idoll/idoll/internal/ws"
)

// Sender delivers protocol messages to the server.
type Sender interface {
	Send(msg protocol.Outbound) error
	Connected() bool
}

// ClipStore caches the audio chunks the server returned for a text.
type ClipStore interface {
	Get(text string) ([]string, bool)
	Put(text string, payloads []string) error
}

// Microphone opens a capture source. Each recording or call gets its own
// source and closes it when done.
type Microphone func() (capture.Source, error)

// Options holds the controller's collaborators. Only Sink and Sender are
// required.
type Options struct {
	Sink        queue.Sink
	Sender      Sender
	Clips       ClipStore
	Synthesizer speech.Synthesizer
	Microphone  Microphone
	Logger      *log.Logger
}

// Controller drives playback, push-to-talk recording and calls. It owns the
// audio queue and reports every change as a Bubble Tea message on Updates.
type Controller struct {
	cfg     Config
	queue   *queue.Queue
	sink    queue.Sink
	sender  Sender
	clips   ClipStore
	synth   speech.Synthesizer
	extract *speech.Extractor
	mic     Microphone
	meter   *capture.Meter
	logger  *log.Logger
	updates *mailbox

	// op serializes Speak, Stop and the fallback synthesizer's enqueue so
	// stale audio never lands after a stop.
	op sync.Mutex

	mu           sync.Mutex
	machine      *StateMachine
	closed       bool
	speaking     string // message owning the play control
	spoken       string // text of the outstanding tts_request
	collecting   bool
	collected    []string
	heard        string // chunk text matched against spoken so far
	gen          uint64
	synthCancel  context.CancelFunc
	rec          *recording
	transcribing bool
	call         *call
}

type recording struct {
	rec *capture.Recorder
	src capture.Source
}

type call struct {
	cancel   context.CancelFunc
	done     chan struct{}
	started  time.Time
	streamer *capture.Streamer
}

// NewController creates a controller playing onto opts.Sink.
func NewController(cfg Config, opts Options) (*Controller, error) {
	if opts.Sink == nil || opts.Sender == nil {
		return nil, fmt.Errorf("%w: sink and sender are required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	extract := speech.NewExtractor()
	extract.IncludeCode = !cfg.SkipCodeBlocks

	c := &Controller{
		cfg:     cfg,
		sink:    opts.Sink,
		sender:  opts.Sender,
		clips:   opts.Clips,
		synth:   opts.Synthesizer,
		extract: extract,
		mic:     opts.Microphone,
		meter:   capture.NewMeter(),
		logger:  logger.WithPrefix("voice"),
		updates: newMailbox(64),
		machine: NewStateMachine(),
	}
	c.queue = queue.New(opts.Sink, logger.WithPrefix("queue"))
	c.queue.Subscribe(c.onQueue)
	c.machine.OnTransition(func(from, to StateType) {
		c.logger.Debug("state", "from", from, "to", to)
		c.publish(StateChangedMsg{State: to, PrevState: from, Timestamp: time.Now()})
	})
	return c, nil
}

// Updates returns the channel of Bubble Tea messages.
func (c *Controller) Updates() <-chan tea.Msg {
	return c.updates.out
}

// Meter returns the level meter fed by recordings and calls.
func (c *Controller) Meter() *capture.Meter {
	return c.meter
}

// State returns the current playback state.
func (c *Controller) State() StateType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current()
}

// Speaking returns the id of the message owning the play control.
func (c *Controller) Speaking() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Queue exposes the playback queue.
func (c *Controller) Queue() *queue.Queue {
	return c.queue
}

// WaitIdle blocks until playback drains or ctx is done.
func (c *Controller) WaitIdle(ctx context.Context) error {
	return c.queue.WaitIdle(ctx)
}

// SetVolume changes the output volume if the sink supports it.
func (c *Controller) SetVolume(v float64) error {
	vs, ok := c.sink.(interface{ SetVolume(float64) error })
	if !ok {
		return nil
	}
	return vs.SetVolume(v)
}

// Speak plays messageID's text. Speaking the message that is already
// playing stops it instead. Cached audio is replayed, otherwise the server
// is asked for speech and, while disconnected, the local synthesizer.
func (c *Controller) Speak(messageID, text string) error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	same := messageID != "" && c.speaking == messageID
	busy := c.speaking != "" || c.machine.Current() != StateIdle
	c.mu.Unlock()

	if same {
		c.stopLocked()
		return nil
	}
	if busy || c.queue.Active() {
		c.stopLocked()
	}

	spoken := c.extract.PlainText(text)
	if spoken == "" {
		return ErrNothingToSpeak
	}

	c.mu.Lock()
	c.gen++
	c.speaking = messageID
	c.mu.Unlock()
	c.publish(SpeakingMsg{MessageID: messageID, Active: true})

	if c.clips != nil {
		if payloads, ok := c.clips.Get(spoken); ok {
			c.logger.Debug("clip cache hit", "chunks", len(payloads))
			for _, p := range payloads {
				if err := c.queue.Enqueue(p); err != nil {
					c.resetSpeaking(messageID)
					return NewError(err, "player", "speak")
				}
			}
			return nil
		}
	}

	if c.sender.Connected() {
		c.mu.Lock()
		c.spoken = spoken
		c.collecting = true
		c.collected = nil
		c.heard = ""
		c.machine.Transition(StateRequesting)
		c.mu.Unlock()

		err := c.sender.Send(protocol.NewTTSRequest(spoken))
		if err == nil {
			return nil
		}
		c.logger.Warn("tts request failed", "err", err)
		c.mu.Lock()
		c.spoken = ""
		c.collecting = false
		c.heard = ""
		c.machine.Transition(StateIdle)
		c.mu.Unlock()
	}

	if c.synth != nil {
		c.startSynth(spoken)
		return nil
	}

	c.resetSpeaking(messageID)
	return NewError(ErrNoFallback, "player", "speak").WithSeverity(SeverityWarning)
}

// startSynth runs the local synthesizer in the background. The caller
// holds op.
func (c *Controller) startSynth(text string) {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.synthCancel = cancel
	gen := c.gen
	id := c.speaking
	c.machine.Transition(StateSynthesizing)
	c.mu.Unlock()

	go func() {
		defer cancel()
		wav, err := c.synth.Synthesize(ctx, text)

		c.op.Lock()
		defer c.op.Unlock()

		c.mu.Lock()
		stale := c.gen != gen
		if !stale {
			c.synthCancel = nil
		}
		c.mu.Unlock()
		if stale {
			return
		}

		if err == nil {
			err = c.queue.Enqueue(audio.EncodeBase64(wav))
		}
		if err != nil {
			c.resetSpeaking(id)
			c.mu.Lock()
			c.machine.Transition(StateIdle)
			c.mu.Unlock()
			c.publishError(NewError(err, "synth", "speak"))
		}
	}()
}

// Stop halts playback, drops queued audio and cancels any pending request.
// It returns the number of queued chunks dropped.
func (c *Controller) Stop() int {
	c.op.Lock()
	defer c.op.Unlock()
	return c.stopLocked()
}

func (c *Controller) stopLocked() int {
	c.mu.Lock()
	id := c.speaking
	c.speaking = ""
	c.spoken = ""
	c.collecting = false
	c.collected = nil
	c.heard = ""
	c.gen++
	cancel := c.synthCancel
	c.synthCancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	dropped := c.queue.Clear()

	c.mu.Lock()
	c.machine.Transition(StateIdle)
	c.mu.Unlock()

	if id != "" {
		c.publish(SpeakingMsg{MessageID: id, Active: false})
	}
	if c.sender.Connected() {
		if err := c.sender.Send(protocol.NewStopAudio()); err != nil {
			c.logger.Debug("stop_audio not sent", "err", err)
		}
	}
	return dropped
}

// HandleAudio enqueues a chunk received from the server. Chunks whose text
// continues an outstanding tts_request are also kept for the clip cache.
func (c *Controller) HandleAudio(chunk protocol.AudioChunk) error {
	if chunk.AudioData == "" {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.collecting {
		c.collectLocked(chunk)
	}
	c.mu.Unlock()

	if err := c.queue.Enqueue(chunk.AudioData); err != nil {
		return NewError(err, "player", "enqueue")
	}
	return nil
}

// collectLocked keeps chunk for the clip cache when its text continues the
// outstanding request. Chunks before the first match belong to an earlier
// reply and are skipped. A later mismatch or a chunk without text gives up
// on caching this reply.
func (c *Controller) collectLocked(chunk protocol.AudioChunk) {
	said := c.heard + chunk.Text
	switch {
	case chunk.Text != "" && strings.HasPrefix(spokenForm(c.spoken), spokenForm(said)):
		c.collected = append(c.collected, chunk.AudioData)
		c.heard = said
	case chunk.Text != "" && len(c.collected) == 0:
		c.logger.Debug("chunk skipped for cache", "text", chunk.Text)
	default:
		c.collecting = false
		c.collected = nil
		c.heard = ""
	}
}

// completeLocked reports whether the collected chunks voice the whole request.
func (c *Controller) completeLocked() bool {
	return c.collecting && len(c.collected) > 0 && spokenForm(c.heard) == spokenForm(c.spoken)
}

// spokenForm folds text so the server's chunk text compares equal to the
// request regardless of spacing, case or Unicode composition.
func spokenForm(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(norm.NFC.String(s)), ""))
}

func (c *Controller) onQueue(ev queue.Event) {
	c.publish(PlaybackMsg{Active: ev.Active, Reason: ev.Reason, Pending: c.queue.Len()})

	if ev.Active {
		c.mu.Lock()
		c.machine.Transition(StatePlaying)
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	if c.machine.Current() != StatePlaying {
		// a request issued after the queue stopped owns the state now
		c.mu.Unlock()
		return
	}
	c.machine.Transition(StateIdle)
	if ev.Reason != queue.ReasonDrained {
		c.mu.Unlock()
		return
	}
	id := c.speaking
	c.speaking = ""
	var text string
	var payloads []string
	if c.completeLocked() {
		text = c.spoken
		payloads = c.collected
		c.spoken = ""
		c.collecting = false
		c.collected = nil
		c.heard = ""
	}
	c.mu.Unlock()

	if payloads != nil && c.clips != nil {
		if err := c.clips.Put(text, payloads); err != nil {
			c.logger.Debug("clip not cached", "err", err)
		}
	}
	if id != "" {
		c.publish(SpeakingMsg{MessageID: id, Active: false})
	}
}

func (c *Controller) resetSpeaking(id string) {
	c.mu.Lock()
	if c.speaking == id {
		c.speaking = ""
	}
	c.mu.Unlock()
	c.publish(SpeakingMsg{MessageID: id, Active: false})
}

// Recording reports whether push-to-talk is active.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec != nil
}

// Transcribing reports whether a transcription is pending.
func (c *Controller) Transcribing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcribing
}

// ToggleRecording starts push-to-talk, or stops it and uploads the
// recording for transcription.
func (c *Controller) ToggleRecording() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	active := c.rec != nil
	c.mu.Unlock()

	if active {
		return c.finishRecording()
	}
	return c.startRecording()
}

func (c *Controller) startRecording() error {
	if c.mic == nil {
		return NewError(ErrNoMicrophone, "recorder", "start")
	}
	src, err := c.mic()
	if err != nil {
		return NewError(fmt.Errorf("%w: %v", ErrNoMicrophone, err), "recorder", "start")
	}
	rec := capture.NewRecorder(src, c.cfg.Record.MaxDuration, c.meter, c.logger)
	if err := rec.Start(); err != nil {
		_ = src.Close()
		return NewError(err, "recorder", "start")
	}
	r := &recording{rec: rec, src: src}

	c.mu.Lock()
	c.rec = r
	c.mu.Unlock()
	c.publish(RecordingMsg{Active: true})

	go func() {
		<-rec.Done()
		c.mu.Lock()
		current := c.rec == r
		c.mu.Unlock()
		if !current {
			return
		}
		if err := c.finishRecording(); err != nil {
			var verr *Error
			if !errors.As(err, &verr) {
				verr = NewError(err, "recorder", "stop")
			}
			c.publishError(verr)
		}
	}()
	return nil
}

func (c *Controller) finishRecording() error {
	c.mu.Lock()
	r := c.rec
	c.rec = nil
	c.mu.Unlock()
	if r == nil {
		return NewError(capture.ErrNotRecording, "recorder", "stop")
	}

	samples, err := r.rec.Stop()
	rate := r.src.SampleRate()
	if cerr := r.src.Close(); cerr != nil {
		c.logger.Debug("close microphone", "err", cerr)
	}
	c.publish(RecordingMsg{Active: false})
	if err != nil {
		return NewError(err, "recorder", "stop")
	}
	if len(samples) == 0 {
		return NewError(ErrRecordingEmpty, "recorder", "stop").WithSeverity(SeverityWarning)
	}
	if !c.sender.Connected() {
		return NewError(ws.ErrNotConnected, "recorder", "transcribe")
	}
	if err := c.sender.Send(capture.STTRequest(samples, rate)); err != nil {
		return NewError(err, "recorder", "transcribe")
	}

	c.mu.Lock()
	c.transcribing = true
	c.mu.Unlock()
	c.publish(TranscribingMsg{Samples: len(samples)})
	c.logger.Info("recording uploaded", "samples", len(samples), "rate", rate)
	return nil
}

// Transcribed marks the pending transcription as answered.
func (c *Controller) Transcribed() {
	c.mu.Lock()
	c.transcribing = false
	c.mu.Unlock()
}

// InCall reports whether a call is active and when it started.
func (c *Controller) InCall() (bool, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call == nil {
		return false, time.Time{}
	}
	return true, c.call.started
}

// StartCall streams microphone frames to the server until EndCall.
func (c *Controller) StartCall() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.call != nil {
		c.mu.Unlock()
		return NewError(ErrAlreadyInCall, "call", "start")
	}
	c.mu.Unlock()

	if c.mic == nil {
		return NewError(ErrNoMicrophone, "call", "start")
	}
	src, err := c.mic()
	if err != nil {
		return NewError(fmt.Errorf("%w: %v", ErrNoMicrophone, err), "call", "start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cl := &call{
		cancel:   cancel,
		done:     make(chan struct{}),
		started:  time.Now(),
		streamer: capture.NewStreamer(src, c.sender, c.meter, c.logger),
	}

	c.mu.Lock()
	if c.call != nil {
		c.mu.Unlock()
		cancel()
		_ = src.Close()
		return NewError(ErrAlreadyInCall, "call", "start")
	}
	c.call = cl
	c.mu.Unlock()

	c.meter.Reset()
	c.publish(CallMsg{Active: true, Started: cl.started})

	go func() {
		defer close(cl.done)
		err := cl.streamer.Run(ctx)
		if cerr := src.Close(); cerr != nil {
			c.logger.Debug("close microphone", "err", cerr)
		}

		c.mu.Lock()
		if c.call == cl {
			c.call = nil
		}
		c.mu.Unlock()
		c.publish(CallMsg{Active: false, Started: cl.started, Sent: cl.streamer.Sent()})
		if err != nil {
			c.publishError(NewError(err, "call", "stream"))
		}
	}()
	return nil
}

// EndCall stops the active call and waits for the stream to finish.
func (c *Controller) EndCall() error {
	c.mu.Lock()
	cl := c.call
	c.call = nil
	c.mu.Unlock()
	if cl == nil {
		return NewError(ErrNotInCall, "call", "end")
	}
	cl.cancel()
	<-cl.done
	return nil
}

// ToggleCall starts a call or ends the active one.
func (c *Controller) ToggleCall() error {
	if active, _ := c.InCall(); active {
		return c.EndCall()
	}
	return c.StartCall()
}

// Close stops playback, recording and calls. The controller is unusable
// afterwards.
func (c *Controller) Close() error {
	c.Stop()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	r := c.rec
	c.rec = nil
	inCall := c.call != nil
	c.mu.Unlock()

	if r != nil {
		_, _ = r.rec.Stop()
		_ = r.src.Close()
	}
	if inCall {
		_ = c.EndCall()
	}
	err := c.queue.Close()
	c.updates.close()
	return err
}

func (c *Controller) publish(msg tea.Msg) {
	if !c.updates.post(msg) {
		c.logger.Debug("update dropped", "msg", fmt.Sprintf("%T", msg))
	}
}

func (c *Controller) publishError(err *Error) {
	c.logger.Warn("voice error", "component", err.Component, "action", err.Action, "err", err.Err)
	c.publish(NewErrorMsg(err))
}

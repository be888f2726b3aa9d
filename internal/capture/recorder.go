package capture

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultMaxDuration bounds a push-to-talk recording.
const DefaultMaxDuration = 60 * time.Second

// Recorder captures a push-to-talk recording.
type Recorder struct {
	src    Source
	max    time.Duration
	meter  *Meter
	logger *log.Logger

	mu        sync.Mutex
	recording bool
	samples   []float32
	err       error
	stop      chan struct{}
	done      chan struct{}
}

// NewRecorder records from src for at most max. meter may be nil.
func NewRecorder(src Source, max time.Duration, meter *Meter, logger *log.Logger) *Recorder {
	if max <= 0 {
		max = DefaultMaxDuration
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{src: src, max: max, meter: meter, logger: logger.WithPrefix("recorder")}
}

// Start begins recording.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return ErrAlreadyRecording
	}
	if err := r.src.Start(); err != nil {
		return err
	}
	if r.meter != nil {
		r.meter.Reset()
	}
	r.recording = true
	r.samples = nil
	r.err = nil
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(r.stop, r.done)
	return nil
}

func (r *Recorder) loop(stop, done chan struct{}) {
	defer close(done)
	limit := int(r.max.Seconds() * float64(r.src.SampleRate()))
	n := 0
	for {
		select {
		case <-stop:
			return
		default:
		}
		frame, err := r.src.Read()
		if err != nil {
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
			r.logger.Warn("read failed", "err", err)
			return
		}
		if r.meter != nil {
			r.meter.Push(frame)
		}
		if n+len(frame) > limit {
			frame = frame[:limit-n]
		}
		r.mu.Lock()
		r.samples = append(r.samples, frame...)
		r.mu.Unlock()
		n += len(frame)
		if n >= limit {
			r.logger.Info("max duration reached", "max", r.max)
			return
		}
	}
}

// Done is closed when the recording stops on its own, at the duration
// limit or on a device error. Stop must still be called.
func (r *Recorder) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Recording reports whether Start was called without a matching Stop.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Stop ends the recording and returns the captured samples.
func (r *Recorder) Stop() ([]float32, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	r.recording = false
	stop, done := r.stop, r.done
	r.mu.Unlock()

	close(stop)
	<-done
	if err := r.src.Stop(); err != nil {
		r.logger.Debug("stop source", "err", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if len(r.samples) == 0 {
		return nil, ErrNoAudio
	}
	out := r.samples
	r.samples = nil
	return out, nil
}

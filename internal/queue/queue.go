package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// ErrQueueClosed is returned when operations are attempted on a closed queue
	ErrQueueClosed = errors.New("queue is closed")

	// ErrEmptyPayload is returned when an empty payload is enqueued
	ErrEmptyPayload = errors.New("empty audio payload")
)

// Sink plays one payload at a time.
type Sink interface {
	// Play blocks until the payload has finished playing, failed, or ctx
	// was cancelled.
	Play(ctx context.Context, payload string) error
	// Stop halts in-flight output immediately.
	Stop()
}

// Reason describes why the queue changed state.
type Reason int

const (
	// ReasonStarted means a payload arrived while the queue was idle.
	ReasonStarted Reason = iota
	// ReasonDrained means the last payload finished and nothing was waiting.
	ReasonDrained
	// ReasonCleared means Clear interrupted an active queue.
	ReasonCleared
)

// String returns the string representation of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonStarted:
		return "started"
	case ReasonDrained:
		return "drained"
	case ReasonCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Event is delivered to observers on every idle/active transition.
type Event struct {
	Active bool
	Reason Reason
}

// Observer receives queue transitions. Observers run without the queue lock
// held and may call back into the queue.
type Observer func(Event)

// Stats tracks queue metrics.
type Stats struct {
	Enqueued    int64
	Played      int64
	Failed      int64
	Cleared     int64
	PeakLength  int
	LastEnqueue time.Time
}

// Queue is a FIFO of audio payloads drained onto a Sink.
type Queue struct {
	sink   Sink
	logger *log.Logger

	mu     sync.Mutex
	items  []string
	active bool
	closed bool
	// gen changes on every Clear. A drain loop that sees a different
	// generation than it started with exits without touching state.
	gen       uint64
	cancel    context.CancelFunc
	playing   bool
	idle      chan struct{}
	observers []Observer
	stats     Stats

	pending    []pendingEvent
	delivering bool

	wg sync.WaitGroup
}

// pendingEvent is an event waiting for delivery. done, when set, is closed
// once observers have seen the event so WaitIdle returns after them.
type pendingEvent struct {
	ev   Event
	done chan struct{}
}

// New creates an idle queue playing onto sink.
func New(sink Sink, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.WithPrefix("queue")
	}
	return &Queue{
		sink:   sink,
		logger: logger,
	}
}

// Subscribe registers an observer for state transitions.
func (q *Queue) Subscribe(o Observer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.observers = append(q.observers, o)
}

// Enqueue appends payload. If the queue was idle it becomes active and
// starts draining straight away; otherwise the payload waits its turn.
func (q *Queue) Enqueue(payload string) error {
	if payload == "" {
		return ErrEmptyPayload
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, payload)
	q.stats.Enqueued++
	q.stats.LastEnqueue = time.Now()
	if len(q.items) > q.stats.PeakLength {
		q.stats.PeakLength = len(q.items)
	}
	if q.active {
		q.mu.Unlock()
		return nil
	}

	q.transitionLocked(true, ReasonStarted)
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.idle = make(chan struct{})
	gen := q.gen
	q.wg.Add(1)
	q.mu.Unlock()

	q.flush()
	go q.drain(ctx, gen)
	return nil
}

// drain plays payloads until the queue is empty or the generation changes.
func (q *Queue) drain(ctx context.Context, gen uint64) {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if q.gen != gen {
			q.mu.Unlock()
			return
		}
		if len(q.items) == 0 {
			q.transitionLocked(false, ReasonDrained)
			q.cancel = nil
			q.mu.Unlock()
			q.flush()
			return
		}
		payload := q.items[0]
		q.items[0] = ""
		q.items = q.items[1:]
		q.playing = true
		q.mu.Unlock()

		err := q.sink.Play(ctx, payload)

		q.mu.Lock()
		if q.gen != gen {
			q.mu.Unlock()
			return
		}
		q.playing = false
		if err != nil {
			q.stats.Failed++
		} else {
			q.stats.Played++
		}
		q.mu.Unlock()

		if err != nil {
			q.logger.Warn("skipping chunk", "err", err)
		}
	}
}

// Clear drops every waiting payload, halts the one playing and returns the
// queue to idle before returning. It reports how many payloads were
// discarded, including the interrupted one.
func (q *Queue) Clear() int {
	q.mu.Lock()
	n := len(q.items)
	q.items = nil
	q.gen++
	wasActive := q.active
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	if q.playing {
		n++
		q.playing = false
	}
	if wasActive {
		q.sink.Stop()
		q.transitionLocked(false, ReasonCleared)
	}
	q.stats.Cleared += int64(n)
	q.mu.Unlock()

	q.flush()
	if n > 0 {
		q.logger.Debug("cleared queue", "dropped", n)
	}
	return n
}

// transitionLocked records a state change for delivery. mu must be held.
func (q *Queue) transitionLocked(active bool, reason Reason) {
	q.active = active
	p := pendingEvent{ev: Event{Active: active, Reason: reason}}
	if !active {
		p.done = q.idle
	}
	q.pending = append(q.pending, p)
}

// flush delivers pending events in order. Only one goroutine delivers at a
// time; anyone else who queued an event leaves it for the deliverer.
func (q *Queue) flush() {
	q.mu.Lock()
	if q.delivering {
		q.mu.Unlock()
		return
	}
	q.delivering = true
	for len(q.pending) > 0 {
		p := q.pending[0]
		q.pending = q.pending[1:]
		observers := make([]Observer, len(q.observers))
		copy(observers, q.observers)
		q.mu.Unlock()

		for _, o := range observers {
			o(p.ev)
		}

		q.mu.Lock()
		if p.done != nil {
			close(p.done)
			if q.idle == p.done {
				q.idle = nil
			}
		}
	}
	q.delivering = false
	q.mu.Unlock()
}

// Active reports whether a payload is playing or about to play.
func (q *Queue) Active() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Len returns the number of payloads waiting behind the active one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stats returns a snapshot of queue metrics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// WaitIdle blocks until the queue is idle and observers have been told so,
// or ctx is done.
func (q *Queue) WaitIdle(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close clears the queue and rejects further payloads. It must not be
// called from an observer.
func (q *Queue) Close() error {
	q.Clear()
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
	return nil
}

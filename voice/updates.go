package voice

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// maxBacklog bounds the updates waiting for a slow reader. Playback and
// speaking updates are kept past the bound.
const maxBacklog = 256

// mailbox delivers updates in order to a buffered channel without blocking
// the publisher.
type mailbox struct {
	out  chan tea.Msg
	wake chan struct{}
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	pending []tea.Msg
}

func newMailbox(size int) *mailbox {
	m := &mailbox{
		out:  make(chan tea.Msg, size),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go m.run()
	return m
}

// post queues msg. It returns false when msg was dropped because the
// backlog is full.
func (m *mailbox) post(msg tea.Msg) bool {
	m.mu.Lock()
	if len(m.pending) >= maxBacklog && !essential(msg) {
		m.mu.Unlock()
		return false
	}
	m.pending = append(m.pending, msg)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox) run() {
	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			select {
			case <-m.wake:
				continue
			case <-m.done:
				return
			}
		}
		msg := m.pending[0]
		m.pending[0] = nil
		m.pending = m.pending[1:]
		m.mu.Unlock()

		select {
		case m.out <- msg:
		case <-m.done:
			return
		}
	}
}

func (m *mailbox) close() {
	m.once.Do(func() { close(m.done) })
}

// essential updates carry state the interface cannot recover from later
// messages.
func essential(msg tea.Msg) bool {
	switch msg.(type) {
	case SpeakingMsg, PlaybackMsg:
		return true
	}
	return false
}

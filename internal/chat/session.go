package chat

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/idoll/idoll/internal/protocol"
	"github.com/idoll/idoll/internal/ws"
)

// FallbackReply is shown when a reply ends without any text.
const FallbackReply = "Something went wrong, I didnt get the full response."

var (
	// ErrGenerating is returned by Submit when it stopped a reply in
	// progress instead of sending a new message.
	ErrGenerating = errors.New("stopped generating")

	// ErrEmptyMessage is returned when there is nothing to send.
	ErrEmptyMessage = errors.New("no message or image to send")
)

// Sender delivers messages to the server.
type Sender interface {
	Send(protocol.Outbound) error
	Connected() bool
}

// Session tracks the conversation shown in the client.
type Session struct {
	sender Sender
	logger *log.Logger
	now    func() time.Time

	mu         sync.Mutex
	messages   []*Message
	streaming  string
	generating bool
}

// NewSession creates an empty session that sends through sender.
func NewSession(sender Sender, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		sender: sender,
		logger: logger.WithPrefix("chat"),
		now:    time.Now,
	}
}

// Submit sends text as the next user turn. While a reply is generating the
// call stops it instead and returns ErrGenerating. The returned message is
// the user turn as stored in the session.
func (s *Session) Submit(text string, images []string) (Message, error) {
	s.mu.Lock()
	if s.generating {
		s.generating = false
		s.mu.Unlock()
		if s.sender.Connected() {
			if err := s.sender.Send(protocol.NewStopGeneration()); err != nil {
				s.logger.Warn("stop generation failed", "err", err)
			}
		}
		return Message{}, ErrGenerating
	}

	text = strings.TrimSpace(text)
	if text == "" && len(images) == 0 {
		s.mu.Unlock()
		return Message{}, ErrEmptyMessage
	}
	if !s.sender.Connected() {
		s.mu.Unlock()
		return Message{}, ws.ErrNotConnected
	}

	history := s.historyLocked()
	history = append(history, protocol.Turn{Role: string(RoleUser), Content: text})

	msg := &Message{
		ID:        newID("temp"),
		Role:      RoleUser,
		Content:   text,
		Timestamp: s.now(),
		Pending:   true,
	}
	s.messages = append(s.messages, msg)
	s.streaming = ""
	s.generating = true
	s.mu.Unlock()

	if err := s.sender.Send(protocol.NewLLMRequest(history, images)); err != nil {
		s.mu.Lock()
		s.removeLocked(msg.ID)
		s.generating = false
		s.mu.Unlock()
		return Message{}, fmt.Errorf("failed to send message: %w", err)
	}

	s.MarkSent(msg.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return msg.clone(), nil
}

// historyLocked returns every non-empty message as a conversation turn.
func (s *Session) historyLocked() []protocol.Turn {
	turns := make([]protocol.Turn, 0, len(s.messages)+1)
	for _, m := range s.messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		role := RoleAssistant
		if m.Role == RoleUser {
			role = RoleUser
		}
		turns = append(turns, protocol.Turn{Role: string(role), Content: content})
	}
	return turns
}

// MarkSent clears the pending flag on a user message and stamps it with the
// time it went out.
func (s *Session) MarkSent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.findLocked(id)
	if m == nil {
		return false
	}
	m.Pending = false
	m.Timestamp = s.now()
	return true
}

// StopGenerating clears the generating flag without touching the open reply.
func (s *Session) StopGenerating() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generating = false
}

// StreamStart opens an assistant reply with a server assigned id.
func (s *Session) StreamStart(id string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		id = newID("assistant")
	}
	m := s.openLocked(id)
	return m.clone()
}

// Chunk applies an llm_response_chunk. A reply is opened when none is
// streaming. final is true when the chunk closed the reply.
func (s *Session) Chunk(c protocol.LLMChunk) (msg Message, final bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.findLocked(s.streaming)
	if m == nil {
		m = s.openLocked(newID("assistant"))
	}
	m.Content += c.Text
	if tags := protocol.Tags(c.Tags); tags != nil {
		m.Tags = tags
	}
	if c.Final() {
		return s.finalizeLocked(c.FullResponse, time.Time{}), true
	}
	return m.clone(), false
}

// Token appends a stream_token to the open reply.
func (s *Session) Token(token string) (Message, bool) {
	return s.appendOpen(token, nil)
}

// AudioText appends the text that accompanies an audio chunk.
func (s *Session) AudioText(text string, tags []string) (Message, bool) {
	if text == "" {
		return Message{}, false
	}
	return s.appendOpen(text, tags)
}

func (s *Session) appendOpen(text string, tags []string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.findLocked(s.streaming)
	if m == nil {
		s.logger.Debug("no open reply", "text", text)
		return Message{}, false
	}
	m.Content += text
	if tags != nil {
		m.Tags = tags
	}
	return m.clone(), true
}

// End closes the open reply with the stream_end payload.
func (s *Session) End(e protocol.StreamEnd) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(s.streaming) == nil {
		s.generating = false
		s.logger.Warn("stream ended without an open reply")
		return Message{}, false
	}
	return s.finalizeLocked(e.FullResponse, e.Timestamp.Time), true
}

// finalizeLocked settles the open reply. Content is the full response when
// the server sent one, else what streamed in, else FallbackReply.
func (s *Session) finalizeLocked(full string, at time.Time) Message {
	m := s.findLocked(s.streaming)
	if m == nil {
		s.generating = false
		return Message{}
	}
	switch {
	case full != "":
		m.Content = full
	case m.Content == "":
		m.Content = FallbackReply
	}
	if at.IsZero() {
		at = s.now()
	}
	m.Timestamp = at
	m.Streaming = false
	s.streaming = ""
	s.generating = false
	return m.clone()
}

func (s *Session) openLocked(id string) *Message {
	m := s.findLocked(id)
	if m == nil {
		m = &Message{ID: id, Role: RoleAssistant, Timestamp: s.now()}
		s.messages = append(s.messages, m)
	}
	m.Streaming = true
	s.streaming = id
	return m
}

func (s *Session) findLocked(id string) *Message {
	if id == "" {
		return nil
	}
	for _, m := range s.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (s *Session) removeLocked(id string) {
	for i, m := range s.messages {
		if m.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

// Generating reports whether a reply is being generated.
func (s *Session) Generating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generating
}

// StreamingID returns the id of the open reply, if any.
func (s *Session) StreamingID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Messages returns a snapshot of the conversation.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.clone()
	}
	return out
}

// Message returns the message with id.
func (s *Session) Message(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.findLocked(id)
	if m == nil {
		return Message{}, false
	}
	return m.clone(), true
}

// Reset empties the conversation.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.streaming = ""
	s.generating = false
}

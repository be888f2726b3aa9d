package chat

import (
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

type fakeSender struct {
	mu        sync.Mutex
	sent      []protocol.Outbound
	connected bool
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

func (f *fakeSender) last() protocol.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func newTestSession() (*Session, *fakeSender) {
	sender := &fakeSender{connected: true}
	s := NewSession(sender, log.New(io.Discard))
	s.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s, sender
}

func TestSubmitBuildsHistory(t *testing.T) {
	s, sender := newTestSession()

	if _, err := s.Submit("  hello  ", nil); err != nil {
		t.Fatal(err)
	}
	s.Chunk(protocol.LLMChunk{Text: "Hi there", Done: true})

	msg, err := s.Submit("how are you?", []string{"img"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Pending || msg.Role != RoleUser || msg.Content != "how are you?" {
		t.Errorf("unexpected user message %+v", msg)
	}

	req, ok := sender.last().(protocol.LLMRequest)
	if !ok {
		t.Fatalf("expected llm_request, got %T", sender.last())
	}
	want := []protocol.Turn{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "Hi there"},
		{Role: "user", Content: "how are you?"},
	}
	if len(req.History) != len(want) {
		t.Fatalf("history = %+v", req.History)
	}
	for i := range want {
		if req.History[i] != want[i] {
			t.Errorf("turn %d = %+v, want %+v", i, req.History[i], want[i])
		}
	}
	if len(req.Images) != 1 || req.Images[0] != "img" {
		t.Errorf("images = %v", req.Images)
	}
	if !s.Generating() {
		t.Error("session should be generating")
	}
}

func TestSubmitWhileGeneratingStops(t *testing.T) {
	s, sender := newTestSession()
	if _, err := s.Submit("first", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Submit("second", nil); !errors.Is(err, ErrGenerating) {
		t.Fatalf("expected ErrGenerating, got %v", err)
	}
	if _, ok := sender.last().(protocol.StopGeneration); !ok {
		t.Errorf("expected stop_generation, got %T", sender.last())
	}
	if s.Generating() {
		t.Error("generating should be cleared")
	}
	if n := len(s.Messages()); n != 1 {
		t.Errorf("stop should not add a message, have %d", n)
	}
}

func TestSubmitRejections(t *testing.T) {
	s, sender := newTestSession()
	if _, err := s.Submit("   ", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}

	sender.connected = false
	if _, err := s.Submit("hi", nil); !errors.Is(err, ws.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if s.Generating() || len(s.Messages()) != 0 {
		t.Error("rejected submit must not change the session")
	}

	sender.connected = true
	sender.err = errors.New("boom")
	if _, err := s.Submit("hi", nil); err == nil {
		t.Error("expected send failure")
	}
	if s.Generating() || len(s.Messages()) != 0 {
		t.Error("failed send should roll back the pending message")
	}
}

func TestChunkFinalization(t *testing.T) {
	tests := []struct {
		name   string
		chunks []protocol.LLMChunk
		want   string
	}{
		{
			name:   "full response wins",
			chunks: []protocol.LLMChunk{{Text: "Hel"}, {Text: "lo", FullResponse: "Hello!"}},
			want:   "Hello!",
		},
		{
			name:   "accumulated text",
			chunks: []protocol.LLMChunk{{Text: "Hel"}, {Text: "lo"}, {End: true}},
			want:   "Hello",
		},
		{
			name:   "fallback",
			chunks: []protocol.LLMChunk{{Finished: true}},
			want:   FallbackReply,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSession()
			if _, err := s.Submit("q", nil); err != nil {
				t.Fatal(err)
			}
			var (
				msg   Message
				final bool
			)
			for _, c := range tt.chunks {
				msg, final = s.Chunk(c)
			}
			if !final {
				t.Fatal("last chunk should finalize")
			}
			if msg.Content != tt.want || msg.Streaming {
				t.Errorf("got %+v, want content %q", msg, tt.want)
			}
			if s.Generating() || s.StreamingID() != "" {
				t.Error("finalize should clear generating and the open reply")
			}
		})
	}
}

func TestStreamLifecycle(t *testing.T) {
	s, _ := newTestSession()
	if _, err := s.Submit("q", nil); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Token("orphan"); ok {
		t.Error("token without an open reply should be dropped")
	}

	start := s.StreamStart("srv-1")
	if start.ID != "srv-1" || !start.Streaming {
		t.Fatalf("unexpected start %+v", start)
	}
	s.Token("Good ")
	s.AudioText("morning", []string{"cheerful"})

	msg, ok := s.End(protocol.StreamEnd{})
	if !ok {
		t.Fatal("End found no reply")
	}
	if msg.Content != "Good morning" || msg.Tags[0] != "cheerful" {
		t.Errorf("unexpected message %+v", msg)
	}
	if got, _ := s.Message("srv-1"); got.Streaming {
		t.Error("message still streaming")
	}
}

func TestFinalChunkCarriesTags(t *testing.T) {
	s, _ := newTestSession()
	if _, err := s.Submit("q", nil); err != nil {
		t.Fatal(err)
	}
	s.Chunk(protocol.LLMChunk{Text: "Good morning"})
	msg, final := s.Chunk(protocol.LLMChunk{
		FullResponse: "Good morning!",
		Tags:         []byte(`["cheerful"]`),
		Done:         true,
	})
	if !final {
		t.Fatal("chunk should be final")
	}
	if msg.Content != "Good morning!" {
		t.Errorf("content = %q", msg.Content)
	}
	if len(msg.Tags) != 1 || msg.Tags[0] != "cheerful" {
		t.Errorf("tags = %v, want [cheerful]", msg.Tags)
	}
	if got, _ := s.Message(msg.ID); len(got.Tags) != 1 {
		t.Errorf("stored tags = %v", got.Tags)
	}
}

func TestChunkOpensReplyWithGeneratedID(t *testing.T) {
	s, _ := newTestSession()
	msg, final := s.Chunk(protocol.LLMChunk{Text: "Hi"})
	if final {
		t.Fatal("chunk should not be final")
	}
	if !strings.HasPrefix(msg.ID, "assistant-") || msg.Role != RoleAssistant {
		t.Errorf("unexpected message %+v", msg)
	}
	if s.StreamingID() != msg.ID {
		t.Error("generated reply should be open")
	}
}

func TestEndWithoutReplyClearsGenerating(t *testing.T) {
	s, _ := newTestSession()
	if _, err := s.Submit("q", nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.End(protocol.StreamEnd{FullResponse: "x"}); ok {
		t.Error("End should report no open reply")
	}
	if s.Generating() {
		t.Error("generating should be cleared")
	}
}

func TestAppendTranscription(t *testing.T) {
	tests := []struct{ input, text, want string }{
		{"", "hello", "hello"},
		{"  ", "hello", "hello"},
		{"hi ", "there", "hi there"},
		{"hi", "", "hi"},
	}
	for _, tt := range tests {
		if got := AppendTranscription(tt.input, tt.text); got != tt.want {
			t.Errorf("AppendTranscription(%q, %q) = %q, want %q", tt.input, tt.text, got, tt.want)
		}
	}
}

package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "IDOLL"
	default:
		return string(r)
	}
}

// Message is one entry of the conversation.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Tags      []string
	Timestamp time.Time

	// Pending is set on a user message until the request has been written.
	Pending bool
	// Streaming is set on an assistant message until the reply is final.
	Streaming bool
}

func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

func (m *Message) clone() Message {
	c := *m
	if m.Tags != nil {
		c.Tags = append([]string(nil), m.Tags...)
	}
	return c
}

// AppendTranscription joins a transcription onto what the user has typed so
// far, separated by a single space.
func AppendTranscription(input, text string) string {
	if text == "" {
		return input
	}
	current := strings.TrimSpace(input)
	if current == "" {
		return text
	}
	return current + " " + text
}

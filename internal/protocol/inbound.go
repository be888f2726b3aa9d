package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Inbound message types.
const (
	TypePong                = "pong"
	TypeSTTTranscription    = "stt_transcription"
	TypeAudioResponseChunk  = "audio_response_chunk"
	TypeLLMResponseChunk    = "llm_response_chunk"
	TypeStreamStart         = "stream_start"
	TypeStreamToken         = "stream_token"
	TypeStreamEnd           = "stream_end"
	TypeConversationCreated = "conversation_created"
	TypeConversationUpdated = "conversation_updated"
	TypeConversationDeleted = "conversation_deleted"
)

// ErrMissingType is returned for frames without a "type" field.
var ErrMissingType = errors.New("message has no type")

// Inbound is a decoded server message.
type Inbound interface {
	MessageType() string
}

// Pong answers a Ping.
type Pong struct {
	Timestamp float64 `json:"timestamp"`
}

// Transcription is the text recognised from an stt_request.
type Transcription struct {
	Text string `json:"text"`
}

// AudioChunk is one piece of streamed speech. Text, when present, belongs
// to the reply currently streaming.
type AudioChunk struct {
	AudioData string          `json:"audio_data"`
	Text      string          `json:"text"`
	Tags      json.RawMessage `json:"tags,omitempty"`
}

// LLMChunk is an incremental piece of a reply.
type LLMChunk struct {
	Text         string          `json:"text"`
	Tags         json.RawMessage `json:"tags,omitempty"`
	FullResponse string          `json:"full_response"`
	Finished     bool            `json:"finished"`
	IsFinal      bool            `json:"is_final"`
	Done         bool            `json:"done"`
	End          bool            `json:"end"`
}

// Final reports whether the chunk closes the reply.
func (c LLMChunk) Final() bool {
	return c.FullResponse != "" || c.Finished || c.IsFinal || c.Done || c.End
}

// StreamStart opens a reply with a server assigned id.
type StreamStart struct {
	MessageID string `json:"message_id"`
}

// StreamToken appends to the open reply.
type StreamToken struct {
	Token string `json:"token"`
}

// StreamEnd closes the open reply.
type StreamEnd struct {
	FullResponse string    `json:"full_response"`
	Timestamp    Timestamp `json:"timestamp"`
}

// Summary describes a conversation in the sidebar.
type Summary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	LastMessage string    `json:"lastMessage"`
	Timestamp   Timestamp `json:"timestamp"`
}

// ConversationChanged is sent when a conversation is created or updated.
type ConversationChanged struct {
	Type    string   `json:"type"`
	Summary *Summary `json:"summary"`
}

// ConversationDeleted is sent when a conversation is removed. The id may
// arrive inside a summary or at the top level.
type ConversationDeleted struct {
	Summary *Summary `json:"summary"`
	ID      string   `json:"id"`
}

// ConversationID returns the id of the deleted conversation.
func (c ConversationDeleted) ConversationID() string {
	if c.Summary != nil && c.Summary.ID != "" {
		return c.Summary.ID
	}
	return c.ID
}

// Unknown is any message type the client does not handle.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (Pong) MessageType() string                  { return TypePong }
func (Transcription) MessageType() string         { return TypeSTTTranscription }
func (AudioChunk) MessageType() string            { return TypeAudioResponseChunk }
func (LLMChunk) MessageType() string              { return TypeLLMResponseChunk }
func (StreamStart) MessageType() string           { return TypeStreamStart }
func (StreamToken) MessageType() string           { return TypeStreamToken }
func (StreamEnd) MessageType() string             { return TypeStreamEnd }
func (c ConversationChanged) MessageType() string { return c.Type }
func (ConversationDeleted) MessageType() string   { return TypeConversationDeleted }
func (u Unknown) MessageType() string             { return u.Type }

// Decode parses a server frame.
func Decode(data []byte) (Inbound, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}

	var (
		msg Inbound
		err error
	)
	switch env.Type {
	case TypePong:
		var m Pong
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeSTTTranscription:
		var m Transcription
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeAudioResponseChunk:
		var m AudioChunk
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeLLMResponseChunk:
		var m LLMChunk
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeStreamStart:
		var m StreamStart
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeStreamToken:
		var m StreamToken
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeStreamEnd:
		var m StreamEnd
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeConversationCreated, TypeConversationUpdated:
		var m ConversationChanged
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeConversationDeleted:
		var m ConversationDeleted
		err = json.Unmarshal(data, &m)
		msg = m
	default:
		msg = Unknown{Type: env.Type, Raw: json.RawMessage(data)}
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return msg, nil
}

// Tags decodes a tags field that is expected to be a list of strings. Any
// other shape yields nil.
func Tags(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil
	}
	return tags
}

// Timestamp accepts epoch milliseconds, RFC 3339 strings or free-form
// strings, which the server has used at different times.
type Timestamp struct {
	Time time.Time
	Text string
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		t.Text = s
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			t.Time = ts
		}
		return nil
	}
	ms, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", b, err)
	}
	t.Time = time.UnixMilli(int64(ms))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Text != "" {
		return json.Marshal(t.Text)
	}
	if t.Time.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// IsZero reports whether no timestamp was sent.
func (t Timestamp) IsZero() bool {
	return t.Time.IsZero() && t.Text == ""
}

// String renders the timestamp for display.
func (t Timestamp) String() string {
	if !t.Time.IsZero() {
		return t.Time.Local().Format("Jan 2 15:04")
	}
	return t.Text
}

package ui

import (
	"github.com/charmbracelet/log"

	"github.com/idoll/idoll/internal/chat"
	"github.com/idoll/idoll/internal/protocol"
	"github.com/idoll/idoll/voice"
)

// routed summarizes what an inbound message changed.
type routed struct {
	// Message is the assistant message that changed, if any.
	Message *chat.Message
	// Final is set when Message was finalized.
	Final bool
	// Transcription is set for stt_transcription messages.
	Transcription string
	// Conversations is set when the conversation list changed.
	Conversations bool
	// Err reports a failure to enqueue audio.
	Err error
}

// router applies server messages to the session, the conversation list
// and the voice controller. The TUI and the line mode share it.
type router struct {
	session   *chat.Session
	summaries *chat.Summaries
	voice     *voice.Controller
	logger    *log.Logger
}

func (r router) apply(in protocol.Inbound) routed {
	var out routed
	switch msg := in.(type) {
	case protocol.Transcription:
		r.voice.Transcribed()
		out.Transcription = msg.Text

	case protocol.AudioChunk:
		if err := r.voice.HandleAudio(msg); err != nil {
			r.logger.Warn("audio chunk dropped", "err", err)
			out.Err = err
		}
		if msg.Text != "" {
			if m, ok := r.session.AudioText(msg.Text, protocol.Tags(msg.Tags)); ok {
				out.Message = &m
			}
		}

	case protocol.LLMChunk:
		m, final := r.session.Chunk(msg)
		out.Message, out.Final = &m, final

	case protocol.StreamStart:
		m := r.session.StreamStart(msg.MessageID)
		out.Message = &m

	case protocol.StreamToken:
		if m, ok := r.session.Token(msg.Token); ok {
			out.Message = &m
		}

	case protocol.StreamEnd:
		if m, ok := r.session.End(msg); ok {
			out.Message, out.Final = &m, true
		}

	case protocol.ConversationChanged:
		if msg.Summary != nil {
			out.Conversations = r.summaries.Upsert(*msg.Summary)
		}

	case protocol.ConversationDeleted:
		out.Conversations = r.summaries.Remove(msg.ConversationID())

	default:
		r.logger.Debug("ignored message", "type", in.MessageType())
	}
	return out
}
